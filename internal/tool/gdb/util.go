package gdb

import (
	"encoding/json"
	"strings"
)

// decodeArgs unmarshals a tool call's raw JSON arguments into dst, treating
// a missing/empty payload as an empty object (mirrors the builtin package's
// helper of the same name; duplicated here to avoid an inter-package
// dependency between two independent tool groups).
func decodeArgs(raw string, dst any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	return json.Unmarshal([]byte(raw), dst)
}
