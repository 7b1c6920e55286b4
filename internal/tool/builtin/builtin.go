// Package builtin implements the bodies of the core tools enumerated in
// §4.2: read/write/edit/delete/list/glob/grep/terminal/webfetch/websearch/
// memory/ask/todo/switchmode. Each tool validates its own required
// parameters and never returns a Go error from Execute; every failure
// mode is reported through tool.Output.IsError.
package builtin

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/sven-run/sven/internal/tool"
)

// excludedDirs are skipped by list/glob directory walks (§4.2).
var excludedDirs = map[string]bool{
	".git":         true,
	"target":       true,
	"node_modules": true,
	"__pycache__":  true,
}

func isExcluded(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if excludedDirs[part] {
			return true
		}
	}
	return false
}

// decodeArgs unmarshals a tool call's raw JSON arguments into dst. A
// missing/empty payload decodes as an empty object, matching §4.4's
// "malformed args -> empty object" edge case at the call site.
func decodeArgs(raw string, dst any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	return json.Unmarshal([]byte(raw), dst)
}

// requireString returns tool.Error naming the missing field verbatim when
// s is empty, matching §4.2's "report the missing key verbatim" rule.
func requireString(s, field string) (tool.Output, bool) {
	if strings.TrimSpace(s) == "" {
		return tool.Errorf("missing required parameter: %s", field), true
	}
	return tool.Output{}, false
}

func clampInt(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
