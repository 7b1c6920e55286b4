// Package approval implements the operator-configurable auto/ask/deny
// decision for tool invocations (C5, §4.5).
package approval

import (
	"encoding/json"

	"github.com/sven-run/sven/pkg/models"
)

// Policy is compiled from operator configuration into two ordered glob
// pattern lists. Patterns use '*' (any run) and '?' (single char);
// case-sensitive; anchored against the full command string.
type Policy struct {
	AutoApprove []string
	Deny        []string
}

// Decide implements §4.5's decide(command_string): deny patterns win over
// auto_approve patterns, which win over the tool's own default policy.
func (p Policy) Decide(commandString string, fallback models.ApprovalPolicy) models.ApprovalPolicy {
	for _, pattern := range p.Deny {
		if matches(pattern, commandString) {
			return models.PolicyDeny
		}
	}
	for _, pattern := range p.AutoApprove {
		if matches(pattern, commandString) {
			return models.PolicyAuto
		}
	}
	return fallback
}

// matches implements the §4.5 glob dialect directly rather than via
// path/filepath.Match, whose '*' deliberately refuses to cross '/' — wrong
// here, since command strings (e.g. "rm -rf /") are not paths.
func matches(pattern, s string) bool {
	return globMatch(pattern, s)
}

func globMatch(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '*':
		if globMatch(pattern[1:], s) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if globMatch(pattern[1:], s[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return globMatch(pattern[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != pattern[0] {
			return false
		}
		return globMatch(pattern[1:], s[1:])
	}
}

// CommandString builds the canonical string fed to Decide (§4.5): for
// shell-style tools the raw command, otherwise "<tool-name> <primary-arg>".
func CommandString(toolName string, call models.ToolCall) string {
	if toolName == "run_terminal" {
		if cmd, ok := primaryArg(call.Args, "command"); ok {
			return cmd
		}
	}
	if primary, ok := primaryArg(call.Args, "path", "url", "query", "prompt", "key"); ok {
		return toolName + " " + primary
	}
	return toolName
}

// primaryArg extracts the first string field (by key, in order) present in
// the tool's raw JSON argument string.
func primaryArg(rawArgs string, keys ...string) (string, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &fields); err != nil {
		return "", false
	}
	for _, key := range keys {
		if v, ok := fields[key].(string); ok {
			return v, true
		}
	}
	return "", false
}
