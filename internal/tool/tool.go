// Package tool defines the tool contract (C2): a named capability the
// model may invoke with JSON arguments, returning text/image parts. A tool
// never fails its Execute call in the Go-error sense — every failure is
// reported through Output.IsError so the turn engine can keep running.
package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/sven-run/sven/pkg/models"
)

// OutputCategory hints to a UI how to render a tool's output.
type OutputCategory string

const (
	CategoryText      OutputCategory = "text"
	CategoryHeadTail  OutputCategory = "head_tail"
	CategoryMatchList OutputCategory = "match_list"
)

// Tool is a registry member. Implementations should be stateless or
// internally synchronized: Execute may be called concurrently across
// independent turns.
type Tool interface {
	// Name is the unique identifier the model uses to invoke this tool.
	Name() string

	// Description is shown to the model alongside Parameters.
	Description() string

	// Parameters is a JSON Schema object describing the tool's arguments.
	Parameters() map[string]any

	// DefaultPolicy is used when no operator-configured glob pattern
	// matches this tool's command string (§4.5).
	DefaultPolicy() models.ApprovalPolicy

	// Modes lists the AgentModes this tool is advertised in. A nil/empty
	// slice means all modes.
	Modes() []models.AgentMode

	// OutputCategory hints how a UI should render this tool's output.
	OutputCategory() OutputCategory

	// Execute runs the tool against a parsed call. It must never panic or
	// return a Go error to the caller; failures are reported via
	// Output.IsError.
	Execute(ctx context.Context, call models.ToolCall) Output
}

// Output is the result of a tool invocation.
type Output struct {
	Parts   []models.ContentPart
	IsError bool
}

// Content joins the text parts of o, matching §3's ToolOutput.content rule.
func (o Output) Content() string {
	var b strings.Builder
	for _, p := range o.Parts {
		if p.Type == models.PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Text builds a successful single-text-part Output.
func Text(s string) Output {
	return Output{Parts: []models.ContentPart{models.TextPart(s)}}
}

// Image builds a successful Output carrying a single image part.
func Image(data []byte, mime string) Output {
	return Output{Parts: []models.ContentPart{models.ImagePart(data, mime)}}
}

// Error builds an is_error Output from msg.
func Error(msg string) Output {
	return Output{Parts: []models.ContentPart{models.TextPart(msg)}, IsError: true}
}

// Errorf builds an is_error Output, formatting msg like fmt.Sprintf.
func Errorf(format string, args ...any) Output {
	return Error(fmt.Sprintf(format, args...))
}

// SupportsMode reports whether t advertises itself in mode. A tool with no
// Modes() entries is available in every mode.
func SupportsMode(t Tool, mode models.AgentMode) bool {
	modes := t.Modes()
	if len(modes) == 0 {
		return true
	}
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}
