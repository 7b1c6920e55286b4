// Package provider defines the model provider contract (C1): a thin
// streaming abstraction over chat-completion backends that the agent turn
// engine drives round by round.
package provider

import (
	"context"

	"github.com/sven-run/sven/pkg/models"
)

// Modality is an input type a model can accept.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// DefaultContextWindow is used when a provider cannot report the model's
// context window.
const DefaultContextWindow = 128_000

// Provider is a chat-completion backend.
//
// Implementations must be safe for concurrent use: Complete may be called
// for overlapping requests from independent Agent turns.
type Provider interface {
	// Name is the provider's display identifier (e.g. "anthropic").
	Name() string

	// ModelName is the concrete model identifier this provider instance
	// targets (e.g. "claude-sonnet-4-20250514").
	ModelName() string

	// ContextWindow returns the maximum prompt tokens the model accepts,
	// or DefaultContextWindow when unknown.
	ContextWindow() int

	// InputModalities returns the set of content types the model accepts.
	// Defaults to {ModalityText} when unknown.
	InputModalities() []Modality

	// Complete streams a completion for req. The returned channel is
	// closed after a Done or terminal Error event; it is never restarted.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan ResponseEvent, error)
}

// CompletionRequest is the normalized request handed to a Provider.
type CompletionRequest struct {
	Messages []models.Message
	Tools    []models.ToolSchema
	Stream   bool
}

// EventKind discriminates the ResponseEvent union.
type EventKind string

const (
	EventTextDelta     EventKind = "text_delta"
	EventThinkingDelta EventKind = "thinking_delta"
	EventToolCall      EventKind = "tool_call"
	EventUsage         EventKind = "usage"
	EventDone          EventKind = "done"
	EventError         EventKind = "error"
)

// Usage carries cumulative token accounting. Fields are "last wins": a
// later Usage event overwrites the totals tracked by the caller.
type Usage struct {
	Input      int
	Output     int
	CacheRead  int
	CacheWrite int
}

// ToolCallDelta is one fragment of a tool call. Id and Name fix on the
// first event bearing a given Index; Arguments is a fragment to be
// concatenated by the caller (§4.1, §9: "accumulating tool-call
// arguments").
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ResponseEvent is one element of the lazy, finite stream Complete
// returns. Exactly one of the typed fields is populated, matching Kind.
type ResponseEvent struct {
	Kind EventKind

	Text     string
	ToolCall ToolCallDelta
	Usage    Usage
	Err      error
}

// TextDeltaEvent builds an EventTextDelta event.
func TextDeltaEvent(s string) ResponseEvent { return ResponseEvent{Kind: EventTextDelta, Text: s} }

// ThinkingDeltaEvent builds an EventThinkingDelta event.
func ThinkingDeltaEvent(s string) ResponseEvent {
	return ResponseEvent{Kind: EventThinkingDelta, Text: s}
}

// ToolCallEvent builds an EventToolCall event.
func ToolCallEvent(d ToolCallDelta) ResponseEvent {
	return ResponseEvent{Kind: EventToolCall, ToolCall: d}
}

// UsageEvent builds an EventUsage event.
func UsageEvent(u Usage) ResponseEvent { return ResponseEvent{Kind: EventUsage, Usage: u} }

// DoneEvent builds the terminal EventDone event.
func DoneEvent() ResponseEvent { return ResponseEvent{Kind: EventDone} }

// ErrorEvent builds a non-terminal EventError event — a recoverable
// warning that does not end the stream.
func ErrorEvent(err error) ResponseEvent { return ResponseEvent{Kind: EventError, Err: err} }

// SupportsImage reports whether modalities includes ModalityImage.
func SupportsImage(modalities []Modality) bool {
	for _, m := range modalities {
		if m == ModalityImage {
			return true
		}
	}
	return false
}
