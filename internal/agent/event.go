package agent

import "context"

// EventKind discriminates AgentEvent's payload (§4.4).
type EventKind string

const (
	EventTextDelta       EventKind = "text_delta"
	EventThinkingDelta   EventKind = "thinking_delta"
	EventToolCallStarted EventKind = "tool_call_started"
	EventToolCallFinished EventKind = "tool_call_finished"
	EventTextComplete    EventKind = "text_complete"
	EventTurnComplete    EventKind = "turn_complete"
	EventContextCompacted EventKind = "context_compacted"
	EventTodoUpdate      EventKind = "todo_update"
	EventModeChanged     EventKind = "mode_changed"
	EventTokenUsage      EventKind = "token_usage"
	EventError           EventKind = "error"
)

// Event is the discriminated union emitted by the turn engine. Only the
// field(s) matching Kind are populated.
type Event struct {
	Kind EventKind

	Text string // TextDelta, ThinkingDelta, TextComplete

	CallID   string // ToolCallStarted, ToolCallFinished
	ToolName string // ToolCallStarted, ToolCallFinished
	Output   string // ToolCallFinished
	IsError  bool   // ToolCallFinished

	TokensBefore int // ContextCompacted
	TokensAfter  int // ContextCompacted

	Todos []TodoSnapshot // TodoUpdate

	Mode string // ModeChanged

	Usage TokenUsage // TokenUsage

	Err string // Error
}

// TodoSnapshot mirrors models.Todo for event payloads, avoiding a direct
// models dependency at call sites that only observe events.
type TodoSnapshot struct {
	ID      string
	Content string
	Status  string
}

// TokenUsage is the per-round usage delta reported with a TokenUsage event.
type TokenUsage struct {
	Input      int64
	Output     int64
	CacheRead  int64
	CacheWrite int64
}

// Sink receives Events during a turn. Implementations must be safe to call
// from the engine's single goroutine; they need not be reentrant-safe
// across turns since a session's turns are never concurrent.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// ChanSink forwards events to a channel. A send blocks while the buffer is
// full and the event is dropped once ctx is done — this is how the engine
// observes "the caller dropped the sink" (§4.4 cancellation). The channel
// must not be closed while the engine may still emit: a send on a closed
// channel panics.
type ChanSink struct {
	ch chan<- Event
}

// NewChanSink wraps ch. The channel should be buffered; an unbuffered
// channel works too but couples the engine's pace to the reader's.
func NewChanSink(ch chan<- Event) *ChanSink { return &ChanSink{ch: ch} }

// Emit sends e, waiting for buffer space and giving up once ctx is done.
func (s *ChanSink) Emit(ctx context.Context, e Event) {
	select {
	case s.ch <- e:
	case <-ctx.Done():
	}
}

// CallbackSink adapts a plain function to Sink, useful for tests and for
// bridging into the control plane's per-session event stream.
type CallbackSink struct {
	fn func(ctx context.Context, e Event)
}

// NewCallbackSink wraps fn as a Sink.
func NewCallbackSink(fn func(ctx context.Context, e Event)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

// Emit calls the wrapped function.
func (s *CallbackSink) Emit(ctx context.Context, e Event) {
	if s.fn != nil {
		s.fn(ctx, e)
	}
}
