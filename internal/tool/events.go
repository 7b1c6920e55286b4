package tool

import (
	"context"

	"github.com/sven-run/sven/pkg/models"
)

// Event is a side-effecting notification a tool emits while executing,
// distinct from its Output. The turn engine drains these per round and
// republishes them as AgentEvents (§4.4's "drain ToolEvent channel" step).
type Event struct {
	TodoUpdate  *TodoUpdateEvent
	ModeChanged *ModeChangedEvent
}

// TodoUpdateEvent carries the replacement todo list from the todo_write
// tool.
type TodoUpdateEvent struct {
	Todos []models.Todo
}

// ModeChangedEvent carries the new mode from the switch_mode tool.
type ModeChangedEvent struct {
	Mode models.AgentMode
}

type eventSinkKey struct{}

// WithEventSink attaches sink to ctx so tools invoked through it can emit
// Events. A nil sink makes EmitEvent a no-op.
func WithEventSink(ctx context.Context, sink chan<- Event) context.Context {
	return context.WithValue(ctx, eventSinkKey{}, sink)
}

// EmitEvent sends e to the sink attached to ctx, if any. It never blocks
// indefinitely on an unbuffered, unread sink beyond ctx's own cancellation.
func EmitEvent(ctx context.Context, e Event) {
	sink, _ := ctx.Value(eventSinkKey{}).(chan<- Event)
	if sink == nil {
		return
	}
	select {
	case sink <- e:
	case <-ctx.Done():
	}
}
