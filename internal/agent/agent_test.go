package agent

import (
	"context"
	"testing"

	"github.com/sven-run/sven/internal/approval"
	"github.com/sven-run/sven/internal/provider"
	"github.com/sven-run/sven/internal/provider/mock"
	"github.com/sven-run/sven/internal/session"
	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

type argCaptureTool struct {
	capture *string
}

func (argCaptureTool) Name() string                        { return "capture" }
func (argCaptureTool) Description() string                 { return "captures its raw args" }
func (argCaptureTool) Parameters() map[string]any           { return nil }
func (argCaptureTool) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (argCaptureTool) Modes() []models.AgentMode            { return nil }
func (argCaptureTool) OutputCategory() tool.OutputCategory  { return tool.CategoryText }
func (a argCaptureTool) Execute(_ context.Context, call models.ToolCall) tool.Output {
	*a.capture = call.Args
	return tool.Text("captured")
}

type echoTool struct {
	output tool.Output
}

func (echoTool) Name() string                          { return "run_terminal" }
func (echoTool) Description() string                   { return "echoes" }
func (echoTool) Parameters() map[string]any             { return nil }
func (echoTool) DefaultPolicy() models.ApprovalPolicy   { return models.PolicyAuto }
func (echoTool) Modes() []models.AgentMode              { return nil }
func (echoTool) OutputCategory() tool.OutputCategory    { return tool.CategoryText }
func (e echoTool) Execute(context.Context, models.ToolCall) tool.Output { return e.output }

func collectEvents(t *testing.T) (*CallbackSink, func() []Event) {
	t.Helper()
	var events []Event
	sink := NewCallbackSink(func(_ context.Context, e Event) { events = append(events, e) })
	return sink, func() []Event { return events }
}

func newTestAgent(t *testing.T, prov *mock.Provider, registry *tool.Registry, policy approval.Policy) *Agent {
	t.Helper()
	sess := session.New("", 0)
	if registry == nil {
		registry = tool.NewRegistry()
	}
	return New(Config{}, sess, registry, prov, policy, nil, models.RuntimeContext{}, models.ModeAgent)
}

func TestSubmitSingleTurnNoToolCalls(t *testing.T) {
	prov := mock.New(mock.Text("done"))
	a := newTestAgent(t, prov, nil, approval.Policy{})
	sink, events := collectEvents(t)

	result, err := a.Submit(context.Background(), "hi", sink)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.Aborted {
		t.Fatalf("expected non-aborted result")
	}

	var kinds []EventKind
	for _, e := range events() {
		kinds = append(kinds, e.Kind)
	}
	wantLast := []EventKind{EventTextDelta, EventTextComplete, EventTurnComplete}
	if len(kinds) != len(wantLast) {
		t.Fatalf("expected %d events, got %v", len(wantLast), kinds)
	}
	for i, k := range wantLast {
		if kinds[i] != k {
			t.Fatalf("event %d: expected %s, got %s", i, k, kinds[i])
		}
	}

	msgs := a.Session().Messages()
	if len(msgs) != 2 || msgs[1].Text() != "done" {
		t.Fatalf("expected [user, assistant(done)], got %+v", msgs)
	}
}

func TestSubmitOneToolRound(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(echoTool{output: tool.Text("ok\n")})

	prov := mock.New(
		mock.ToolCall(0, "c1", "run_terminal", `{"command":"echo ok"}`),
		mock.Text("done"),
	)
	a := newTestAgent(t, prov, registry, approval.Policy{})
	sink, events := collectEvents(t)

	_, err := a.Submit(context.Background(), "run it", sink)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var kinds []EventKind
	for _, e := range events() {
		kinds = append(kinds, e.Kind)
	}
	want := []EventKind{EventToolCallStarted, EventToolCallFinished, EventTextDelta, EventTextComplete, EventTurnComplete}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), kinds)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("event %d: expected %s, got %s", i, k, kinds[i])
		}
	}

	finished := events()[1]
	if finished.IsError || finished.Output != "ok\n" {
		t.Fatalf("unexpected tool result: %+v", finished)
	}
}

func TestSubmitToolCallDeniedByPolicy(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(echoTool{output: tool.Text("should not run")})

	prov := mock.New(
		mock.ToolCall(0, "c1", "run_terminal", `{"command":"rm -rf /"}`),
		mock.Text("done"),
	)
	policy := approval.Policy{Deny: []string{"rm -rf *"}}
	a := newTestAgent(t, prov, registry, policy)
	sink, events := collectEvents(t)

	_, err := a.Submit(context.Background(), "run it", sink)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var finished *Event
	for i := range events() {
		if events()[i].Kind == EventToolCallFinished {
			finished = &events()[i]
		}
	}
	if finished == nil || !finished.IsError || finished.Output != "denied by policy" {
		t.Fatalf("expected denied-by-policy tool result, got %+v", finished)
	}
}

func TestSubmitAccumulatesToolCallArgumentsByIndex(t *testing.T) {
	registry := tool.NewRegistry()
	var seenArgs string
	registry.Register(argCaptureTool{capture: &seenArgs})

	prov := mock.New([]provider.ResponseEvent{
		provider.ToolCallEvent(provider.ToolCallDelta{Index: 0, ID: "c1", Name: "capture", Arguments: `{"a":`}),
		provider.ToolCallEvent(provider.ToolCallDelta{Index: 0, Arguments: `1}`}),
		provider.DoneEvent(),
	})
	a := newTestAgent(t, prov, registry, approval.Policy{})
	sink, _ := collectEvents(t)

	_, err := a.Submit(context.Background(), "go", sink)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if seenArgs != `{"a":1}` {
		t.Fatalf("expected concatenated arguments, got %q", seenArgs)
	}
}

func TestSubmitMaxToolRoundsExceeded(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(echoTool{output: tool.Text("again")})

	prov := mock.New(mock.ToolCall(0, "c1", "run_terminal", `{}`))
	a := newTestAgent(t, prov, registry, approval.Policy{})
	a.cfg.MaxToolRounds = 2
	sink, events := collectEvents(t)

	_, err := a.Submit(context.Background(), "go", sink)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	last := events()[len(events())-1]
	if last.Kind != EventTurnComplete {
		t.Fatalf("expected TurnComplete as final event, got %s", last.Kind)
	}
	foundMaxRoundsError := false
	for _, e := range events() {
		if e.Kind == EventError && e.Err == "max tool rounds exceeded" {
			foundMaxRoundsError = true
		}
	}
	if !foundMaxRoundsError {
		t.Fatalf("expected max-tool-rounds error event, got %+v", events())
	}
}
