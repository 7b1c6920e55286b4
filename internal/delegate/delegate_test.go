package delegate

import (
	"context"
	"strings"
	"testing"

	"github.com/sven-run/sven/internal/agent"
	"github.com/sven-run/sven/internal/approval"
	"github.com/sven-run/sven/internal/provider"
	"github.com/sven-run/sven/internal/provider/mock"
	"github.com/sven-run/sven/internal/session"
	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

func newParent(t *testing.T, prov *mock.Provider) (*agent.Agent, *Tool) {
	t.Helper()
	registry := tool.NewRegistry()

	var parent *agent.Agent
	delegateTool := New(func() *agent.Agent { return parent }, nil)
	registry.Register(delegateTool)

	sess := session.New("", 0)
	parent = agent.New(agent.Config{}, sess, registry, prov, approval.Policy{}, nil, models.RuntimeContext{}, models.ModeAgent)
	return parent, delegateTool
}

func TestExecuteReturnsChildText(t *testing.T) {
	prov := mock.New(mock.Text("child answer"))
	_, delegateTool := newParent(t, prov)

	out := delegateTool.Execute(context.Background(), models.ToolCall{Args: `{"prompt":"do it"}`})
	if out.IsError {
		t.Fatalf("unexpected error output: %+v", out)
	}
	if out.Content() != "child answer" {
		t.Fatalf("expected child text, got %q", out.Content())
	}
}

func TestExecuteEmptyTextSentinel(t *testing.T) {
	prov := mock.New([]provider.ResponseEvent{provider.DoneEvent()})
	_, delegateTool := newParent(t, prov)

	out := delegateTool.Execute(context.Background(), models.ToolCall{Args: `{"prompt":"do it"}`})
	if out.IsError {
		t.Fatalf("unexpected error output: %+v", out)
	}
	if out.Content() != "(sub-agent produced no text output)" {
		t.Fatalf("expected empty-output sentinel, got %q", out.Content())
	}
}

func TestExecuteRejectsEmptyPrompt(t *testing.T) {
	prov := mock.New(mock.Text("unused"))
	_, delegateTool := newParent(t, prov)

	out := delegateTool.Execute(context.Background(), models.ToolCall{Args: `{"prompt":""}`})
	if !out.IsError {
		t.Fatalf("expected error for empty prompt")
	}
}

func TestExecuteDepthBound(t *testing.T) {
	prov := mock.New(mock.Text("unused"))
	_, delegateTool := newParent(t, prov)

	// Pre-saturate the shared depth counter to MaxDepth, simulating
	// MaxDepth in-flight delegations above this one.
	for i := 0; i < MaxDepth; i++ {
		*delegateTool.Depth++
	}

	out := delegateTool.Execute(context.Background(), models.ToolCall{Args: `{"prompt":"go deeper"}`})
	if !out.IsError || !strings.Contains(out.Content(), "maximum sub-agent depth (3) reached") {
		t.Fatalf("expected depth-exceeded error, got %+v", out)
	}
	if *delegateTool.Depth != int32(MaxDepth) {
		t.Fatalf("expected depth to be released back to %d, got %d", MaxDepth, *delegateTool.Depth)
	}
}

func TestExecuteUnknownModeErrors(t *testing.T) {
	prov := mock.New(mock.Text("unused"))
	_, delegateTool := newParent(t, prov)

	out := delegateTool.Execute(context.Background(), models.ToolCall{Args: `{"prompt":"go","mode":"bogus"}`})
	if !out.IsError {
		t.Fatalf("expected error for unknown mode")
	}
}
