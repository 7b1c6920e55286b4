package tool

import (
	"context"
	"testing"

	"github.com/sven-run/sven/pkg/models"
)

type fakeTool struct {
	name   string
	modes  []models.AgentMode
	policy models.ApprovalPolicy
	params map[string]any
	run    func(models.ToolCall) Output
}

func (f *fakeTool) Name() string                          { return f.name }
func (f *fakeTool) Description() string                   { return "fake tool " + f.name }
func (f *fakeTool) Parameters() map[string]any             { return f.params }
func (f *fakeTool) DefaultPolicy() models.ApprovalPolicy   { return f.policy }
func (f *fakeTool) Modes() []models.AgentMode              { return f.modes }
func (f *fakeTool) OutputCategory() OutputCategory         { return CategoryText }
func (f *fakeTool) Execute(_ context.Context, c models.ToolCall) Output {
	if f.run != nil {
		return f.run(c)
	}
	return Text("ok")
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Fatal("expected no tool registered")
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	out := r.Execute(context.Background(), models.ToolCall{Name: "ghost"})
	if !out.IsError || out.Content() != "unknown tool: ghost" {
		t.Fatalf("got %+v", out)
	}
}

func TestRegistryLastWriteWins(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "t", run: func(models.ToolCall) Output { return Text("first") }})
	r.Register(&fakeTool{name: "t", run: func(models.ToolCall) Output { return Text("second") }})
	out := r.Execute(context.Background(), models.ToolCall{Name: "t"})
	if out.Content() != "second" {
		t.Fatalf("got %q, want %q", out.Content(), "second")
	}
}

func TestSchemasForModeFiltersAndSorts(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "zzz"})
	r.Register(&fakeTool{name: "aaa"})
	r.Register(&fakeTool{name: "agent_only", modes: []models.AgentMode{models.ModeAgent}})

	research := r.SchemasForMode(models.ModeResearch)
	if len(research) != 2 {
		t.Fatalf("expected 2 schemas in research mode, got %d", len(research))
	}
	if research[0].Name != "aaa" || research[1].Name != "zzz" {
		t.Fatalf("expected sorted names, got %v", research)
	}

	agent := r.SchemasForMode(models.ModeAgent)
	if len(agent) != 3 {
		t.Fatalf("expected 3 schemas in agent mode, got %d", len(agent))
	}
}

func TestRegistryValidatesArgumentsAgainstSchema(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{
		name: "needs_path",
		params: map[string]any{
			"type":     "object",
			"required": []any{"path"},
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
		},
	})

	out := r.Execute(context.Background(), models.ToolCall{Name: "needs_path", Args: `{}`})
	if !out.IsError {
		t.Fatal("expected schema validation failure for missing required field")
	}

	out = r.Execute(context.Background(), models.ToolCall{Name: "needs_path", Args: `{"path":"/tmp/x"}`})
	if out.IsError {
		t.Fatalf("expected success, got error: %s", out.Content())
	}
}

func TestRegistryMalformedArgsPassEmptyObject(t *testing.T) {
	r := NewRegistry()
	var seen string
	r.Register(&fakeTool{
		name: "echo_args",
		params: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
		},
		run: func(c models.ToolCall) Output {
			seen = c.Args
			return Text("ok")
		},
	})
	out := r.Execute(context.Background(), models.ToolCall{Name: "echo_args", Args: "{not json"})
	if out.IsError {
		t.Fatalf("malformed JSON should not fail schema validation, got error: %s", out.Content())
	}
	if seen != "{}" {
		t.Fatalf("tool should see the empty object, got %q", seen)
	}
}

func TestAllNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "zebra"})
	r.Register(&fakeTool{name: "apple"})
	names := r.AllNames()
	if len(names) != 2 || names[0] != "apple" || names[1] != "zebra" {
		t.Fatalf("got %v", names)
	}
}
