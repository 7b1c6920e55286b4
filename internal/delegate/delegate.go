// Package delegate implements the sub-agent delegation tool (C6, §4.6): a
// tool.Tool that, when invoked, constructs and drives a fresh child Agent to
// completion and returns its text output.
//
// It lives outside internal/tool/builtin specifically to avoid a cycle: the
// delegation tool depends on the Agent type, while Agent owns the registry
// that the delegation tool is a member of (§9's "cyclic references" note).
// The cycle is broken by reference, not by package: a Tool never stores an
// *agent.Agent directly, only a func() *agent.Agent resolved lazily, so it
// can be registered into an Agent's own registry before that Agent exists.
package delegate

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/sven-run/sven/internal/agent"
	"github.com/sven-run/sven/internal/session"
	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// MaxDepth bounds nested delegation (§4.6, §3 "Sub-agent depth").
const MaxDepth = 3

// Tool implements the "delegate" tool. Owner resolves the Agent this Tool
// is registered against; Depth is a counter shared by every Tool along one
// delegation chain, so nesting is tracked across the whole chain rather
// than per-Agent.
type Tool struct {
	Owner func() *agent.Agent
	Depth *int32
}

// New builds a Tool. owner is called once per Execute to resolve the Agent
// this Tool belongs to; pass a closure over a variable assigned after
// agent.New returns, since the registry (and thus this Tool) must exist
// before the Agent holding it does. shared is the depth counter to
// propagate down the delegation chain; pass nil at the root to start a
// fresh counter at zero.
func New(owner func() *agent.Agent, shared *int32) *Tool {
	if shared == nil {
		shared = new(int32)
	}
	return &Tool{Owner: owner, Depth: shared}
}

func (*Tool) Name() string { return "delegate" }
func (*Tool) Description() string {
	return "Delegate a self-contained task to a bounded-depth sub-agent and return its final text."
}
func (*Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{"type": "string"},
			"mode": map[string]any{
				"type": "string",
				"enum": []any{"research", "plan", "agent"},
			},
			"max_rounds": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []any{"prompt"},
	}
}
func (*Tool) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAsk }
func (*Tool) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (*Tool) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

type delegateArgs struct {
	Prompt    string `json:"prompt"`
	Mode      string `json:"mode"`
	MaxRounds int    `json:"max_rounds"`
}

// Execute runs the §4.6 algorithm: bump depth, build a child registry and
// Agent, submit the prompt, collect its text, release depth.
func (t *Tool) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var args delegateArgs
	raw := call.Args
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		args = delegateArgs{}
	}
	if args.Prompt == "" {
		return tool.Error("delegate requires a non-empty prompt")
	}

	mode := models.AgentMode(args.Mode)
	switch mode {
	case models.ModeResearch, models.ModePlan, models.ModeAgent:
	case "":
		mode = models.ModeAgent
	default:
		return tool.Errorf("unknown mode: %s", args.Mode)
	}

	before := atomic.AddInt32(t.Depth, 1)
	if before > MaxDepth {
		atomic.AddInt32(t.Depth, -1)
		return tool.Error("maximum sub-agent depth (3) reached")
	}
	defer atomic.AddInt32(t.Depth, -1)

	parent := t.Owner()

	childRegistry := parent.Registry().Clone(t.Name())
	var child *agent.Agent
	childRegistry.Register(New(func() *agent.Agent { return child }, t.Depth))

	cfg := parent.Config()
	if args.MaxRounds > 0 {
		cfg.MaxToolRounds = args.MaxRounds
	}

	childSess := session.New("", parent.Session().ContextWindow())
	child = agent.New(
		cfg,
		childSess,
		childRegistry,
		parent.Provider(),
		parent.Policy(),
		parent.Approver(),
		parent.RuntimeContext(),
		mode,
	)

	var text string
	sink := agent.NewCallbackSink(func(_ context.Context, e agent.Event) {
		if e.Kind == agent.EventTextDelta {
			text += e.Text
		}
	})

	if _, err := child.Submit(ctx, args.Prompt, sink); err != nil {
		return tool.Errorf("sub-agent error: %s", err)
	}

	if text == "" {
		return tool.Text("(sub-agent produced no text output)")
	}
	return tool.Text(text)
}
