// Package agent drives the per-turn model/tool loop (C4): streams a
// provider, accumulates tool calls, executes them under approval policy,
// feeds results back into the session, and compacts history near the
// context window.
package agent

import (
	"context"
	"sort"
	"sync"

	"github.com/sven-run/sven/internal/approval"
	"github.com/sven-run/sven/internal/compaction"
	"github.com/sven-run/sven/internal/provider"
	"github.com/sven-run/sven/internal/session"
	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// DefaultMaxToolRounds is the operator-overridable round ceiling (§4.4).
const DefaultMaxToolRounds = 25

// ApprovalRequester asks an operator to approve or deny a tool call whose
// policy resolved to Ask. The bootstrap wires a concrete implementation
// (e.g. a control-plane prompt or a TUI confirmation).
type ApprovalRequester interface {
	RequestApproval(ctx context.Context, toolName string, call models.ToolCall) (approved bool, err error)
}

// AutoApprover always approves, used when no operator channel is attached
// (headless CI runs with an all-Auto policy, tests).
type AutoApprover struct{}

// RequestApproval always returns true.
func (AutoApprover) RequestApproval(context.Context, string, models.ToolCall) (bool, error) {
	return true, nil
}

// Config carries the operator-supplied knobs referenced by §4.4.
type Config struct {
	MaxToolRounds       int
	CompactionThreshold float64
	ReservedOutput      int
}

func (c Config) withDefaults() Config {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.CompactionThreshold <= 0 {
		c.CompactionThreshold = compaction.DefaultThreshold
	}
	return c
}

// Result is returned once a turn finishes, win or lose.
type Result struct {
	// Aborted is true when the sink's context was cancelled mid-turn
	// (§4.4's cancellation semantics).
	Aborted bool
}

// Agent drives one Session against one Provider and one tool Registry.
// Its mode is shared mutable state: the mode-switch tool and the engine
// itself both touch it under Agent's lock (§3: "mode value is shared
// mutably by Agent and the mode-switch tool").
type Agent struct {
	cfg      Config
	sess     *session.Session
	registry *tool.Registry
	prov     provider.Provider
	policy   approval.Policy
	approver ApprovalRequester

	runtimeCtx models.RuntimeContext

	modeMu sync.RWMutex
	mode   models.AgentMode

	toolEvents chan tool.Event
}

// New builds an Agent. initialMode is typically models.ModeAgent.
func New(
	cfg Config,
	sess *session.Session,
	registry *tool.Registry,
	prov provider.Provider,
	policy approval.Policy,
	approver ApprovalRequester,
	runtimeCtx models.RuntimeContext,
	initialMode models.AgentMode,
) *Agent {
	if approver == nil {
		approver = AutoApprover{}
	}
	return &Agent{
		cfg:        cfg.withDefaults(),
		sess:       sess,
		registry:   registry,
		prov:       prov,
		policy:     policy,
		approver:   approver,
		runtimeCtx: runtimeCtx,
		mode:       initialMode,
		toolEvents: make(chan tool.Event, 16),
	}
}

// Mode returns the agent's current mode under lock.
func (a *Agent) Mode() models.AgentMode {
	a.modeMu.RLock()
	defer a.modeMu.RUnlock()
	return a.mode
}

// SetMode updates the agent's mode under lock. Used by bootstrap and by
// the mode-switch tool's caller (the tool itself only emits the event; the
// engine applies it after draining, see drainToolEvents).
func (a *Agent) SetMode(mode models.AgentMode) {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	a.mode = mode
}

// Session exposes the underlying Session, e.g. for control-plane snapshots.
func (a *Agent) Session() *session.Session { return a.sess }

// RuntimeContext returns the read-only context inherited by sub-agents
// (§3: "AgentRuntimeContext... inherited by sub-agents").
func (a *Agent) RuntimeContext() models.RuntimeContext { return a.runtimeCtx }

// Registry returns the tool registry this agent dispatches against, e.g.
// for a sub-agent to build a filtered child registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Provider returns the model provider this agent streams against, so a
// delegation tool can hand the same model to a child Agent.
func (a *Agent) Provider() provider.Provider { return a.prov }

// Policy returns the approval policy this agent enforces.
func (a *Agent) Policy() approval.Policy { return a.policy }

// Approver returns the operator-approval channel this agent uses for
// Ask-policy tool calls.
func (a *Agent) Approver() ApprovalRequester { return a.approver }

// Config returns the agent's effective (defaulted) configuration.
func (a *Agent) Config() Config { return a.cfg }

// Submit drives one user turn to completion (§4.4's submit contract).
func (a *Agent) Submit(ctx context.Context, userText string, sink Sink) (Result, error) {
	a.sess.Append(models.NewUserMessage(userText))
	return a.runRounds(ctx, sink)
}

// ReplaceHistoryAndSubmit replaces the full history then proceeds as
// Submit, for edit-and-resubmit flows.
func (a *Agent) ReplaceHistoryAndSubmit(ctx context.Context, messages []models.Message, newUserText string, sink Sink) (Result, error) {
	a.sess.ReplaceHistory(messages)
	return a.Submit(ctx, newUserText, sink)
}

func (a *Agent) runRounds(ctx context.Context, sink Sink) (Result, error) {
	for round := 1; round <= a.cfg.MaxToolRounds; round++ {
		mode := a.Mode()
		toolsForModel := a.registry.SchemasForMode(mode)

		if compaction.ShouldCompact(a.sess.ApproxPromptTokens(), a.cfg.ReservedOutput, a.sess.ContextWindow(), a.cfg.CompactionThreshold) {
			result := compaction.Compact(a.sess)
			sink.Emit(ctx, Event{Kind: EventContextCompacted, TokensBefore: result.TokensBefore, TokensAfter: result.TokensAfter})
		}

		messages := stripImagesIfUnsupported(a.sess.Messages(), a.prov.InputModalities())

		stream, err := a.prov.Complete(ctx, &provider.CompletionRequest{
			Messages: messages,
			Tools:    toolsForModel,
			Stream:   true,
		})
		if err != nil {
			return Result{}, err
		}

		pending := newPendingCalls()
		accumulatedText := ""
		var roundUsage session.Usage // a round's last Usage event wins

	drainStream:
		for ev := range stream {
			switch ev.Kind {
			case provider.EventTextDelta:
				accumulatedText += ev.Text
				sink.Emit(ctx, Event{Kind: EventTextDelta, Text: ev.Text})
			case provider.EventThinkingDelta:
				sink.Emit(ctx, Event{Kind: EventThinkingDelta, Text: ev.Text})
			case provider.EventToolCall:
				pending.accumulate(ev.ToolCall)
			case provider.EventUsage:
				roundUsage = session.Usage{
					Input:      int64(ev.Usage.Input),
					Output:     int64(ev.Usage.Output),
					CacheRead:  int64(ev.Usage.CacheRead),
					CacheWrite: int64(ev.Usage.CacheWrite),
				}
				sink.Emit(ctx, Event{Kind: EventTokenUsage, Usage: TokenUsage(roundUsage)})
			case provider.EventError:
				msg := ""
				if ev.Err != nil {
					msg = ev.Err.Error()
				}
				sink.Emit(ctx, Event{Kind: EventError, Err: msg})
			case provider.EventDone:
				break drainStream
			}
		}
		a.sess.AddUsage(roundUsage)

		a.drainToolEvents(ctx, sink)

		if accumulatedText != "" {
			a.sess.Append(models.NewAssistantText(accumulatedText))
			sink.Emit(ctx, Event{Kind: EventTextComplete, Text: accumulatedText})
		}

		if pending.empty() {
			sink.Emit(ctx, Event{Kind: EventTurnComplete})
			return Result{}, nil
		}

		if aborted := a.executeToolCalls(ctx, pending, sink); aborted {
			return Result{Aborted: true}, nil
		}
	}

	sink.Emit(ctx, Event{Kind: EventError, Err: "max tool rounds exceeded"})
	sink.Emit(ctx, Event{Kind: EventTurnComplete})
	return Result{}, nil
}

// executeToolCalls runs pending's calls serially in ascending index,
// returning true if the turn was aborted because the caller dropped sink
// (observed via ctx cancellation) after the in-flight tool completed.
func (a *Agent) executeToolCalls(ctx context.Context, pending *pendingCalls, sink Sink) bool {
	for _, call := range pending.inOrder() {
		toolCall := models.ToolCall{ID: call.id, Name: call.name, Args: call.arguments}

		sink.Emit(ctx, Event{Kind: EventToolCallStarted, CallID: toolCall.ID, ToolName: toolCall.Name})
		a.sess.Append(models.NewAssistantToolCall(toolCall))

		out := a.resolveAndExecute(ctx, toolCall)

		a.sess.Append(models.NewToolResultMessage(toolCall.ID, out.Parts))
		sink.Emit(ctx, Event{
			Kind:     EventToolCallFinished,
			CallID:   toolCall.ID,
			ToolName: toolCall.Name,
			Output:   out.Content(),
			IsError:  out.IsError,
		})

		a.drainToolEvents(ctx, sink)

		if ctx.Err() != nil {
			return true
		}
	}
	return false
}

func (a *Agent) resolveAndExecute(ctx context.Context, call models.ToolCall) tool.Output {
	t, ok := a.registry.Get(call.Name)
	if !ok {
		return tool.Error("unknown tool: " + call.Name)
	}

	cmd := approval.CommandString(call.Name, call)
	decided := a.policy.Decide(cmd, t.DefaultPolicy())

	switch decided {
	case models.PolicyDeny:
		return tool.Error("denied by policy")
	case models.PolicyAsk:
		approved, err := a.approver.RequestApproval(ctx, call.Name, call)
		if err != nil {
			return tool.Errorf("approval request failed: %s", err)
		}
		if !approved {
			return tool.Error("denied by operator")
		}
	}

	execCtx := tool.WithEventSink(ctx, a.toolEvents)
	return a.registry.Execute(execCtx, call)
}

// drainToolEvents empties the tool-event channel, translating each Event
// into a TodoUpdate/ModeChanged AgentEvent (§4.4: "drain ToolEvent channel
// -> emit TodoUpdate/ModeChanged as appropriate").
func (a *Agent) drainToolEvents(ctx context.Context, sink Sink) {
	for {
		select {
		case ev := <-a.toolEvents:
			if ev.TodoUpdate != nil {
				todos := make([]TodoSnapshot, len(ev.TodoUpdate.Todos))
				for i, t := range ev.TodoUpdate.Todos {
					todos[i] = TodoSnapshot{ID: t.ID, Content: t.Content, Status: string(t.Status)}
				}
				sink.Emit(ctx, Event{Kind: EventTodoUpdate, Todos: todos})
			}
			if ev.ModeChanged != nil {
				a.SetMode(ev.ModeChanged.Mode)
				sink.Emit(ctx, Event{Kind: EventModeChanged, Mode: string(ev.ModeChanged.Mode)})
			}
		default:
			return
		}
	}
}

// stripImagesIfUnsupported implements §4.1's image-stripping rule.
func stripImagesIfUnsupported(messages []models.Message, modalities []provider.Modality) []models.Message {
	if provider.SupportsImage(modalities) {
		return messages
	}
	out := make([]models.Message, len(messages))
	for i, m := range messages {
		out[i] = m.StripImages("[image omitted: model does not support image input]")
	}
	return out
}

// pendingCalls accumulates ToolCallDeltas by index (§4.1: "accumulating
// tool-call arguments").
type pendingCalls struct {
	order   []int
	entries map[int]*pendingCall
}

type pendingCall struct {
	id        string
	name      string
	arguments string
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{entries: make(map[int]*pendingCall)}
}

func (p *pendingCalls) accumulate(d provider.ToolCallDelta) {
	entry, ok := p.entries[d.Index]
	if !ok {
		entry = &pendingCall{id: d.ID, name: d.Name}
		p.entries[d.Index] = entry
		p.order = append(p.order, d.Index)
	}
	entry.arguments += d.Arguments
}

func (p *pendingCalls) empty() bool { return len(p.entries) == 0 }

func (p *pendingCalls) inOrder() []pendingCall {
	indices := append([]int(nil), p.order...)
	sort.Ints(indices)
	out := make([]pendingCall, 0, len(indices))
	for _, idx := range indices {
		out = append(out, *p.entries[idx])
	}
	return out
}
