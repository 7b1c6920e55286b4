// Package bootstrap assembles a runnable Sven node from an operator's
// Profile: it picks a model provider, compiles the approval policy,
// populates the tool registry (builtins, the GDB session group,
// delegation, and P2P roster tools when enabled), and wires the result
// into both a standalone Agent and the control-plane's AgentFactory.
//
// It exists so cmd/sven stays a thin flag-parsing shell, the same split
// the teacher draws between its CLI entrypoints and internal/bootstrap
// equivalent wiring code.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sven-run/sven/internal/agent"
	"github.com/sven-run/sven/internal/approval"
	"github.com/sven-run/sven/internal/controlplane"
	"github.com/sven-run/sven/internal/delegate"
	"github.com/sven-run/sven/internal/observability"
	"github.com/sven-run/sven/internal/p2p"
	"github.com/sven-run/sven/internal/p2p/discovery"
	"github.com/sven-run/sven/internal/p2p/identity"
	"github.com/sven-run/sven/internal/p2p/protocol"
	"github.com/sven-run/sven/internal/p2p/roster"
	"github.com/sven-run/sven/internal/provider"
	"github.com/sven-run/sven/internal/provider/anthropic"
	"github.com/sven-run/sven/internal/provider/mock"
	"github.com/sven-run/sven/internal/provider/openai"
	"github.com/sven-run/sven/internal/session"
	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/internal/tool/builtin"
	"github.com/sven-run/sven/internal/tool/gdb"
	"github.com/sven-run/sven/pkg/models"
)

// ProviderProfile selects and configures one of the C1 provider
// implementations.
type ProviderProfile struct {
	Name    string // "anthropic", "openai", or "mock"
	APIKey  string
	BaseURL string
	Model   string
}

// Version is this node's AgentCard.Version, reported to peers on Announce
// for compatibility checks.
const Version = "0.1.0"

// PeerProfile configures the optional P2P fabric (§4.7). A zero value
// leaves the fabric disabled: no delegate_to_peer/list_peers tools, no
// Node is constructed.
type PeerProfile struct {
	Enabled          bool
	Role             p2p.Role
	ListenAddr       string
	Rooms            []string
	IdentityPath     string
	AllowlistPath    string
	DisplayName      string
	Description      string
	UseGitDiscovery  bool
	GitDiscoveryRepo string
}

// Profile is the complete operator configuration bootstrap needs to build
// a node: which provider, what approval policy, what working directory
// the agent's file tools operate against, and whether the P2P fabric is
// active.
type Profile struct {
	Provider ProviderProfile
	Approval approval.Policy
	Agent    agent.Config

	WorkingDir string

	// MemoryPath overrides builtin.Memory's default KV-store location.
	MemoryPath string
	// BraveAPIKey gates builtin.WebSearch; empty disables the tool's
	// network calls (it still registers, per §4.2's "gated feature"
	// treatment, and reports a configuration error at call time).
	BraveAPIKey string

	GDB gdb.Config
	P2P PeerProfile

	Runtime models.RuntimeContext

	Logger *slog.Logger

	// Metrics and Tracer, when set, instrument every provider Complete
	// call and tool Execute call built by this profile. Callers construct
	// these once per process (observability.NewMetrics registers against
	// the default Prometheus registry and panics on a second call) and
	// share the same values across every bootstrap.Build invocation.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

func (p Profile) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// buildProvider constructs the concrete C1 provider named by the profile.
func buildProvider(pp ProviderProfile) (provider.Provider, error) {
	switch pp.Name {
	case "", "anthropic":
		return anthropic.New(anthropic.Config{APIKey: pp.APIKey, BaseURL: pp.BaseURL, Model: pp.Model})
	case "openai":
		return openai.New(openai.Config{APIKey: pp.APIKey, BaseURL: pp.BaseURL, Model: pp.Model})
	case "mock":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown provider %q", pp.Name)
	}
}

// Node is a fully wired Sven runtime: a standalone Agent ready for
// run_headless use, the shared infrastructure a control-plane Store's
// AgentFactory closes over, and (when P2P is enabled) a live fabric Node.
type Node struct {
	Provider provider.Provider
	Policy   approval.Policy

	P2PNode *p2p.Node

	profile Profile
	card    roster.AgentCard
}

// Build assembles every C1-C9 component named by profile but does not
// start the P2P fabric or construct any Agent yet — callers get a Node
// whose NewAgent/NewControlPlaneFactory methods (and P2PNode.Serve) do
// that on demand, matching the lazy-construction pattern internal/delegate and
// internal/controlplane already use for agents built after their tool
// registries exist.
func Build(profile Profile) (*Node, error) {
	prov, err := buildProvider(profile.Provider)
	if err != nil {
		return nil, err
	}

	if profile.Metrics != nil || profile.Tracer != nil {
		prov = observability.Instrument(prov, profile.Metrics, profile.Tracer)
	}

	n := &Node{Provider: prov, Policy: profile.Approval, profile: profile}

	if profile.P2P.Enabled {
		p2pNode, err := n.buildP2PNode(profile.P2P)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: build p2p node: %w", err)
		}
		n.P2PNode = p2pNode
	}

	return n, nil
}

// registryFor builds a fresh tool.Registry for one Agent: every builtin,
// the GDB session group, the local delegation tool, and (when P2P is
// enabled) the roster tools. owner is assigned by the caller once the
// Agent it will belong to exists, following internal/delegate's
// lazy-closure convention.
func (n *Node) registryFor(owner func() *agent.Agent) *tool.Registry {
	reg := tool.NewRegistry()

	tools := []tool.Tool{
		builtin.ReadFile{},
		builtin.WriteFile{},
		builtin.EditFile{},
		builtin.DeleteFile{},
		builtin.ListDir{},
		builtin.Glob{},
		builtin.Grep{},
		builtin.RunTerminal{},
		builtin.WebFetch{},
		builtin.WebSearch{APIKey: n.profile.BraveAPIKey},
		builtin.TodoWrite{},
		&builtin.Memory{Path: n.profile.MemoryPath},
		builtin.AskQuestion{Channel: n.profile.askChannel()},
		builtin.SwitchMode{Current: func() models.AgentMode { return owner().Mode() }},
	}
	tools = append(tools, gdb.Tools(n.profile.GDB)...)
	tools = append(tools, delegate.New(owner, nil))
	if n.P2PNode != nil {
		tools = append(tools, p2p.ListPeersTool{Node: n.P2PNode}, p2p.DelegateToPeerTool{Node: n.P2PNode})
	}

	for _, t := range tools {
		if n.profile.Metrics != nil || n.profile.Tracer != nil {
			t = observability.InstrumentTool(t, n.profile.Metrics, n.profile.Tracer)
		}
		reg.Register(t)
	}

	return reg
}

// askChannel returns nil; headless and control-plane operation have no
// interactive operator channel to pose ask_question to, so the tool
// reports "no operator channel configured" rather than blocking forever
// (builtin.AskQuestion's own zero-value behavior).
func (p Profile) askChannel() builtin.OperatorChannel { return nil }

// NewAgent builds one standalone Agent, e.g. for run_headless(workflow).
// approver is typically agent.AutoApprover{} for unattended runs, or a
// channel-backed implementation that prompts the operator's terminal.
func (n *Node) NewAgent(mode models.AgentMode, approver agent.ApprovalRequester) *agent.Agent {
	var ag *agent.Agent
	registry := n.registryFor(func() *agent.Agent { return ag })

	sess := session.New("", session.DefaultContextWindow)
	ag = agent.New(n.profile.Agent, sess, registry, n.Provider, n.Policy, approver, n.profile.Runtime, mode)
	return ag
}

// NewControlPlaneFactory returns an AgentFactory a controlplane.Store can
// use to build a fresh Agent per control-plane session (§4.8). workingDir
// is accepted for parity with the §4.8 NewSession{working_dir} field; this
// implementation threads it through RuntimeContext.ProjectRoot, the same
// field the file tools already resolve relative paths against.
func (n *Node) NewControlPlaneFactory() controlplane.AgentFactory {
	return func(mode models.AgentMode, workingDir string, approver agent.ApprovalRequester) (*agent.Agent, error) {
		var ag *agent.Agent
		registry := n.registryFor(func() *agent.Agent { return ag })

		rt := n.profile.Runtime
		if workingDir != "" {
			rt.ProjectRoot = workingDir
		}

		sess := session.New("", session.DefaultContextWindow)
		ag = agent.New(n.profile.Agent, sess, registry, n.Provider, n.Policy, approver, rt, mode)
		return ag, nil
	}
}

// buildP2PNode loads identity and the allowlist/roster and constructs a
// p2p.Node whose OnTask handler drives a fresh bounded sub-agent per
// inbound Task, the local analogue of internal/delegate's in-process
// delegation (§4.6, §4.7: "an inbound Task is serviced like any other
// delegation target").
func (n *Node) buildP2PNode(pp PeerProfile) (*p2p.Node, error) {
	id, err := identity.LoadOrCreate(pp.IdentityPath)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	allow, err := roster.LoadAllowlist(pp.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("load allowlist: %w", err)
	}

	var disc discovery.Provider
	if pp.UseGitDiscovery {
		disc = discovery.NewGitProvider(pp.GitDiscoveryRepo)
	} else {
		disc = discovery.NewMemoryProvider()
	}

	card := roster.AgentCard{
		PeerID:       id.PeerID(),
		DisplayName:  pp.DisplayName,
		Description:  pp.Description,
		Capabilities: []string{"agent", "delegate", "gdb"},
		Version:      Version,
	}
	n.card = card

	cfg := p2p.Config{
		Role:       pp.Role,
		ListenAddr: pp.ListenAddr,
		Rooms:      pp.Rooms,
		Identity:   id,
		Discovery:  disc,
		Allowlist:  allow,
		Roster:     roster.NewRoster(),
		Card:       card,
		OnTask:     n.onPeerTask,
		Logger:     n.profile.logger().With("component", "p2p"),
	}

	node := p2p.NewNode(cfg)
	n.P2PNode = node
	return node, nil
}

// onPeerTask services one inbound peer Task by driving a fresh Agent to
// completion and collecting its final text, mirroring
// internal/delegate.Tool.Execute but for a remote rather than local
// caller. The task's prompt is its Description, joined with any Text
// payload blocks; a JSON payload block of the form {"mode": "..."} selects
// the sub-agent's mode, defaulting to agent mode (§4.7's "an inbound Task
// is serviced like any other delegation target").
func (n *Node) onPeerTask(ctx context.Context, req protocol.TaskRequest) protocol.TaskResponse {
	start := time.Now()
	card := n.card

	mode := peerTaskMode(req)
	ag := n.NewAgent(mode, agent.AutoApprover{})

	var text string
	sink := agent.NewCallbackSink(func(_ context.Context, e agent.Event) {
		if e.Kind == agent.EventTextDelta {
			text += e.Text
		}
	})

	prompt := req.Description
	for _, block := range req.Payload {
		if t, ok := block.AsText(); ok {
			prompt += "\n" + t
		}
	}

	if _, err := ag.Submit(ctx, prompt, sink); err != nil {
		return protocol.TaskResponse{
			RequestID:  req.ID,
			Agent:      card,
			Status:     protocol.Failed(err.Error()),
			DurationMs: protocol.ElapsedMs(start),
		}
	}
	if text == "" {
		text = "(sub-agent produced no text output)"
	}
	return protocol.TaskResponse{
		RequestID:  req.ID,
		Agent:      card,
		Result:     []protocol.ContentBlock{protocol.TextBlock(text)},
		Status:     protocol.Completed(),
		DurationMs: protocol.ElapsedMs(start),
	}
}

// peerTaskMode extracts an agent mode from req's JSON payload blocks
// ({"mode": "..."}), defaulting to agent mode for plain-text or
// unrecognized requests.
func peerTaskMode(req protocol.TaskRequest) models.AgentMode {
	for _, block := range req.Payload {
		if block.Kind != protocol.ContentJSON || block.Json == nil {
			continue
		}
		fields, ok := block.Json.Value.(map[string]any)
		if !ok {
			if m, ok := block.Json.Value.(map[string]string); ok {
				fields = map[string]any{}
				for k, v := range m {
					fields[k] = v
				}
			}
		}
		raw, ok := fields["mode"].(string)
		if !ok {
			continue
		}
		switch mode := models.AgentMode(raw); mode {
		case models.ModeResearch, models.ModePlan, models.ModeAgent:
			return mode
		}
	}
	return models.ModeAgent
}

// DefaultConfigDir returns the operator's per-user Sven config directory
// (§6 "Persistent state"), creating it if absent.
func DefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("bootstrap: resolve user config dir: %w", err)
	}
	path := filepath.Join(dir, "sven")
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", fmt.Errorf("bootstrap: create config dir %s: %w", path, err)
	}
	return path, nil
}
