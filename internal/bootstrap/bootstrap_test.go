package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sven-run/sven/internal/agent"
	"github.com/sven-run/sven/internal/p2p/protocol"
	"github.com/sven-run/sven/internal/provider/mock"
	"github.com/sven-run/sven/pkg/models"
)

func mockProfile(t *testing.T) Profile {
	t.Helper()
	return Profile{
		Provider:   ProviderProfile{Name: "mock"},
		WorkingDir: t.TempDir(),
		MemoryPath: filepath.Join(t.TempDir(), "memory.md"),
	}
}

func TestBuildWithMockProviderSucceeds(t *testing.T) {
	node, err := Build(mockProfile(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if node.Provider == nil {
		t.Fatalf("expected a provider to be wired")
	}
	if node.P2PNode != nil {
		t.Fatalf("expected no p2p node when PeerProfile.Enabled is false")
	}
}

func TestBuildUnknownProviderErrors(t *testing.T) {
	profile := mockProfile(t)
	profile.Provider.Name = "not-a-real-provider"
	if _, err := Build(profile); err == nil {
		t.Fatalf("expected an error for an unrecognized provider name")
	}
}

func TestNewAgentRegistersExpectedTools(t *testing.T) {
	node, err := Build(mockProfile(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ag := node.NewAgent(models.ModeAgent, agent.AutoApprover{})

	names := ag.Registry().AllNames()
	want := []string{
		"read_file", "write_file", "edit_file", "delete_file", "list_dir",
		"glob", "grep", "run_terminal", "web_fetch", "web_search",
		"todo_write", "update_memory", "ask_question", "switch_mode", "delegate",
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, w := range want {
		if !seen[w] {
			t.Errorf("expected registry to contain tool %q, got %v", w, names)
		}
	}
	// No p2p tools without an enabled PeerProfile.
	if seen["list_peers"] || seen["delegate_to_peer"] {
		t.Errorf("did not expect p2p tools to be registered without PeerProfile.Enabled")
	}
}

func TestNewAgentSwitchModeReflectsOwner(t *testing.T) {
	node, err := Build(mockProfile(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ag := node.NewAgent(models.ModeResearch, agent.AutoApprover{})
	if ag.Mode() != models.ModeResearch {
		t.Fatalf("expected the agent to start in the requested mode")
	}
}

func TestNewControlPlaneFactoryProducesWorkingAgent(t *testing.T) {
	node, err := Build(mockProfile(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	factory := node.NewControlPlaneFactory()

	ag, err := factory(models.ModeAgent, t.TempDir(), agent.AutoApprover{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if ag == nil {
		t.Fatalf("expected a non-nil agent from the factory")
	}
	if ag.Mode() != models.ModeAgent {
		t.Fatalf("expected the factory to honor the requested mode")
	}
}

func TestOnPeerTaskRunsSubAgentAndReturnsText(t *testing.T) {
	profile := mockProfile(t)
	profile.Provider.Name = "mock"
	node, err := Build(profile)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Swap in a scripted mock provider so the sub-agent produces text.
	node.Provider = mock.New(mock.Text("delegated reply"))

	req := protocol.NewTaskRequest("", "do it", []protocol.ContentBlock{
		protocol.JSONBlock(map[string]string{"mode": "agent"}),
	})
	resp := node.onPeerTask(context.Background(), req)
	if resp.IsError() {
		t.Fatalf("unexpected error response: %+v", resp)
	}
	if resp.Text() != "delegated reply" {
		t.Fatalf("unexpected response text: %q", resp.Text())
	}
	if resp.RequestID != req.ID {
		t.Fatalf("expected response to echo request id %q, got %q", req.ID, resp.RequestID)
	}
	if resp.DurationMs < 0 {
		t.Fatalf("expected a non-negative duration, got %d", resp.DurationMs)
	}
}

func TestOnPeerTaskDefaultsUnknownModeToAgent(t *testing.T) {
	profile := mockProfile(t)
	node, err := Build(profile)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	node.Provider = mock.New(mock.Text("ok"))

	req := protocol.NewTaskRequest("", "x", []protocol.ContentBlock{
		protocol.JSONBlock(map[string]string{"mode": "not-a-real-mode"}),
	})
	resp := node.onPeerTask(context.Background(), req)
	if resp.IsError() {
		t.Fatalf("unexpected error response: %+v", resp)
	}
}
