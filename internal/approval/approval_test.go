package approval

import (
	"testing"

	"github.com/sven-run/sven/pkg/models"
)

func TestDecideDenyWinsOverAutoApprove(t *testing.T) {
	p := Policy{AutoApprove: []string{"rm *"}, Deny: []string{"rm -rf *"}}
	got := p.Decide("rm -rf /tmp", models.PolicyAsk)
	if got != models.PolicyDeny {
		t.Fatalf("expected deny pattern to win, got %s", got)
	}
}

func TestDecideAutoApproveMatch(t *testing.T) {
	p := Policy{AutoApprove: []string{"echo *"}}
	got := p.Decide("echo ok", models.PolicyAsk)
	if got != models.PolicyAuto {
		t.Fatalf("expected auto_approve match, got %s", got)
	}
}

func TestDecideFallsBackToDefault(t *testing.T) {
	p := Policy{}
	got := p.Decide("anything", models.PolicyAsk)
	if got != models.PolicyAsk {
		t.Fatalf("expected fallback to tool default, got %s", got)
	}
}

func TestDecideCaseSensitive(t *testing.T) {
	p := Policy{AutoApprove: []string{"ECHO*"}}
	got := p.Decide("echo hi", models.PolicyDeny)
	if got != models.PolicyDeny {
		t.Fatalf("expected case-sensitive mismatch to fall through, got %s", got)
	}
}

func TestCommandStringForTerminal(t *testing.T) {
	got := CommandString("run_terminal", models.ToolCall{Args: `{"command":"rm -rf /"}`})
	if got != "rm -rf /" {
		t.Fatalf("expected raw command, got %q", got)
	}
}

func TestCommandStringForFileTool(t *testing.T) {
	got := CommandString("read_file", models.ToolCall{Args: `{"path":"main.go"}`})
	if got != "read_file main.go" {
		t.Fatalf("expected '<tool> <arg>', got %q", got)
	}
}

func TestCommandStringMalformedArgs(t *testing.T) {
	got := CommandString("read_file", models.ToolCall{Args: `not json`})
	if got != "read_file" {
		t.Fatalf("expected bare tool name on malformed args, got %q", got)
	}
}
