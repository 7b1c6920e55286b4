package controlplane

import (
	"context"
	"testing"
	"time"

	"github.com/sven-run/sven/internal/agent"
	"github.com/sven-run/sven/internal/approval"
	"github.com/sven-run/sven/internal/provider/mock"
	"github.com/sven-run/sven/internal/session"
	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

func factoryWith(prov *mock.Provider) AgentFactory {
	return func(mode models.AgentMode, workingDir string, approver agent.ApprovalRequester) (*agent.Agent, error) {
		sess := session.New("", 0)
		return agent.New(agent.Config{}, sess, tool.NewRegistry(), prov, approval.Policy{}, approver, models.RuntimeContext{}, mode), nil
	}
}

func TestNewSessionGeneratesIDWhenEmpty(t *testing.T) {
	store := NewStore(factoryWith(mock.New(mock.Text("hi"))))
	sess, err := store.NewSession("", models.ModeAgent, "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if sess.ID == "" {
		t.Fatalf("expected a generated session id")
	}
	if got, ok := store.Get(sess.ID); !ok || got != sess {
		t.Fatalf("expected Get to return the same session")
	}
}

func TestSendInputBroadcastsTextAndReturnsIdle(t *testing.T) {
	store := NewStore(factoryWith(mock.New(mock.Text("hello world"))))
	sess, err := store.NewSession("s1", models.ModeAgent, "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sub := sess.Subscribe()
	defer sess.Unsubscribe(sub)

	if err := sess.SendInput(context.Background(), "hi"); err != nil {
		t.Fatalf("SendInput: %v", err)
	}
	if sess.State() != StateIdle {
		t.Fatalf("expected idle after completion, got %s", sess.State())
	}

	var sawComplete bool
	deadline := time.After(time.Second)
drain:
	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind == EvtOutputComplete {
				sawComplete = true
				break drain
			}
		case <-deadline:
			break drain
		}
	}
	if !sawComplete {
		t.Fatalf("expected an EvtOutputComplete event")
	}
}

func TestCancelMovesToCancelledTerminalState(t *testing.T) {
	store := NewStore(factoryWith(mock.New(mock.Text("hi"))))
	sess, err := store.NewSession("s2", models.ModeAgent, "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sess.Cancel()
	if !sess.State().Terminal() {
		t.Fatalf("expected a terminal state after Cancel, got %s", sess.State())
	}
	if err := sess.SendInput(context.Background(), "too late"); err == nil {
		t.Fatalf("expected SendInput to reject a terminal session")
	}
}

func TestApproveResolvesPendingDecision(t *testing.T) {
	store := NewStore(factoryWith(mock.New(mock.Text("hi"))))
	sess, err := store.NewSession("s3", models.ModeAgent, "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if sess.Approve("nonexistent") {
		t.Fatalf("expected Approve to report false for an unknown call id")
	}

	decision := make(chan bool, 1)
	sess.approvals["call-1"] = decision
	if !sess.Approve("call-1") {
		t.Fatalf("expected Approve to resolve a pending call")
	}
	if approved := <-decision; !approved {
		t.Fatalf("expected approved=true")
	}
}

func TestBroadcastSignalsGatewayErrorOnLaggingSubscriber(t *testing.T) {
	store := NewStore(factoryWith(mock.New(mock.Text("hi"))))
	sess, err := store.NewSession("s4", models.ModeAgent, "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sub := sess.Subscribe()
	defer sess.Unsubscribe(sub)

	for i := 0; i < 100; i++ {
		sess.broadcast(ControlEvent{Kind: EvtOutputDelta, SessionID: sess.ID, Delta: "x"})
	}

	var sawGatewayError bool
	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind == EvtGatewayError && evt.Code == "503" {
				sawGatewayError = true
			}
		default:
			goto done
		}
	}
done:
	if !sawGatewayError {
		t.Fatalf("expected a lagging subscriber to eventually receive a gateway_error{code:503}")
	}
}

func TestListSummarizesEverySession(t *testing.T) {
	store := NewStore(factoryWith(mock.New(mock.Text("hi"))))
	if _, err := store.NewSession("a", models.ModeAgent, ""); err != nil {
		t.Fatalf("NewSession a: %v", err)
	}
	if _, err := store.NewSession("b", models.ModePlan, ""); err != nil {
		t.Fatalf("NewSession b: %v", err)
	}
	infos := store.List()
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
}
