package session

import (
	"testing"

	"github.com/sven-run/sven/pkg/models"
)

func TestNewWithSystemPrompt(t *testing.T) {
	s := New("be helpful", 0)
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != models.RoleSystem {
		t.Fatalf("expected single leading system message, got %+v", msgs)
	}
	if s.ContextWindow() != DefaultContextWindow {
		t.Fatalf("expected default context window, got %d", s.ContextWindow())
	}
}

func TestNewWithoutSystemPrompt(t *testing.T) {
	s := New("", 1000)
	if len(s.Messages()) != 0 {
		t.Fatalf("expected empty history, got %+v", s.Messages())
	}
	if s.ContextWindow() != 1000 {
		t.Fatalf("expected context window 1000, got %d", s.ContextWindow())
	}
}

func TestAppendAndReplaceHistory(t *testing.T) {
	s := New("sys", 0)
	s.Append(models.NewUserMessage("hello"))
	if len(s.Messages()) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.Messages()))
	}

	s.ReplaceHistory([]models.Message{models.NewUserMessage("only this")})
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Text() != "only this" {
		t.Fatalf("expected replaced history, got %+v", msgs)
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := New("", 0)
	s.Append(models.NewUserMessage("a"))
	msgs := s.Messages()
	msgs[0] = models.NewUserMessage("mutated")
	if s.Messages()[0].Text() != "a" {
		t.Fatalf("Messages() must return an independent copy")
	}
}

func TestUsageAccumulates(t *testing.T) {
	s := New("", 0)
	s.AddUsage(Usage{Input: 10, Output: 5})
	s.AddUsage(Usage{Input: 3, CacheRead: 1})
	got := s.Usage()
	if got.Input != 13 || got.Output != 5 || got.CacheRead != 1 {
		t.Fatalf("unexpected accumulated usage: %+v", got)
	}
}

func TestApproxPromptTokensSumsMessages(t *testing.T) {
	s := New("", 0)
	s.Append(models.NewUserMessage("12345678"))
	s.Append(models.NewUserMessage("abcd"))
	total := s.ApproxPromptTokens()
	if total <= 0 {
		t.Fatalf("expected positive token estimate, got %d", total)
	}
	want := models.NewUserMessage("12345678").ApproxTokens() + models.NewUserMessage("abcd").ApproxTokens()
	if total != want {
		t.Fatalf("expected the sum of per-message estimates %d, got %d", want, total)
	}
}
