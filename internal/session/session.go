// Package session owns conversation history and usage accounting for a
// single Agent (C3). The invariants described in §3 (at most one leading
// system message, and tool results never preceding the calls they answer)
// are kept by its callers; Append and ReplaceHistory do not check them.
package session

import (
	"sync"

	"github.com/sven-run/sven/pkg/models"
)

// DefaultContextWindow mirrors provider.DefaultContextWindow for sessions
// built before a provider is known.
const DefaultContextWindow = 128_000

// Usage is the cumulative token accounting for a Session.
type Usage struct {
	Input      int64
	Output     int64
	CacheRead  int64
	CacheWrite int64
}

// Add folds u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.Input += u2.Input
	u.Output += u2.Output
	u.CacheRead += u2.CacheRead
	u.CacheWrite += u2.CacheWrite
}

// Session holds the chronological message list plus cumulative usage
// counters for one Agent (§3). Exported methods are safe for concurrent use;
// the Agent is the only writer in practice but sub-agents and control-plane
// readers may observe it concurrently.
type Session struct {
	mu                   sync.RWMutex
	messages             []models.Message
	systemPromptOverride string
	usage                Usage
	contextWindow         int
}

// New creates a Session with the given system prompt (empty for none) and
// context window size.
func New(systemPrompt string, contextWindow int) *Session {
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	s := &Session{
		systemPromptOverride: systemPrompt,
		contextWindow:        contextWindow,
	}
	if systemPrompt != "" {
		s.messages = append(s.messages, models.NewSystemMessage(systemPrompt))
	}
	return s
}

// Append adds msg to the history.
func (s *Session) Append(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Messages returns a copy of the current history.
func (s *Session) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ReplaceHistory discards all messages and installs msgs in their place,
// used by edit-and-resubmit (§4.4) and by compaction.
func (s *Session) ReplaceHistory(msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]models.Message(nil), msgs...)
}

// ContextWindow returns the model's maximum prompt size.
func (s *Session) ContextWindow() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contextWindow
}

// SetContextWindow updates the context window, e.g. after a provider switch.
func (s *Session) SetContextWindow(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contextWindow = n
}

// AddUsage folds u into the session's cumulative counters.
func (s *Session) AddUsage(u Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.Add(u)
}

// Usage returns the cumulative usage counters.
func (s *Session) Usage() Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// ApproxPromptTokens sums the §3 per-message approximation across the
// current history.
func (s *Session) ApproxPromptTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, m := range s.messages {
		total += m.ApproxTokens()
	}
	return total
}
