// Package mock provides a scriptable provider.Provider for driving the
// agent turn engine's test scenarios deterministically.
package mock

import (
	"context"

	"github.com/sven-run/sven/internal/provider"
)

// Provider replays a fixed sequence of rounds. Each call to Complete
// consumes the next round; calling Complete more times than there are
// rounds replays the last round's events.
type Provider struct {
	Rounds        [][]provider.ResponseEvent
	Calls         []*provider.CompletionRequest
	modalities    []provider.Modality
	contextWindow int
	next          int
}

// New builds a Provider that replays rounds in order.
func New(rounds ...[]provider.ResponseEvent) *Provider {
	return &Provider{
		Rounds:        rounds,
		modalities:    []provider.Modality{provider.ModalityText},
		contextWindow: provider.DefaultContextWindow,
	}
}

// WithModalities overrides the advertised input modalities (e.g. to
// exercise §4.1 image stripping against a text-only model).
func (p *Provider) WithModalities(m ...provider.Modality) *Provider {
	p.modalities = m
	return p
}

// WithContextWindow overrides the advertised context window (for
// compaction-trigger scenarios).
func (p *Provider) WithContextWindow(n int) *Provider {
	p.contextWindow = n
	return p
}

func (p *Provider) Name() string                       { return "mock" }
func (p *Provider) ModelName() string                  { return "mock-model" }
func (p *Provider) ContextWindow() int                 { return p.contextWindow }
func (p *Provider) InputModalities() []provider.Modality { return p.modalities }

func (p *Provider) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	p.Calls = append(p.Calls, req)

	round := p.next
	if round >= len(p.Rounds) {
		round = len(p.Rounds) - 1
	}
	if round < 0 {
		return nil, context.Canceled
	}
	p.next++

	events := make(chan provider.ResponseEvent, len(p.Rounds[round]))
	for _, ev := range p.Rounds[round] {
		events <- ev
	}
	close(events)
	return events, nil
}

// Text builds a ToolCallDelta-free round of plain text followed by Done —
// the S1 scenario shape.
func Text(chunks ...string) []provider.ResponseEvent {
	var out []provider.ResponseEvent
	for _, c := range chunks {
		out = append(out, provider.TextDeltaEvent(c))
	}
	return append(out, provider.DoneEvent())
}

// ToolCall builds a single-fragment tool call round followed by Done —
// the S2 scenario shape.
func ToolCall(index int, id, name, arguments string) []provider.ResponseEvent {
	return []provider.ResponseEvent{
		provider.ToolCallEvent(provider.ToolCallDelta{Index: index, ID: id, Name: name, Arguments: arguments}),
		provider.DoneEvent(),
	}
}
