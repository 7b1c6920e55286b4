package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sven-run/sven/internal/provider"
	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// InstrumentedProvider wraps a provider.Provider, recording a metrics
// observation and a trace span per Complete call.
type InstrumentedProvider struct {
	provider.Provider
	Metrics *Metrics
	Tracer  *Tracer
}

// Instrument wraps p; a nil Metrics/Tracer on the returned value is a
// harmless no-op, so callers can instrument unconditionally.
func Instrument(p provider.Provider, m *Metrics, t *Tracer) provider.Provider {
	return &InstrumentedProvider{Provider: p, Metrics: m, Tracer: t}
}

func (p *InstrumentedProvider) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	start := time.Now()
	if p.Tracer != nil {
		var span trace.Span
		ctx, span = p.Tracer.StartTurn(ctx, p.Provider.Name(), p.Provider.ModelName())
		defer span.End()
	}

	events, err := p.Provider.Complete(ctx, req)
	if err != nil {
		p.Metrics.ObserveLLMRequest(p.Provider.Name(), p.Provider.ModelName(), true, time.Since(start))
		return nil, err
	}

	out := make(chan provider.ResponseEvent)
	go func() {
		defer close(out)
		sawError := false
		for ev := range events {
			if ev.Kind == provider.EventError {
				sawError = true
			}
			out <- ev
		}
		p.Metrics.ObserveLLMRequest(p.Provider.Name(), p.Provider.ModelName(), sawError, time.Since(start))
	}()
	return out, nil
}

// InstrumentedTool wraps a tool.Tool, recording a metrics observation and
// a trace span per Execute call.
type InstrumentedTool struct {
	tool.Tool
	Metrics *Metrics
	Tracer  *Tracer
}

// InstrumentTool wraps t for metrics/tracing.
func InstrumentTool(t tool.Tool, m *Metrics, tr *Tracer) tool.Tool {
	return &InstrumentedTool{Tool: t, Metrics: m, Tracer: tr}
}

func (t *InstrumentedTool) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	start := time.Now()
	if t.Tracer != nil {
		var span trace.Span
		ctx, span = t.Tracer.StartTool(ctx, t.Tool.Name())
		defer span.End()
	}
	out := t.Tool.Execute(ctx, call)
	t.Metrics.ObserveToolExecution(t.Tool.Name(), out.IsError, time.Since(start))
	return out
}
