package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures span export. A zero value disables export;
// StartTurn and StartTool still return usable (non-recording) spans from
// the global no-op provider.
type TraceConfig struct {
	ServiceName string
	// Export enables the stdout span exporter, useful for an operator
	// running with --trace to watch turns and tool calls locally without
	// standing up a collector.
	Export bool
}

// Tracer wraps the turn engine's and tool registry's spans (§4.4/§4.5 from
// the agent's perspective: one span per model round, one per tool call).
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer and a shutdown func that must run on exit.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sven"
	}
	if !cfg.Export {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown
}

// StartTurn spans one agent round trip to a model.
func (t *Tracer) StartTurn(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("llm.%s", provider), trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("llm.provider", provider), attribute.String("llm.model", model)))
}

// StartTool spans one tool execution.
func (t *Tracer) StartTool(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("tool.%s", name), trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("tool.name", name)))
}

// RecordError marks span as failed, matching §4.4's is_error tool outcome
// or a provider stream's terminal Error event.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
