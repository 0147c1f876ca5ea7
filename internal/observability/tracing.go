package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer produces the spans of the request pipeline: one per inbound HTTP
// request, one per ask, a child per provider attempt and one per ledger
// query. A nil *Tracer is valid: its spans are non-recording and never touch
// the span already in ctx.
type Tracer struct {
	tracer trace.Tracer
}

// TraceConfig configures span export.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint string

	// SamplingRate is the fraction of requests traced. Zero means all.
	SamplingRate float64

	Attributes     map[string]string
	EnableInsecure bool
}

// NewTracer creates a tracer and the function that flushes it on shutdown.
// Without an Endpoint, or when the exporter cannot be built, spans go to the
// global provider, which is a no-op unless something else installed one.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "scholar"
	}
	fallback := &Tracer{tracer: otel.Tracer(config.ServiceName)}
	noop := func(context.Context) error { return nil }
	if config.Endpoint == "" {
		return fallback, noop
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return fallback, noop
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(buildResource(config)),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(config.SamplingRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Tracer{tracer: provider.Tracer(config.ServiceName)}, provider.Shutdown
}

// NewTracerFromProvider wraps an existing provider. Tests pass one backed by
// a span recorder.
func NewTracerFromProvider(provider trace.TracerProvider, serviceName string) *Tracer {
	if serviceName == "" {
		serviceName = "scholar"
	}
	return &Tracer{tracer: provider.Tracer(serviceName)}
}

func buildResource(config TraceConfig) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	for k, v := range config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return resource.Default()
	}
	return res
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate == 0, rate >= 1:
		return sdktrace.AlwaysSample()
	case rate < 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

func (t *Tracer) start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// RecordError marks span failed with err.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceRequest starts the span covering one orchestrated ask.
func (t *Tracer) TraceRequest(ctx context.Context, requestID, task string) (context.Context, trace.Span) {
	return t.start(ctx, "scholar.request", trace.SpanKindInternal,
		attribute.String("request.id", requestID),
		attribute.String("request.task", task),
	)
}

// TraceAttempt starts the span for one candidate. index counts from 1.
func (t *Tracer) TraceAttempt(ctx context.Context, provider, model string, index int) (context.Context, trace.Span) {
	return t.start(ctx, "llm."+provider, trace.SpanKindClient,
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
		attribute.Int("llm.attempt", index),
	)
}

// EndAttempt records how an attempt went and ends its span.
func (t *Tracer) EndAttempt(span trace.Span, reason string, elapsed time.Duration, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int64("llm.duration_ms", elapsed.Milliseconds()))
	if err != nil {
		span.SetAttributes(attribute.String("llm.failure_reason", reason))
		t.RecordError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceDatabaseQuery starts a span for a ledger query.
func (t *Tracer) TraceDatabaseQuery(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return t.start(ctx, "db."+operation, trace.SpanKindClient,
		attribute.String("db.operation", operation),
		attribute.String("db.table", table),
	)
}

// TraceHTTPRequest starts the server span for an inbound request. route
// should be a bounded label, not the raw path.
func (t *Tracer) TraceHTTPRequest(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return t.start(ctx, method+" "+route, trace.SpanKindServer,
		attribute.String("http.method", method),
		attribute.String("http.route", route),
	)
}

// ExtractContext continues a trace started by the caller, if the headers
// carry one.
func (t *Tracer) ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// GetTraceID returns the active trace id, or "" outside a recording trace.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
