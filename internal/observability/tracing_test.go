package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return NewTracerFromProvider(provider, "scholar-test"), recorder
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewTracer(t *testing.T) {
	tests := []struct {
		name   string
		config TraceConfig
	}{
		{
			name:   "without endpoint (no-op)",
			config: TraceConfig{ServiceName: "scholar"},
		},
		{
			name: "with endpoint",
			config: TraceConfig{
				ServiceName:    "scholar",
				ServiceVersion: "test",
				Endpoint:       "localhost:4317",
				EnableInsecure: true,
				SamplingRate:   0.5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, shutdown := NewTracer(tt.config)
			defer func() { _ = shutdown(context.Background()) }()

			if tracer == nil || tracer.tracer == nil {
				t.Fatal("NewTracer() returned an unusable tracer")
			}
		})
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.TraceAttempt(context.Background(), "google", "gemini-2.5-flash", 1)
	if ctx == nil || span == nil {
		t.Fatal("nil tracer must return a usable span")
	}
	tracer.EndAttempt(span, "timeout", time.Second, errors.New("boom"))
}

func TestNilTracerLeavesParentSpanAlone(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, parent := provider.Tracer("caller").Start(context.Background(), "http.request")

	var tracer *Tracer
	reqCtx, req := tracer.TraceRequest(ctx, "req-1", "analysis")
	_, attempt := tracer.TraceAttempt(reqCtx, "google", "gemini-2.5-flash", 1)
	tracer.EndAttempt(attempt, "timeout", time.Second, errors.New("boom"))
	tracer.RecordError(req, errors.New("exhausted"))
	req.End()

	if n := len(recorder.Ended()); n != 0 {
		t.Fatalf("nil tracer ended %d spans of the caller", n)
	}
	if req.IsRecording() {
		t.Fatal("nil tracer returned a recording span")
	}

	parent.End()
	ended := recorder.Ended()
	if len(ended) != 1 || ended[0].Name() != "http.request" {
		t.Fatalf("ended = %d spans", len(ended))
	}
	if ended[0].Status().Code != codes.Unset {
		t.Fatalf("parent status = %v, want Unset", ended[0].Status().Code)
	}
	if len(ended[0].Attributes()) != 0 {
		t.Fatalf("parent attributes = %v", ended[0].Attributes())
	}
}

func TestTraceAttempt(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	ctx, root := tracer.TraceRequest(context.Background(), "req-1", "analysis")
	_, ok := tracer.TraceAttempt(ctx, "openrouter", "deepseek/deepseek-r1:free", 1)
	tracer.EndAttempt(ok, "", 40*time.Millisecond, nil)
	_, failed := tracer.TraceAttempt(ctx, "google", "gemini-2.5-pro", 2)
	tracer.EndAttempt(failed, "rate_limit", 10*time.Millisecond, errors.New("429"))
	root.End()

	ended := recorder.Ended()
	if len(ended) != 3 {
		t.Fatalf("ended spans = %d, want 3", len(ended))
	}

	first := ended[0]
	if first.Name() != "llm.openrouter" {
		t.Fatalf("span name = %q", first.Name())
	}
	if v, _ := attrValue(first.Attributes(), "llm.model"); v.AsString() != "deepseek/deepseek-r1:free" {
		t.Errorf("llm.model = %v", v)
	}
	if first.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", first.Status().Code)
	}
	if first.Parent().SpanID() != ended[2].SpanContext().SpanID() {
		t.Error("attempt span must be a child of the request span")
	}

	second := ended[1]
	if second.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", second.Status().Code)
	}
	if v, _ := attrValue(second.Attributes(), "llm.failure_reason"); v.AsString() != "rate_limit" {
		t.Errorf("llm.failure_reason = %v", v)
	}
	if v, _ := attrValue(second.Attributes(), "llm.attempt"); v.AsInt64() != 2 {
		t.Errorf("llm.attempt = %v", v)
	}
}

func TestTraceHTTPRequestAndTraceID(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	if GetTraceID(context.Background()) != "" {
		t.Fatal("trace id outside a span should be empty")
	}

	ctx, span := tracer.TraceHTTPRequest(context.Background(), "POST", "/v1/ask")
	if GetTraceID(ctx) == "" {
		t.Fatal("trace id missing inside span")
	}
	_, query := tracer.TraceDatabaseQuery(ctx, "append", "outcomes")
	tracer.RecordError(query, errors.New("disk full"))
	query.End()
	span.End()

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(ended))
	}
	if ended[0].Name() != "db.append" || ended[0].Status().Code != codes.Error {
		t.Errorf("query span = %q %v", ended[0].Name(), ended[0].Status().Code)
	}
	if ended[1].Name() != "POST /v1/ask" || ended[1].SpanKind() != trace.SpanKindServer {
		t.Errorf("http span = %q %v", ended[1].Name(), ended[1].SpanKind())
	}
	if v, _ := attrValue(ended[1].Attributes(), "http.route"); v.AsString() != "/v1/ask" {
		t.Errorf("http.route = %v", v)
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := samplerFor(tt.rate).Description(); got != tt.want {
			t.Errorf("samplerFor(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
