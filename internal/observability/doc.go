// Package observability provides metrics, structured logging and tracing for
// the scholar request pipeline.
//
// # Metrics
//
// Metrics are Prometheus collectors registered on a caller-supplied
// registry. The orchestrator records every provider attempt, skipped
// candidates and the final request result; the classifier records which
// stage decided each intent.
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordAttempt("google", "gemini-2.5-flash", "success", "", 0.8)
//
// # Logging
//
// Logging is built on log/slog. The handler redacts provider keys, bearer
// tokens and JWTs, and copies the request id from the context into every
// record.
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "debug", Format: "text"})
//	ctx = observability.AddRequestID(ctx, requestID)
//	logger.Slog().WarnContext(ctx, "attempt failed", "model", id)
//
// # Tracing
//
// Tracing uses OpenTelemetry with an OTLP gRPC exporter. Without an
// endpoint the tracer is a no-op.
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{Endpoint: "localhost:4317"})
//	defer shutdown(ctx)
//	ctx, span := tracer.TraceAttempt(ctx, "openrouter", model, 1)
package observability
