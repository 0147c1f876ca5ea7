package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/haasonsaas/scholar/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// routeLabels bounds the path label cardinality of HTTP metrics.
var routeLabels = map[string]bool{
	"/healthz":       true,
	"/metrics":       true,
	"/v1/ask":        true,
	"/v1/classify":   true,
	"/v1/candidates": true,
	"/v1/models":     true,
	"/v1/outcomes":   true,
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument assigns a request id, extracts inbound trace context, opens a
// server span and records request metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		route := r.URL.Path
		if !routeLabels[route] {
			route = "unmatched"
		}

		ctx := s.config.Tracer.ExtractContext(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = observability.AddRequestID(ctx, requestID)
		ctx, span := s.config.Tracer.TraceHTTPRequest(ctx, r.Method, route)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		elapsed := time.Since(start)
		code := strconv.Itoa(rec.status)
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		s.config.Metrics.RecordHTTPRequest(r.Method, route, code, elapsed.Seconds())

		if route != "/healthz" && route != "/metrics" {
			s.logger.InfoContext(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"trace_id", observability.GetTraceID(ctx),
			)
		}
	})
}
