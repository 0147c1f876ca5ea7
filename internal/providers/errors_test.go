package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFailoverReasonTransient(t *testing.T) {
	tests := []struct {
		reason   FailoverReason
		expected bool
	}{
		{FailoverRateLimit, true},
		{FailoverTimeout, true},
		{FailoverServerError, true},
		{FailoverBilling, false},
		{FailoverAuth, false},
		{FailoverInvalidRequest, false},
		{FailoverModelUnavailable, false},
		{FailoverContentFilter, false},
		{FailoverMalformedResponse, false},
		{FailoverCredentialMissing, false},
		{FailoverUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := tt.reason.Transient(); got != tt.expected {
				t.Errorf("FailoverReason(%q).Transient() = %v, want %v", tt.reason, got, tt.expected)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected FailoverReason
	}{
		{"nil error", nil, FailoverUnknown},
		{"timeout", errors.New("request timeout"), FailoverTimeout},
		{"deadline exceeded", errors.New("context deadline exceeded"), FailoverTimeout},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), FailoverTimeout},
		{"rate limit", errors.New("rate limit exceeded"), FailoverRateLimit},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED: try later"), FailoverRateLimit},
		{"429 status", errors.New("HTTP 429"), FailoverRateLimit},
		{"unauthorized", errors.New("unauthorized"), FailoverAuth},
		{"invalid api key", errors.New("API key not valid. Please pass a valid API key."), FailoverAuth},
		{"billing", errors.New("billing issue"), FailoverBilling},
		{"quota exceeded", errors.New("quota exceeded"), FailoverBilling},
		{"content filter", errors.New("content_filter triggered"), FailoverContentFilter},
		{"model not found", errors.New("model not found"), FailoverModelUnavailable},
		{"openrouter no endpoints", errors.New("No endpoints found for meta-llama/x"), FailoverModelUnavailable},
		{"server error", errors.New("internal server error"), FailoverServerError},
		{"credential missing", fmt.Errorf("lookup: %w", ErrCredentialMissing), FailoverCredentialMissing},
		{"unknown", errors.New("something went wrong"), FailoverUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.expected {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestProviderError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewProviderError("openrouter", "meta-llama/llama-3.3-70b-instruct:free", cause).
		WithStatus(429).
		WithCode("rate_limit_exceeded")

	if err.Reason != FailoverRateLimit {
		t.Errorf("Reason = %v, want %v", err.Reason, FailoverRateLimit)
	}
	msg := err.Error()
	for _, want := range []string{"[rate_limit]", "openrouter", "model=meta-llama/llama-3.3-70b-instruct:free", "status=429", "code=rate_limit_exceeded", "underlying error"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("ProviderError must unwrap to its cause")
	}
}

func TestProviderError_StatusDoesNotClearReason(t *testing.T) {
	err := NewProviderError("google", "gemini-2.5-flash", errors.New("quota exceeded")).WithStatus(418)
	if err.Reason != FailoverBilling {
		t.Fatalf("Reason = %v, want %v", err.Reason, FailoverBilling)
	}
}

func TestProviderError_UnknownCodeKeepsReason(t *testing.T) {
	err := NewProviderError("groq", "llama-3.3-70b-versatile", errors.New("rate limit reached")).WithCode("weird_code")
	if err.Reason != FailoverRateLimit {
		t.Fatalf("Reason = %v, want %v", err.Reason, FailoverRateLimit)
	}
	if !IsTransient(err) {
		t.Fatal("rate limits are transient")
	}
}

func TestCredentialError(t *testing.T) {
	err := newCredentialError("groq", "llama-3.3-70b-versatile")
	wrapped := fmt.Errorf("attempt: %w", err)

	if !IsCredentialMissing(wrapped) {
		t.Fatal("IsCredentialMissing should see through wrapping")
	}
	pe, ok := GetProviderError(wrapped)
	if !ok || pe.Reason != FailoverCredentialMissing {
		t.Fatalf("GetProviderError = %+v, %v", pe, ok)
	}
	if ReasonOf(wrapped) != FailoverCredentialMissing {
		t.Fatalf("ReasonOf = %v", ReasonOf(wrapped))
	}
	if IsTransient(wrapped) {
		t.Fatal("a missing credential never clears on its own")
	}
}

func TestCredentials(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("GROQ_API_KEY", "  ")

	creds := ChainCredentials{
		StaticCredentials{"openrouter": "or-key", "groq": ""},
		EnvCredentials{},
	}

	if key, ok := creds.Lookup("openrouter"); !ok || key != "or-key" {
		t.Errorf("openrouter = %q, %v", key, ok)
	}
	if key, ok := creds.Lookup("google"); !ok || key != "g-key" {
		t.Errorf("google = %q, %v", key, ok)
	}
	if _, ok := creds.Lookup("groq"); ok {
		t.Error("blank secrets must be treated as missing")
	}
	if key, ok := (StaticCredentials{"OpenRouter": "mixed"}).Lookup("openrouter"); !ok || key != "mixed" {
		t.Errorf("mixed-case provider = %q, %v", key, ok)
	}
	if _, ok := NoCredentials.Lookup("google"); ok {
		t.Error("NoCredentials must have no secrets")
	}
}
