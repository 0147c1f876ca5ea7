package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailoverReason says why a candidate failed. The orchestrator moves on to
// the next candidate whatever the reason; the reason feeds logs, metrics and
// the attempt summary returned on exhaustion.
type FailoverReason string

const (
	FailoverBilling           FailoverReason = "billing"
	FailoverRateLimit         FailoverReason = "rate_limit"
	FailoverAuth              FailoverReason = "auth"
	FailoverTimeout           FailoverReason = "timeout"
	FailoverServerError       FailoverReason = "server_error"
	FailoverInvalidRequest    FailoverReason = "invalid_request"
	FailoverModelUnavailable  FailoverReason = "model_unavailable"
	FailoverContentFilter     FailoverReason = "content_filter"
	FailoverMalformedResponse FailoverReason = "malformed_response"
	FailoverCredentialMissing FailoverReason = "credential_missing"
	FailoverUnknown           FailoverReason = "unknown"
)

// Transient reports whether the same model might succeed if asked again
// later. Free-tier quotas and overloaded hosts clear up; bad keys do not.
func (r FailoverReason) Transient() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	}
	return false
}

// ErrCredentialMissing is wrapped by every ProviderError raised because the
// provider has no configured secret.
var ErrCredentialMissing = errors.New("credential missing")

// ProviderError is a failed call to one model.
type ProviderError struct {
	Reason FailoverReason

	// Provider is the credential key (google, openrouter, groq).
	Provider string
	Model    string

	// Status is the HTTP status, zero when the call never got a response.
	Status int

	// Code is the provider's own error code, if it sent one.
	Code    string
	Message string
	Cause   error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Reason)
	field := func(format string, v any) {
		b.WriteByte(' ')
		fmt.Fprintf(&b, format, v)
	}
	if e.Provider != "" {
		field("%s", e.Provider)
	}
	if e.Model != "" {
		field("model=%s", e.Model)
	}
	if e.Status != 0 {
		field("status=%d", e.Status)
	}
	if e.Code != "" {
		field("code=%s", e.Code)
	}
	switch {
	case e.Message != "":
		field("%s", e.Message)
	case e.Cause != nil:
		field("%s", e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps cause and classifies it from its text.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{Provider: provider, Model: model, Cause: cause, Reason: FailoverUnknown}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}
	return err
}

func newMalformedError(provider, model string, cause error) *ProviderError {
	err := NewProviderError(provider, model, cause)
	err.Reason = FailoverMalformedResponse
	return err
}

func newCredentialError(provider, model string) *ProviderError {
	return &ProviderError{
		Reason:   FailoverCredentialMissing,
		Provider: provider,
		Model:    model,
		Message:  fmt.Sprintf("no credential configured for provider %q", provider),
		Cause:    ErrCredentialMissing,
	}
}

// WithStatus records the HTTP status. A status that maps to a reason wins
// over the reason guessed from the message.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := reasonForStatus(status); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

// WithCode records the provider error code, reclassifying when it is known.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason, ok := codeReasons[strings.ToLower(code)]; ok {
		e.Reason = reason
	}
	return e
}

func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// messagePatterns are checked in order against the lowercased error text.
// Order matters: "429 quota exceeded" is a rate limit, not a billing issue.
var messagePatterns = []struct {
	reason   FailoverReason
	patterns []string
}{
	{FailoverTimeout, []string{"timeout", "deadline exceeded", "etimedout"}},
	{FailoverRateLimit, []string{"rate limit", "rate_limit", "too many requests", "resource exhausted", "resource_exhausted", "429"}},
	{FailoverAuth, []string{"unauthorized", "unauthenticated", "invalid api key", "invalid_api_key", "api key not valid", "permission denied", "authentication", "401", "403"}},
	{FailoverBilling, []string{"billing", "payment", "quota", "insufficient", "402"}},
	{FailoverContentFilter, []string{"content_filter", "content policy", "safety", "blocked"}},
	{FailoverModelUnavailable, []string{"model not found", "model_not_found", "does not exist", "no endpoints found", "unavailable"}},
	{FailoverServerError, []string{"internal server", "server error", "500", "502", "503", "504"}},
}

var codeReasons = map[string]FailoverReason{
	"rate_limit_error":         FailoverRateLimit,
	"rate_limit_exceeded":      FailoverRateLimit,
	"resource_exhausted":       FailoverRateLimit,
	"authentication_error":     FailoverAuth,
	"invalid_api_key":          FailoverAuth,
	"unauthenticated":          FailoverAuth,
	"permission_denied":        FailoverAuth,
	"billing_error":            FailoverBilling,
	"insufficient_quota":       FailoverBilling,
	"model_not_found":          FailoverModelUnavailable,
	"model_not_available":      FailoverModelUnavailable,
	"not_found":                FailoverModelUnavailable,
	"content_policy_violation": FailoverContentFilter,
	"content_filter":           FailoverContentFilter,
	"server_error":             FailoverServerError,
	"internal_error":           FailoverServerError,
	"internal":                 FailoverServerError,
	"unavailable":              FailoverServerError,
	"deadline_exceeded":        FailoverTimeout,
	"invalid_request_error":    FailoverInvalidRequest,
	"invalid_argument":         FailoverInvalidRequest,
}

// ClassifyError guesses a FailoverReason from an arbitrary error.
func ClassifyError(err error) FailoverReason {
	switch {
	case err == nil:
		return FailoverUnknown
	case errors.Is(err, ErrCredentialMissing):
		return FailoverCredentialMissing
	case errors.Is(err, context.DeadlineExceeded):
		return FailoverTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, group := range messagePatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return group.reason
			}
		}
	}
	return FailoverUnknown
}

func reasonForStatus(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest:
		return FailoverInvalidRequest
	case status == http.StatusNotFound:
		return FailoverModelUnavailable
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return FailoverTimeout
	case status >= 500:
		return FailoverServerError
	}
	return FailoverUnknown
}

func IsProviderError(err error) bool {
	_, ok := GetProviderError(err)
	return ok
}

// GetProviderError finds the first ProviderError in err's chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

func IsCredentialMissing(err error) bool {
	return errors.Is(err, ErrCredentialMissing)
}

// ReasonOf returns the reason carried by err, classifying it when err is not
// a ProviderError.
func ReasonOf(err error) FailoverReason {
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason
	}
	return ClassifyError(err)
}

// IsTransient reports whether err is the kind of failure that clears on its
// own.
func IsTransient(err error) bool {
	return ReasonOf(err).Transient()
}
