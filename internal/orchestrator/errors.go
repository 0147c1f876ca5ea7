package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/scholar/internal/providers"
)

// ErrAllCandidatesExhausted is matched by every *AllCandidatesExhausted.
var ErrAllCandidatesExhausted = errors.New("all model candidates exhausted")

// maxSummaryLen bounds ErrorSummary so attempt trails stay loggable.
const maxSummaryLen = 240

// Attempt records one failed dispatch.
type Attempt struct {
	Model        string                   `json:"model"`
	Provider     string                   `json:"provider"`
	Reason       providers.FailoverReason `json:"reason"`
	Status       int                      `json:"status,omitempty"`
	ErrorSummary string                   `json:"error"`
	Duration     time.Duration            `json:"duration"`
}

func newAttempt(model, provider string, err error, elapsed time.Duration) Attempt {
	a := Attempt{
		Model:        model,
		Provider:     provider,
		Reason:       providers.ReasonOf(err),
		ErrorSummary: summarize(err),
		Duration:     elapsed,
	}
	if pe, ok := providers.GetProviderError(err); ok {
		a.Status = pe.Status
	}
	return a
}

// AllCandidatesExhausted is returned when no candidate produced a reply,
// either because every one failed or because the request deadline expired
// first.
type AllCandidatesExhausted struct {
	// Attempts lists the failed dispatches in order.
	Attempts []Attempt

	// Tried counts candidates that were dispatched.
	Tried int

	// Skipped lists candidates passed over for a missing credential.
	Skipped []string

	// LastErr is the error of the last attempt, or of the last skip when
	// nothing was dispatched.
	LastErr error

	// Cause is the context error when the request deadline expired or the
	// caller cancelled.
	Cause error
}

func (e *AllCandidatesExhausted) Error() string {
	var sb strings.Builder

	switch {
	case e.Cause != nil:
		fmt.Fprintf(&sb, "request ended after %d of the candidates were tried: %v", e.Tried, e.Cause)
	case e.Tried == 0:
		fmt.Fprintf(&sb, "no candidate could be tried (%d skipped without credentials)", len(e.Skipped))
	default:
		fmt.Fprintf(&sb, "all %d tried candidates failed", e.Tried)
	}

	if len(e.Skipped) > 0 && e.Tried > 0 {
		fmt.Fprintf(&sb, ", %d skipped", len(e.Skipped))
	}
	if e.LastErr != nil {
		fmt.Fprintf(&sb, "; last error: %v", e.LastErr)
	}
	return sb.String()
}

// Is matches ErrAllCandidatesExhausted.
func (e *AllCandidatesExhausted) Is(target error) bool {
	return target == ErrAllCandidatesExhausted
}

// Unwrap exposes the last attempt error and, on deadline expiry or
// cancellation, the context error.
func (e *AllCandidatesExhausted) Unwrap() []error {
	var errs []error
	if e.LastErr != nil {
		errs = append(errs, e.LastErr)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Summary is a trail like "deepseek-r1 (rate_limit) -> gemini-2.5-pro (timeout)".
func (e *AllCandidatesExhausted) Summary() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s)", a.Model, a.Reason))
	}
	return strings.Join(parts, " -> ")
}

// UserMessage is the single user-facing text for a failed request.
func UserMessage(err error) string {
	const prefix = "could not generate a response"

	var exhausted *AllCandidatesExhausted
	if !errors.As(err, &exhausted) {
		if err == nil {
			return prefix
		}
		return prefix + ": " + summarize(err)
	}

	switch {
	case exhausted.LastErr != nil:
		return prefix + ": " + summarize(exhausted.LastErr)
	case exhausted.Cause != nil:
		return prefix + ": " + exhausted.Cause.Error()
	default:
		return prefix
	}
}

// GetExhausted extracts an *AllCandidatesExhausted from err.
func GetExhausted(err error) (*AllCandidatesExhausted, bool) {
	var exhausted *AllCandidatesExhausted
	if errors.As(err, &exhausted) {
		return exhausted, true
	}
	return nil, false
}

func summarize(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if pe, ok := providers.GetProviderError(err); ok && pe.Message != "" {
		msg = pe.Message
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if r := []rune(msg); len(r) > maxSummaryLen {
		msg = string(r[:maxSummaryLen]) + "..."
	}
	return msg
}
