// Package orchestrator runs one request against an ordered list of candidate
// models, advancing past failures until one answers, and attributes the reply
// to the model that produced it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/scholar/internal/models"
	"github.com/haasonsaas/scholar/internal/observability"
	"github.com/haasonsaas/scholar/internal/providers"
)

const (
	// DefaultAttemptTimeout bounds a single provider call.
	DefaultAttemptTimeout = 30 * time.Second

	// DefaultRequestDeadline bounds the whole candidate walk.
	DefaultRequestDeadline = 90 * time.Second
)

// Dispatcher performs a single provider call.
type Dispatcher interface {
	Dispatch(ctx context.Context, req providers.Request, creds providers.Credentials) (*providers.Result, error)
}

// Request is one orchestrated call.
type Request struct {
	Task              models.TaskCategory
	Query             string
	SystemInstruction string
	Tools             []models.ToolDeclaration

	// JSONExpected asks for a JSON reply and suppresses attribution markers.
	JSONExpected   bool
	ResponseSchema map[string]any

	Preferences models.UserPreferences
	Credentials providers.Credentials

	// Candidates, when set, replaces resolution from the chain table.
	Candidates []string

	MaxOutputTokens int
}

// Response is the outcome of a successful walk.
type Response struct {
	// Text is the reply, with the attribution marker appended unless JSON
	// was expected.
	Text string `json:"text"`

	// RespondedBy is the id of the model that produced Text.
	RespondedBy     string `json:"responded_by"`
	RespondedByName string `json:"responded_by_name"`

	// WasFallback is true when RespondedBy is not FirstChoice.
	WasFallback bool `json:"was_fallback"`

	// FirstChoice is the first candidate that was actually dispatched.
	FirstChoice string `json:"first_choice"`

	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// Attempts lists failed dispatches before the answer.
	Attempts []Attempt `json:"attempts,omitempty"`

	// Skipped lists candidates without credentials.
	Skipped []string `json:"skipped,omitempty"`

	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Config configures an Orchestrator.
type Config struct {
	Registry   *models.Registry
	Resolver   *models.Resolver
	Dispatcher Dispatcher

	AttemptTimeout  time.Duration
	RequestDeadline time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Orchestrator walks candidate lists. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	registry        *models.Registry
	resolver        *models.Resolver
	dispatcher      Dispatcher
	attemptTimeout  time.Duration
	requestDeadline time.Duration
	logger          *slog.Logger
	metrics         *observability.Metrics
	tracer          *observability.Tracer
}

// New validates cfg and creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("orchestrator: registry is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("orchestrator: resolver is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("orchestrator: dispatcher is required")
	}
	if cfg.AttemptTimeout < 0 || cfg.RequestDeadline < 0 {
		return nil, errors.New("orchestrator: timeouts must be non-negative")
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.RequestDeadline == 0 {
		cfg.RequestDeadline = DefaultRequestDeadline
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		registry:        cfg.Registry,
		resolver:        cfg.Resolver,
		dispatcher:      cfg.Dispatcher,
		attemptTimeout:  cfg.AttemptTimeout,
		requestDeadline: cfg.RequestDeadline,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		tracer:          cfg.Tracer,
	}, nil
}

// Candidates returns the list Run would walk for req.
func (o *Orchestrator) Candidates(req Request) []string {
	if len(req.Candidates) > 0 {
		return append([]string(nil), req.Candidates...)
	}
	return o.resolver.Resolve(req.Task, req.Preferences)
}

// Run dispatches req to each candidate in order until one answers. Calls are
// strictly sequential. Candidates whose provider has no credential are
// skipped without counting as attempts.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	task := req.Task
	if !task.Valid() {
		task = models.TaskChat
	}

	ctx, cancel := context.WithTimeout(ctx, o.requestDeadline)
	defer cancel()

	ctx, span := o.tracer.TraceRequest(ctx, observability.GetRequestID(ctx), string(task))
	defer span.End()

	creds := req.Credentials
	if creds == nil {
		creds = providers.NoCredentials
	}

	var (
		attempts    []Attempt
		skipped     []string
		firstChoice string
		lastErr     error
		lastSkipErr error
	)

	exhausted := func(cause error) error {
		if lastErr == nil {
			lastErr = lastSkipErr
		}
		err := &AllCandidatesExhausted{
			Attempts: attempts,
			Tried:    len(attempts),
			Skipped:  skipped,
			LastErr:  lastErr,
			Cause:    cause,
		}
		o.metrics.RecordRequest(string(task), "exhausted")
		o.tracer.RecordError(span, err)
		o.logger.ErrorContext(ctx, "all candidates exhausted",
			"task", task,
			"tried", err.Tried,
			"skipped", len(skipped),
			"trail", err.Summary(),
			"error", lastErr,
		)
		return err
	}

	for _, id := range o.Candidates(req) {
		if err := ctx.Err(); err != nil {
			return nil, exhausted(err)
		}

		desc, ok := o.registry.Get(id)
		if !ok {
			err := providers.NewProviderError("", id, fmt.Errorf("%w: %q", models.ErrUnknownModel, id))
			err.Reason = providers.FailoverModelUnavailable
			o.logger.WarnContext(ctx, "candidate not in registry", "model", id)
			attempts = append(attempts, newAttempt(id, "", err, 0))
			lastErr = err
			if firstChoice == "" {
				firstChoice = id
			}
			continue
		}

		if _, ok := creds.Lookup(desc.Provider); !ok {
			o.skip(ctx, desc, &skipped)
			lastSkipErr = fmt.Errorf("%s: %w", desc.Provider, providers.ErrCredentialMissing)
			continue
		}

		if firstChoice == "" {
			firstChoice = desc.ID
		}

		res, elapsed, err := o.attempt(ctx, desc, len(attempts)+1, req, creds)
		if err == nil {
			wasFallback := desc.ID != firstChoice
			return o.respond(ctx, req, task, desc, res, wasFallback, firstChoice, attempts, skipped, start), nil
		}

		if providers.IsCredentialMissing(err) {
			// The dispatcher saw a different credential view than the
			// pre-check; treat it as a skip.
			o.skip(ctx, desc, &skipped)
			lastSkipErr = err
			if firstChoice == desc.ID {
				firstChoice = ""
			}
			continue
		}

		attempts = append(attempts, newAttempt(desc.ID, desc.Provider, err, elapsed))
		lastErr = err
		o.logger.WarnContext(ctx, "candidate failed",
			"model", desc.ID,
			"provider", desc.Provider,
			"attempt", len(attempts),
			"reason", providers.ReasonOf(err),
			"transient", providers.IsTransient(err),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)

		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, exhausted(ctx.Err())
		}
	}

	return nil, exhausted(ctx.Err())
}

func (o *Orchestrator) skip(ctx context.Context, desc models.ModelDescriptor, skipped *[]string) {
	*skipped = append(*skipped, desc.ID)
	o.metrics.RecordSkip(desc.Provider)
	o.logger.DebugContext(ctx, "skipping candidate without credential",
		"model", desc.ID,
		"provider", desc.Provider,
	)
}

type dispatchResult struct {
	res *providers.Result
	err error
}

// attempt runs one dispatch bounded by the attempt timeout and whatever is
// left of the request deadline. It returns as soon as the deadline passes,
// even if the dispatcher has not yet observed the cancellation.
func (o *Orchestrator) attempt(ctx context.Context, desc models.ModelDescriptor, index int, req Request, creds providers.Credentials) (*providers.Result, time.Duration, error) {
	ctx, span := o.tracer.TraceAttempt(ctx, desc.Provider, desc.ID, index)

	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan dispatchResult, 1)
	go func() {
		res, err := o.dispatcher.Dispatch(attemptCtx, providers.Request{
			Model:             desc.ID,
			Prompt:            req.Query,
			SystemInstruction: req.SystemInstruction,
			Tools:             req.Tools,
			JSON:              req.JSONExpected,
			ResponseSchema:    req.ResponseSchema,
			MaxOutputTokens:   req.MaxOutputTokens,
		}, creds)
		done <- dispatchResult{res: res, err: err}
	}()

	var out dispatchResult
	select {
	case out = <-done:
	case <-attemptCtx.Done():
		out.err = providers.NewProviderError(desc.Provider, desc.ID,
			fmt.Errorf("attempt abandoned after %s: %w", time.Since(start).Round(time.Millisecond), attemptCtx.Err()))
	}
	elapsed := time.Since(start)

	if out.err == nil && out.res == nil {
		out.err = providers.NewProviderError(desc.Provider, desc.ID, errors.New("dispatcher returned no result"))
	}

	if out.err != nil {
		if !providers.IsCredentialMissing(out.err) {
			reason := providers.ReasonOf(out.err)
			o.metrics.RecordAttempt(desc.Provider, desc.ID, "failure", string(reason), elapsed.Seconds())
			o.tracer.EndAttempt(span, string(reason), elapsed, out.err)
		} else {
			span.End()
		}
		return nil, elapsed, out.err
	}

	o.metrics.RecordAttempt(desc.Provider, desc.ID, "success", "", elapsed.Seconds())
	o.metrics.RecordTokens(desc.Provider, desc.ID, out.res.PromptTokens, out.res.CompletionTokens)
	o.tracer.EndAttempt(span, "", elapsed, nil)
	return out.res, elapsed, nil
}

func (o *Orchestrator) respond(
	ctx context.Context,
	req Request,
	task models.TaskCategory,
	desc models.ModelDescriptor,
	res *providers.Result,
	wasFallback bool,
	firstChoice string,
	attempts []Attempt,
	skipped []string,
	start time.Time,
) *Response {
	text := res.Text
	if !req.JSONExpected {
		text = annotate(text, desc.DisplayName(), wasFallback)
	}

	result := "answered"
	if wasFallback {
		result = "fallback"
	}
	o.metrics.RecordRequest(string(task), result)
	o.logger.InfoContext(ctx, "request answered",
		"task", task,
		"model", desc.ID,
		"first_choice", firstChoice,
		"was_fallback", wasFallback,
		"failed_attempts", len(attempts),
		"skipped", len(skipped),
	)

	return &Response{
		Text:             text,
		RespondedBy:      desc.ID,
		RespondedByName:  desc.DisplayName(),
		WasFallback:      wasFallback,
		FirstChoice:      firstChoice,
		ToolCalls:        res.ToolCalls,
		Attempts:         attempts,
		Skipped:          skipped,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		Duration:         time.Since(start),
	}
}
