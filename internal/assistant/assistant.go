// Package assistant wires the request pipeline together: a query is
// classified, matched to a persona, run through the orchestrator and its
// outcome written to the ledger.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/scholar/internal/intent"
	"github.com/haasonsaas/scholar/internal/ledger"
	"github.com/haasonsaas/scholar/internal/models"
	"github.com/haasonsaas/scholar/internal/observability"
	"github.com/haasonsaas/scholar/internal/orchestrator"
	"github.com/haasonsaas/scholar/internal/persona"
	"github.com/haasonsaas/scholar/internal/providers"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query is empty")

// Classifier resolves a query to an intent.
type Classifier interface {
	ClassifyDetailed(ctx context.Context, query string) intent.Result
}

// Runner executes an orchestrated request.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
}

// Query is one user question plus the pre-summarized context around it.
type Query struct {
	Text           string         `json:"query"`
	Background     string         `json:"background,omitempty"`
	HistorySummary string         `json:"history_summary,omitempty"`
	StudentName    string         `json:"student_name,omitempty"`
	JSONExpected   bool           `json:"json,omitempty"`
	ResponseSchema map[string]any `json:"response_schema,omitempty"`

	// Intent, when set, bypasses classification.
	Intent intent.Intent `json:"intent,omitempty"`
}

// Answer is the result of Ask.
type Answer struct {
	RequestID string              `json:"request_id"`
	Intent    intent.Intent       `json:"intent"`
	Source    intent.Source       `json:"intent_source"`
	Persona   string              `json:"persona"`
	Task      models.TaskCategory `json:"task"`

	*orchestrator.Response
}

// Config configures an Assistant.
type Config struct {
	Classifier   Classifier
	Personas     *persona.Registry
	Orchestrator Runner

	// Ledger is optional.
	Ledger ledger.Store

	MaxOutputTokens int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Assistant answers student queries.
type Assistant struct {
	classifier   Classifier
	personas     *persona.Registry
	orchestrator Runner
	ledger       ledger.Store
	maxTokens    int
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// New creates an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Classifier == nil {
		return nil, errors.New("assistant: classifier is required")
	}
	if cfg.Personas == nil {
		return nil, errors.New("assistant: persona registry is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("assistant: orchestrator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{
		classifier:   cfg.Classifier,
		personas:     cfg.Personas,
		orchestrator: cfg.Orchestrator,
		ledger:       cfg.Ledger,
		maxTokens:    cfg.MaxOutputTokens,
		logger:       cfg.Logger.With("component", "assistant"),
		metrics:      cfg.Metrics,
	}, nil
}

// Classify returns the intent and persona a query would be routed to.
func (a *Assistant) Classify(ctx context.Context, text string) (intent.Result, *persona.Profile) {
	res := a.classifier.ClassifyDetailed(ctx, text)
	a.metrics.RecordClassification(string(res.Intent), string(res.Source))
	return res, a.personas.Get(res.Intent)
}

// Ask runs the full pipeline for q. The only error returned for provider
// failures is *orchestrator.AllCandidatesExhausted.
func (a *Assistant) Ask(ctx context.Context, q Query, prefs models.UserPreferences, creds providers.Credentials) (*Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}

	requestID := observability.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = observability.AddRequestID(ctx, requestID)
	}

	var cls intent.Result
	var profile *persona.Profile
	if q.Intent.Valid() {
		cls = intent.Result{Intent: q.Intent, Source: intent.SourceCaller}
		profile = a.personas.Get(q.Intent)
	} else {
		cls, profile = a.Classify(ctx, q.Text)
	}

	prefs = routePreferences(profile, prefs)

	system := profile.BuildSystemPrompt(persona.Context{
		Query:          q.Text,
		Background:     q.Background,
		HistorySummary: q.HistorySummary,
		StudentName:    q.StudentName,
		Style:          prefs.Style,
	})

	a.logger.DebugContext(ctx, "routing query",
		"intent", cls.Intent,
		"source", cls.Source,
		"persona", profile.ID,
		"task", profile.Task,
	)

	resp, err := a.orchestrator.Run(ctx, orchestrator.Request{
		Task:              profile.Task,
		Query:             q.Text,
		SystemInstruction: system,
		Tools:             profile.Tools(),
		JSONExpected:      q.JSONExpected,
		ResponseSchema:    q.ResponseSchema,
		Preferences:       prefs,
		Credentials:       creds,
		MaxOutputTokens:   a.maxTokens,
	})

	rec := &ledger.Record{
		RequestID: requestID,
		Intent:    string(cls.Intent),
		Persona:   profile.ID,
		Task:      string(profile.Task),
	}
	if err != nil {
		if ex, ok := orchestrator.GetExhausted(err); ok {
			rec.AttemptCount = ex.Tried
			if len(ex.Attempts) > 0 {
				rec.FirstChoice = ex.Attempts[0].Model
			}
		}
		rec.ErrorSummary = orchestrator.UserMessage(err)
		a.record(ctx, rec)
		return nil, err
	}

	resp.ToolCalls = a.validToolCalls(ctx, resp.ToolCalls)

	rec.FirstChoice = resp.FirstChoice
	rec.RespondedBy = resp.RespondedBy
	rec.WasFallback = resp.WasFallback
	rec.AttemptCount = len(resp.Attempts) + 1
	rec.Success = true
	a.record(ctx, rec)

	return &Answer{
		RequestID: requestID,
		Intent:    cls.Intent,
		Source:    cls.Source,
		Persona:   profile.ID,
		Task:      profile.Task,
		Response:  resp,
	}, nil
}

// routePreferences returns a per-request copy of prefs in which the persona's
// preferred model becomes the task override, unless the user already chose
// one for that task.
func routePreferences(p *persona.Profile, prefs models.UserPreferences) models.UserPreferences {
	if _, ok := prefs.Override(p.Task); ok {
		return prefs
	}
	preferred := p.PreferredModel(prefs)
	if preferred == "" {
		return prefs
	}
	return prefs.WithOverride(p.Task, preferred)
}

// validToolCalls drops calls whose arguments do not satisfy the declared
// schema.
func (a *Assistant) validToolCalls(ctx context.Context, calls []models.ToolCall) []models.ToolCall {
	if len(calls) == 0 {
		return calls
	}
	out := calls[:0]
	for _, call := range calls {
		if err := a.personas.ValidateToolCall(call.Name, call.Arguments); err != nil {
			a.logger.WarnContext(ctx, "dropping invalid tool call", "tool", call.Name, "error", err)
			continue
		}
		out = append(out, call)
	}
	return out
}

func (a *Assistant) record(ctx context.Context, rec *ledger.Record) {
	if a.ledger == nil {
		return
	}
	// The caller's cancellation must not lose the outcome.
	if err := a.ledger.Append(context.WithoutCancel(ctx), rec); err != nil {
		a.logger.WarnContext(ctx, "failed to record outcome", "request_id", rec.RequestID, "error", err)
	}
}

// NewCompleter adapts a dispatcher into the classifier's remote completer,
// bound to one model and credential source.
func NewCompleter(d *providers.Dispatcher, model string, creds providers.Credentials) intent.Completer {
	return intent.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		return d.Complete(ctx, model, creds, prompt)
	})
}
