package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/scholar/internal/intent"
	"github.com/haasonsaas/scholar/internal/ledger"
	"github.com/haasonsaas/scholar/internal/models"
	"github.com/haasonsaas/scholar/internal/observability"
	"github.com/haasonsaas/scholar/internal/orchestrator"
	"github.com/haasonsaas/scholar/internal/persona"
	"github.com/haasonsaas/scholar/internal/providers"
)

type stubClassifier struct {
	result intent.Result
	calls  atomic.Int32
}

func (c *stubClassifier) ClassifyDetailed(context.Context, string) intent.Result {
	c.calls.Add(1)
	return c.result
}

type stubRunner struct {
	resp *orchestrator.Response
	err  error

	last  orchestrator.Request
	reqID string
}

func (r *stubRunner) Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	r.last = req
	r.reqID = observability.GetRequestID(ctx)
	return r.resp, r.err
}

type fixture struct {
	assistant  *Assistant
	classifier *stubClassifier
	runner     *stubRunner
	store      *ledger.MemoryStore
	metrics    *observability.Metrics
}

func newFixture(t *testing.T, cls intent.Intent, resp *orchestrator.Response, err error) *fixture {
	t.Helper()
	personas, perr := persona.New(models.DefaultRegistry())
	if perr != nil {
		t.Fatalf("persona.New: %v", perr)
	}
	f := &fixture{
		classifier: &stubClassifier{result: intent.Result{Intent: cls, Source: intent.SourcePattern}},
		runner:     &stubRunner{resp: resp, err: err},
		store:      ledger.NewMemoryStore(0),
		metrics:    observability.NewMetrics(prometheus.NewRegistry()),
	}
	a, aerr := New(Config{
		Classifier:   f.classifier,
		Personas:     personas,
		Orchestrator: f.runner,
		Ledger:       f.store,
		Metrics:      f.metrics,
	})
	if aerr != nil {
		t.Fatalf("New: %v", aerr)
	}
	f.assistant = a
	return f
}

func answered(model string, fallback bool) *orchestrator.Response {
	return &orchestrator.Response{
		Text:        "Here is your plan.",
		RespondedBy: model,
		FirstChoice: models.ModelGeminiFlash,
		WasFallback: fallback,
	}
}

func TestAsk_PlanningRoutesToPinnedModel(t *testing.T) {
	f := newFixture(t, intent.Planning, answered(models.ModelGeminiFlash, false), nil)

	ans, err := f.assistant.Ask(context.Background(), Query{Text: "make me a study timetable", StudentName: "Asha"},
		models.UserPreferences{DefaultModel: models.ModelLlamaChat}, providers.StaticCredentials{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if ans.Intent != intent.Planning || ans.Persona != persona.IDStudyPlanner || ans.Task != models.TaskPlanning {
		t.Errorf("answer routing = %s/%s/%s", ans.Intent, ans.Persona, ans.Task)
	}
	if ans.RequestID == "" || f.runner.reqID != ans.RequestID {
		t.Errorf("request id = %q, runner saw %q", ans.RequestID, f.runner.reqID)
	}

	req := f.runner.last
	if got, _ := req.Preferences.Override(models.TaskPlanning); got != models.ModelGeminiFlash {
		t.Errorf("planning override = %q, want pinned planner model", got)
	}
	if len(req.Tools) != 2 {
		t.Errorf("tools = %d, want 2", len(req.Tools))
	}
	if !strings.Contains(req.SystemInstruction, "Asha") {
		t.Errorf("system instruction missing student name: %q", req.SystemInstruction)
	}

	got := testutil.ToFloat64(f.metrics.ClassificationCounter.WithLabelValues("PLANNING", "pattern"))
	if got != 1 {
		t.Errorf("classification counter = %v, want 1", got)
	}

	records, _ := f.store.List(context.Background(), 0)
	if len(records) != 1 {
		t.Fatalf("ledger records = %d, want 1", len(records))
	}
	rec := records[0]
	if !rec.Success || rec.RespondedBy != models.ModelGeminiFlash || rec.AttemptCount != 1 || rec.Persona != persona.IDStudyPlanner {
		t.Errorf("record = %+v", rec)
	}
}

func TestAsk_UserOverrideWins(t *testing.T) {
	f := newFixture(t, intent.Planning, answered(models.ModelGroqLlama, false), nil)
	prefs := models.UserPreferences{TaskOverrides: map[models.TaskCategory]string{models.TaskPlanning: models.ModelGroqLlama}}

	if _, err := f.assistant.Ask(context.Background(), Query{Text: "plan my week"}, prefs, nil); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got, _ := f.runner.last.Preferences.Override(models.TaskPlanning); got != models.ModelGroqLlama {
		t.Errorf("override = %q, want the user's choice", got)
	}
}

func TestAsk_NoPreferredModelLeavesPreferences(t *testing.T) {
	f := newFixture(t, intent.Concept, answered(models.ModelLlamaChat, false), nil)
	prefs := models.UserPreferences{}

	if _, err := f.assistant.Ask(context.Background(), Query{Text: "what is photosynthesis"}, prefs, nil); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, ok := f.runner.last.Preferences.Override(models.TaskChat); ok {
		t.Error("no override expected when neither user nor persona prefers a model")
	}
	if prefs.TaskOverrides != nil {
		t.Error("caller preferences must not be modified")
	}
}

func TestAsk_CallerIntentSkipsClassification(t *testing.T) {
	f := newFixture(t, intent.General, answered(models.ModelLlamaChat, false), nil)

	ans, err := f.assistant.Ask(context.Background(), Query{Text: "I feel stressed", Intent: intent.Emotional}, models.UserPreferences{}, nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if f.classifier.calls.Load() != 0 {
		t.Error("classifier must not run when the caller supplies an intent")
	}
	if ans.Persona != persona.IDWellbeingCompanion || ans.Source != intent.SourceCaller {
		t.Errorf("answer = %s/%s", ans.Persona, ans.Source)
	}
	if len(f.runner.last.Tools) != 0 {
		t.Error("wellbeing persona exposes no tools")
	}
}

func TestAsk_Exhausted(t *testing.T) {
	exhausted := &orchestrator.AllCandidatesExhausted{
		Attempts: []orchestrator.Attempt{
			{Model: models.ModelDeepSeekR1, Provider: "openrouter", ErrorSummary: "rate limited"},
			{Model: models.ModelGeminiPro, Provider: "google", ErrorSummary: "quota exceeded"},
		},
		Tried:   2,
		LastErr: errors.New("quota exceeded"),
	}
	f := newFixture(t, intent.Analysis, nil, exhausted)

	_, err := f.assistant.Ask(context.Background(), Query{Text: "why did my marks drop"}, models.UserPreferences{}, nil)
	if !errors.Is(err, orchestrator.ErrAllCandidatesExhausted) {
		t.Fatalf("Ask() = %v, want exhausted", err)
	}

	records, _ := f.store.List(context.Background(), 0)
	if len(records) != 1 {
		t.Fatalf("ledger records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Success || rec.AttemptCount != 2 || rec.FirstChoice != models.ModelDeepSeekR1 {
		t.Errorf("record = %+v", rec)
	}
	if !strings.HasPrefix(rec.ErrorSummary, "could not generate a response") {
		t.Errorf("error summary = %q", rec.ErrorSummary)
	}
}

func TestAsk_DropsInvalidToolCalls(t *testing.T) {
	resp := answered(models.ModelGeminiFlash, false)
	resp.ToolCalls = []models.ToolCall{
		{Name: persona.ToolCreateChecklist, Arguments: json.RawMessage(`{"title":"Week 1","items":[{"task":"Revise algebra"}]}`)},
		{Name: persona.ToolRenderChart, Arguments: json.RawMessage(`{"kind":"scatter"}`)},
		{Name: "launch_rockets"},
	}
	f := newFixture(t, intent.Planning, resp, nil)

	ans, err := f.assistant.Ask(context.Background(), Query{Text: "plan my revision"}, models.UserPreferences{}, nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(ans.ToolCalls) != 1 || ans.ToolCalls[0].Name != persona.ToolCreateChecklist {
		t.Errorf("tool calls = %+v", ans.ToolCalls)
	}
}

func TestAsk_KeepsRequestIDFromContext(t *testing.T) {
	f := newFixture(t, intent.General, answered(models.ModelLlamaChat, false), nil)
	ctx := observability.AddRequestID(context.Background(), "req-42")

	ans, err := f.assistant.Ask(ctx, Query{Text: "hello"}, models.UserPreferences{}, nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.RequestID != "req-42" {
		t.Errorf("RequestID = %q, want req-42", ans.RequestID)
	}
}

func TestAsk_EmptyQuery(t *testing.T) {
	f := newFixture(t, intent.General, nil, nil)
	if _, err := f.assistant.Ask(context.Background(), Query{Text: "  "}, models.UserPreferences{}, nil); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("Ask() = %v, want ErrEmptyQuery", err)
	}
}

func TestNew_Validation(t *testing.T) {
	personas, _ := persona.New(models.DefaultRegistry())
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing classifier", Config{Personas: personas, Orchestrator: &stubRunner{}}},
		{"missing personas", Config{Classifier: &stubClassifier{}, Orchestrator: &stubRunner{}}},
		{"missing orchestrator", Config{Classifier: &stubClassifier{}, Personas: personas}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
