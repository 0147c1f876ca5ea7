package persona

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/scholar/internal/intent"
	"github.com/haasonsaas/scholar/internal/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(models.DefaultRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRegistry_GetIsTotal(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		intent intent.Intent
		wantID string
		task   models.TaskCategory
	}{
		{intent.Concept, IDConceptTutor, models.TaskChat},
		{intent.Analysis, IDPerformanceAnalyst, models.TaskAnalysis},
		{intent.Planning, IDStudyPlanner, models.TaskPlanning},
		{intent.Emotional, IDWellbeingCompanion, models.TaskChat},
		{intent.General, IDGeneralAssistant, models.TaskChat},
		{intent.Intent("SMALLTALK"), IDGeneralAssistant, models.TaskChat},
	}

	for _, tt := range tests {
		p := r.Get(tt.intent)
		if p == nil {
			t.Fatalf("Get(%s) returned nil", tt.intent)
		}
		if p.ID != tt.wantID {
			t.Errorf("Get(%s).ID = %s, want %s", tt.intent, p.ID, tt.wantID)
		}
		if p.Task != tt.task {
			t.Errorf("Get(%s).Task = %s, want %s", tt.intent, p.Task, tt.task)
		}
	}
}

func TestProfile_Tools(t *testing.T) {
	r := newTestRegistry(t)

	if tools := r.Get(intent.Emotional).Tools(); len(tools) != 0 {
		t.Fatalf("wellbeing companion must have no tools, got %d", len(tools))
	}
	if tools := r.Get(intent.General).Tools(); len(tools) != 0 {
		t.Fatalf("general assistant must have no tools, got %d", len(tools))
	}

	planner := r.Get(intent.Planning).Tools()
	if len(planner) != 2 || planner[0].Name != ToolRenderChart || planner[1].Name != ToolCreateChecklist {
		t.Fatalf("planner tools = %+v", planner)
	}
	if planner[0].Parameters["type"] != "object" {
		t.Fatalf("chart parameters type = %v, want object", planner[0].Parameters["type"])
	}
	if _, ok := planner[0].Parameters["$schema"]; ok {
		t.Fatal("declared parameters must not carry $schema")
	}

	// Tools returns a copy.
	planner[0].Name = "mutated"
	if r.Get(intent.Planning).Tools()[0].Name != ToolRenderChart {
		t.Fatal("Tools must return a copy")
	}
}

func TestProfile_PreferredModel(t *testing.T) {
	r := newTestRegistry(t)
	planner := r.Get(intent.Planning)
	tutor := r.Get(intent.Concept)

	tests := []struct {
		name    string
		profile *Profile
		prefs   models.UserPreferences
		want    string
	}{
		{"planner without default", planner, models.UserPreferences{}, models.ModelGeminiFlash},
		{"planner with structured default", planner, models.UserPreferences{DefaultModel: "gemini-pro"}, models.ModelGeminiPro},
		{"planner with generic default", planner, models.UserPreferences{DefaultModel: models.ModelLlamaChat}, models.ModelGeminiFlash},
		{"planner with lightweight default", planner, models.UserPreferences{DefaultModel: models.ModelGemma}, models.ModelGeminiFlash},
		{"planner with unknown default", planner, models.UserPreferences{DefaultModel: "nope"}, models.ModelGeminiFlash},
		{"tutor defers to default", tutor, models.UserPreferences{DefaultModel: models.ModelLlamaChat}, models.ModelLlamaChat},
		{"tutor without default", tutor, models.UserPreferences{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.PreferredModel(tt.prefs); got != tt.want {
				t.Fatalf("PreferredModel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_PlannerModelMustSupportTools(t *testing.T) {
	if _, err := New(models.DefaultRegistry(), WithPlannerModel(models.ModelGemma)); err == nil {
		t.Fatal("expected error for a planner model without tool support")
	}
	if _, err := New(models.DefaultRegistry(), WithPlannerModel("ghost")); !errors.Is(err, models.ErrUnknownModel) {
		t.Fatalf("error = %v, want ErrUnknownModel", err)
	}
	r, err := New(models.DefaultRegistry(), WithPlannerModel("gemini-pro"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := r.Get(intent.Planning).PinnedModel; got != models.ModelGeminiPro {
		t.Fatalf("PinnedModel = %s, want %s", got, models.ModelGeminiPro)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	r := newTestRegistry(t)
	p := r.Get(intent.Analysis)

	prompt := p.BuildSystemPrompt(Context{
		Query:          "how did I do?",
		Background:     "Math: 62, 71, 80",
		HistorySummary: "Asked about algebra last week.",
		StudentName:    "Sam",
		Style:          models.ResponseStyle{Concise: true, Language: "Spanish"},
	})

	for _, want := range []string{
		"performance analyst",
		"The student's name is Sam.",
		"Math: 62, 71, 80",
		"Asked about algebra last week.",
		"Keep the answer short.",
		"Reply in Spanish.",
		ToolRenderChart,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	// Pure: same input, same output.
	again := p.BuildSystemPrompt(Context{
		Query:          "how did I do?",
		Background:     "Math: 62, 71, 80",
		HistorySummary: "Asked about algebra last week.",
		StudentName:    "Sam",
		Style:          models.ResponseStyle{Concise: true, Language: "Spanish"},
	})
	if again != prompt {
		t.Fatal("BuildSystemPrompt is not deterministic")
	}
}

func TestBuildSystemPrompt_TruncatesSummaries(t *testing.T) {
	r := newTestRegistry(t)
	p := r.Get(intent.Concept)

	long := strings.Repeat("é", MaxSummaryRunes+500)
	prompt := p.BuildSystemPrompt(Context{Background: long})

	if !strings.Contains(prompt, truncationMarker) {
		t.Fatal("expected truncation marker")
	}
	if strings.Contains(prompt, strings.Repeat("é", MaxSummaryRunes+1)) {
		t.Fatal("background was not truncated")
	}
	if strings.Contains(prompt, "Tools available") {
		t.Fatal("persona without tools must not advertise tools")
	}
}

func TestValidateToolCall(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name    string
		tool    string
		args    string
		wantErr bool
	}{
		{
			name: "valid chart",
			tool: ToolRenderChart,
			args: `{"kind":"line","title":"Math","labels":["T1","T2"],"series":[{"name":"Math","values":[62,71]}]}`,
		},
		{
			name:    "chart kind outside enum",
			tool:    ToolRenderChart,
			args:    `{"kind":"scatter","title":"Math","labels":["T1"],"series":[{"name":"Math","values":[62]}]}`,
			wantErr: true,
		},
		{
			name:    "chart missing series",
			tool:    ToolRenderChart,
			args:    `{"kind":"bar","title":"Math","labels":["T1"]}`,
			wantErr: true,
		},
		{
			name: "valid checklist",
			tool: ToolCreateChecklist,
			args: `{"title":"Week 1","items":[{"task":"Revise algebra","due":"2026-10-20","minutes":45}]}`,
		},
		{
			name:    "checklist with unknown field",
			tool:    ToolCreateChecklist,
			args:    `{"title":"Week 1","items":[{"task":"Revise"}],"priority":"high"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			tool:    ToolCreateChecklist,
			args:    `{"title":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateToolCall(tt.tool, json.RawMessage(tt.args))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateToolCall() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := r.ValidateToolCall("launch_rockets", nil); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("error = %v, want ErrUnknownTool", err)
	}
}
