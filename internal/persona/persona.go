// Package persona maps classified intents to assistant personas: the task
// category a request is routed as, the tools it may use, and the system prompt
// that frames the answer.
package persona

import (
	"fmt"

	"github.com/haasonsaas/scholar/internal/intent"
	"github.com/haasonsaas/scholar/internal/models"
)

// Persona identifiers.
const (
	IDConceptTutor       = "concept_tutor"
	IDPerformanceAnalyst = "performance_analyst"
	IDStudyPlanner       = "study_planner"
	IDWellbeingCompanion = "wellbeing_companion"
	IDGeneralAssistant   = "general_assistant"
)

const defaultPlannerModelID = models.ModelGeminiFlash

// Profile is an assistant persona. Profiles are shared and must not be
// modified after the registry is built.
type Profile struct {
	ID     string
	Name   string
	Intent intent.Intent
	Task   models.TaskCategory

	// RequiresStructuredTools marks personas whose tools only work on models
	// with native function calling.
	RequiresStructuredTools bool

	// PinnedModel is used when the caller's default model cannot run this
	// persona's tools.
	PinnedModel string

	role       string
	guidelines []string
	tools      []models.ToolDeclaration
	catalog    *models.Registry
}

// Tools returns the persona's tool declarations in a stable order.
func (p *Profile) Tools() []models.ToolDeclaration {
	if len(p.tools) == 0 {
		return nil
	}
	out := make([]models.ToolDeclaration, len(p.tools))
	copy(out, p.tools)
	return out
}

// PreferredModel returns the model this persona wants for a request, or ""
// to defer to the fallback chain.
func (p *Profile) PreferredModel(prefs models.UserPreferences) string {
	if !p.RequiresStructuredTools {
		return prefs.DefaultModel
	}
	if prefs.DefaultModel != "" {
		if d, ok := p.catalog.Get(prefs.DefaultModel); ok && d.IsStructured() && d.SupportsStructuredTools {
			return d.ID
		}
	}
	return p.PinnedModel
}

// Registry resolves intents to profiles.
type Registry struct {
	byIntent map[intent.Intent]*Profile
	byID     map[string]*Profile
	tools    map[string]toolSpec
	fallback *Profile
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	plannerModel string
}

// WithPlannerModel pins the study planner to a different structured model.
func WithPlannerModel(id string) Option {
	return func(o *options) {
		if id != "" {
			o.plannerModel = id
		}
	}
}

// New builds the persona registry against a model catalog.
func New(catalog *models.Registry, opts ...Option) (*Registry, error) {
	if catalog == nil {
		return nil, fmt.Errorf("persona: model catalog is required")
	}
	o := options{plannerModel: defaultPlannerModelID}
	for _, opt := range opts {
		opt(&o)
	}

	planner, err := catalog.Lookup(o.plannerModel)
	if err != nil {
		return nil, fmt.Errorf("persona: planner model: %w", err)
	}
	if !planner.IsStructured() || !planner.SupportsStructuredTools {
		return nil, fmt.Errorf("persona: planner model %s must support structured tools", planner.ID)
	}

	tools, err := builtinTools()
	if err != nil {
		return nil, fmt.Errorf("persona: %w", err)
	}

	profiles := []*Profile{
		{
			ID:     IDConceptTutor,
			Name:   "Concept Tutor",
			Intent: intent.Concept,
			Task:   models.TaskChat,
			role:   "You are a patient tutor who explains academic concepts to a student.",
			guidelines: []string{
				"Start from what the student likely already knows and build up one step at a time.",
				"Use a short worked example when it helps.",
				"End with a one-line check question the student can try.",
			},
		},
		{
			ID:     IDPerformanceAnalyst,
			Name:   "Performance Analyst",
			Intent: intent.Analysis,
			Task:   models.TaskAnalysis,
			role:   "You are an academic performance analyst reviewing a student's results.",
			guidelines: []string{
				"Ground every claim in the scores provided in the background; never invent numbers.",
				"Name the strongest and weakest areas and the trend between assessments.",
				"Suggest two or three concrete actions ordered by expected impact.",
			},
			tools: []models.ToolDeclaration{tools[ToolRenderChart].decl},
		},
		{
			ID:                      IDStudyPlanner,
			Name:                    "Study Planner",
			Intent:                  intent.Planning,
			Task:                    models.TaskPlanning,
			RequiresStructuredTools: true,
			PinnedModel:             planner.ID,
			role:                    "You are a study planner who turns goals and deadlines into a realistic schedule.",
			guidelines: []string{
				"Prioritize the weakest subjects without dropping the others.",
				"Keep daily workloads realistic and include rest.",
				"Use the checklist tool for the plan and the chart tool for progress targets.",
			},
			tools: []models.ToolDeclaration{tools[ToolRenderChart].decl, tools[ToolCreateChecklist].decl},
		},
		{
			ID:     IDWellbeingCompanion,
			Name:   "Wellbeing Companion",
			Intent: intent.Emotional,
			Task:   models.TaskChat,
			role:   "You are a warm, supportive companion for a student under academic pressure.",
			guidelines: []string{
				"Acknowledge the feeling before offering any suggestion.",
				"Do not analyze scores or produce plans unless the student asks.",
				"If the student mentions self-harm or a crisis, encourage them to contact a trusted adult, counselor or local emergency service.",
			},
		},
		{
			ID:     IDGeneralAssistant,
			Name:   "General Assistant",
			Intent: intent.General,
			Task:   models.TaskChat,
			role:   "You are a friendly assistant on a student performance dashboard.",
			guidelines: []string{
				"Answer briefly and point the student to what the dashboard can help with.",
			},
		},
	}

	r := &Registry{
		byIntent: make(map[intent.Intent]*Profile, len(profiles)),
		byID:     make(map[string]*Profile, len(profiles)),
		tools:    tools,
	}
	for _, p := range profiles {
		p.catalog = catalog
		r.byIntent[p.Intent] = p
		r.byID[p.ID] = p
	}
	r.fallback = r.byIntent[intent.General]
	return r, nil
}

// Get returns the persona for an intent. Unmapped intents get the general
// assistant.
func (r *Registry) Get(i intent.Intent) *Profile {
	if p, ok := r.byIntent[i]; ok {
		return p
	}
	return r.fallback
}

// ByID returns a persona by identifier.
func (r *Registry) ByID(id string) (*Profile, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// List returns every persona in intent priority order.
func (r *Registry) List() []*Profile {
	out := make([]*Profile, 0, len(r.byIntent))
	for _, i := range intent.All() {
		if p, ok := r.byIntent[i]; ok {
			out = append(out, p)
		}
	}
	return out
}
