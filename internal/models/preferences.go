package models

import "encoding/json"

// ResponseStyle carries presentation flags a persona honors in its prompt.
type ResponseStyle struct {
	Concise  bool   `json:"concise,omitempty" yaml:"concise"`
	Tone     string `json:"tone,omitempty" yaml:"tone"`
	Language string `json:"language,omitempty" yaml:"language"`
}

// UserPreferences is per-user configuration owned by the caller. The
// orchestration layer only reads it.
type UserPreferences struct {
	DefaultModel  string                  `json:"default_model,omitempty" yaml:"default_model"`
	TaskOverrides map[TaskCategory]string `json:"task_overrides,omitempty" yaml:"task_overrides"`
	Style         ResponseStyle           `json:"style,omitempty" yaml:"style"`
}

// Override returns the user's model override for task, if any.
func (p UserPreferences) Override(task TaskCategory) (string, bool) {
	id, ok := p.TaskOverrides[task]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// WithOverride returns a copy of p with the override for task set to model.
// The receiver's map is not modified.
func (p UserPreferences) WithOverride(task TaskCategory, model string) UserPreferences {
	out := p
	out.TaskOverrides = make(map[TaskCategory]string, len(p.TaskOverrides)+1)
	for k, v := range p.TaskOverrides {
		out.TaskOverrides[k] = v
	}
	out.TaskOverrides[task] = model
	return out
}

// ToolDeclaration describes a function a model may call.
type ToolDeclaration struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a normalized function call returned by a model.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}
