package models

import (
	"fmt"
	"strings"
)

// TaskCategory selects which fallback chain applies to a request.
type TaskCategory string

const (
	TaskChat     TaskCategory = "chat"
	TaskAnalysis TaskCategory = "analysis"
	TaskPlanning TaskCategory = "planning"
	TaskCreative TaskCategory = "creative"
	TaskMath     TaskCategory = "math"
	TaskCoding   TaskCategory = "coding"
)

// AllTaskCategories returns every task category in a stable order.
func AllTaskCategories() []TaskCategory {
	return []TaskCategory{TaskChat, TaskAnalysis, TaskPlanning, TaskCreative, TaskMath, TaskCoding}
}

// Valid reports whether t is a known category.
func (t TaskCategory) Valid() bool {
	switch t {
	case TaskChat, TaskAnalysis, TaskPlanning, TaskCreative, TaskMath, TaskCoding:
		return true
	}
	return false
}

// RequiresReasoning reports whether the category involves multi-step reasoning.
func (t TaskCategory) RequiresReasoning() bool {
	switch t {
	case TaskAnalysis, TaskMath, TaskPlanning, TaskCoding:
		return true
	}
	return false
}

// ParseTaskCategory parses a category name, case-insensitively.
func ParseTaskCategory(s string) (TaskCategory, error) {
	t := TaskCategory(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown task category %q", s)
	}
	return t, nil
}

// ChainConfig describes the fallback chains and the safety-net models.
type ChainConfig struct {
	// Chains lists preferred model ids per category, most capable first.
	Chains map[TaskCategory][]string `yaml:"chains"`

	// ReasoningModel is appended for categories that require reasoning.
	ReasoningModel string `yaml:"reasoning_model"`

	// LatencyModel is appended for lighter categories.
	LatencyModel string `yaml:"latency_model"`

	// TerminalModel is the most reliable structured model, always last.
	TerminalModel string `yaml:"terminal_model"`
}

// DefaultChainConfig returns the built-in chains.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		Chains: map[TaskCategory][]string{
			TaskChat:     {ModelLlamaChat, ModelGroqLlama, ModelGemma, ModelGeminiFlashLite},
			TaskAnalysis: {ModelDeepSeekR1, ModelGroqDeepSeek, ModelGeminiPro},
			TaskPlanning: {ModelGeminiFlash},
			TaskCreative: {ModelMistralSmall, ModelLlamaChat, ModelGeminiFlash},
			TaskMath:     {ModelDeepSeekR1, ModelGroqDeepSeek, ModelGeminiPro},
			TaskCoding:   {ModelQwenCoder, ModelDeepSeekR1, ModelGeminiPro},
		},
		ReasoningModel: ModelGeminiPro,
		LatencyModel:   ModelGeminiFlashLite,
		TerminalModel:  ModelGeminiFlash,
	}
}

// ChainTable is the read-only mapping from task category to fallback chain.
// Every chain ends in a structured model.
type ChainTable struct {
	chains    map[TaskCategory][]string
	reasoning string
	latency   string
	terminal  string
}

// NewChainTable validates cfg against reg. All ids are canonicalized, so
// aliases are accepted in configuration.
func NewChainTable(reg *Registry, cfg ChainConfig) (*ChainTable, error) {
	if reg == nil {
		return nil, fmt.Errorf("chains: registry is required")
	}

	t := &ChainTable{chains: make(map[TaskCategory][]string, len(cfg.Chains))}

	for task := range cfg.Chains {
		if !task.Valid() {
			return nil, fmt.Errorf("chains: unknown task category %q", task)
		}
	}

	for _, task := range AllTaskCategories() {
		chain, ok := cfg.Chains[task]
		if !ok || len(chain) == 0 {
			return nil, fmt.Errorf("chains: %s chain is empty", task)
		}
		ids := make([]string, 0, len(chain))
		for _, ref := range chain {
			m, err := reg.Lookup(ref)
			if err != nil {
				return nil, fmt.Errorf("chains: %s: %w", task, err)
			}
			ids = append(ids, m.ID)
		}
		last, _ := reg.Get(ids[len(ids)-1])
		if !last.IsStructured() {
			return nil, fmt.Errorf("chains: %s chain must end in a structured model, got %s", task, last.ID)
		}
		t.chains[task] = ids
	}

	var err error
	if t.reasoning, err = structuredID(reg, "reasoning_model", cfg.ReasoningModel); err != nil {
		return nil, err
	}
	if t.latency, err = structuredID(reg, "latency_model", cfg.LatencyModel); err != nil {
		return nil, err
	}
	if t.terminal, err = structuredID(reg, "terminal_model", cfg.TerminalModel); err != nil {
		return nil, err
	}

	return t, nil
}

func structuredID(reg *Registry, field, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("chains: %s is required", field)
	}
	m, err := reg.Lookup(ref)
	if err != nil {
		return "", fmt.Errorf("chains: %s: %w", field, err)
	}
	if !m.IsStructured() {
		return "", fmt.Errorf("chains: %s must be a structured model, got %s", field, m.ID)
	}
	return m.ID, nil
}

// Chain returns a copy of the chain for task.
func (t *ChainTable) Chain(task TaskCategory) []string {
	return append([]string(nil), t.chains[task]...)
}

// ReasoningModel returns the high-reasoning safety-net model.
func (t *ChainTable) ReasoningModel() string { return t.reasoning }

// LatencyModel returns the low-latency safety-net model.
func (t *ChainTable) LatencyModel() string { return t.latency }

// TerminalModel returns the model appended last to every candidate list.
func (t *ChainTable) TerminalModel() string { return t.terminal }

// SafetyNet returns the complexity-based safety-net model for task.
func (t *ChainTable) SafetyNet(task TaskCategory) string {
	if task.RequiresReasoning() {
		return t.reasoning
	}
	return t.latency
}
