// Package models provides the catalog of inference models, the per-task fallback
// chains, and the resolver that turns both into an ordered candidate list.
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Family identifies which dispatch protocol a model is reached through.
type Family string

const (
	// FamilyStructured models accept system instructions, tool declarations and
	// schema-constrained JSON output through the native SDK.
	FamilyStructured Family = "structured"

	// FamilyGenericChat models only expose an OpenAI-compatible chat completion
	// endpoint.
	FamilyGenericChat Family = "generic_chat"
)

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	return f == FamilyStructured || f == FamilyGenericChat
}

// CostTier identifies a model's relative price.
type CostTier string

const (
	TierFree     CostTier = "free"
	TierLow      CostTier = "low"
	TierStandard CostTier = "standard"
	TierPremium  CostTier = "premium"
)

// Valid reports whether t is a known cost tier.
func (t CostTier) Valid() bool {
	switch t {
	case TierFree, TierLow, TierStandard, TierPremium:
		return true
	}
	return false
}

// ErrUnknownModel is returned when a model id is not in the catalog.
var ErrUnknownModel = errors.New("unknown model")

// ModelDescriptor is an immutable catalog entry.
type ModelDescriptor struct {
	// ID is the identifier sent to the provider.
	ID string `json:"id" yaml:"id"`

	// Name is a human-readable name used in attribution markers.
	Name string `json:"name,omitempty" yaml:"name"`

	// Family selects the dispatch path.
	Family Family `json:"family" yaml:"family"`

	// Provider is the credential key (google, openrouter, groq, ...).
	Provider string `json:"provider" yaml:"provider"`

	ContextWindow int `json:"context_window" yaml:"context_window"`

	SupportsStructuredTools bool `json:"supports_structured_tools" yaml:"supports_structured_tools"`

	// SupportsJSONMode means the provider honors a native JSON output flag for
	// this model. For generic-chat models this is the response_format allowlist.
	SupportsJSONMode bool `json:"supports_json_mode" yaml:"supports_json_mode"`

	SupportsVision bool `json:"supports_vision" yaml:"supports_vision"`

	// SupportsSystemInstruction is false for lightweight instruction-tuned
	// variants that take neither a system instruction field nor tools.
	SupportsSystemInstruction bool `json:"supports_system_instruction" yaml:"supports_system_instruction"`

	CostTier CostTier `json:"cost_tier" yaml:"cost_tier"`

	// Aliases are alternative names accepted in preferences and config.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases"`
}

// DisplayName returns Name, falling back to ID.
func (m ModelDescriptor) DisplayName() string {
	if strings.TrimSpace(m.Name) != "" {
		return m.Name
	}
	return m.ID
}

// IsStructured reports whether the model uses the structured dispatch path.
func (m ModelDescriptor) IsStructured() bool {
	return m.Family == FamilyStructured
}

// IsLightweight reports whether the model cannot take a separate system
// instruction and must have it folded into the first user turn.
func (m ModelDescriptor) IsLightweight() bool {
	return m.Family == FamilyStructured && !m.SupportsSystemInstruction
}

func (m ModelDescriptor) clone() ModelDescriptor {
	out := m
	if len(m.Aliases) > 0 {
		out.Aliases = append([]string(nil), m.Aliases...)
	}
	return out
}

func (m ModelDescriptor) validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("model id is required")
	}
	if !m.Family.Valid() {
		return fmt.Errorf("model %s: unknown family %q", m.ID, m.Family)
	}
	if strings.TrimSpace(m.Provider) == "" {
		return fmt.Errorf("model %s: provider is required", m.ID)
	}
	if m.ContextWindow < 0 {
		return fmt.Errorf("model %s: context window must be non-negative", m.ID)
	}
	if m.CostTier != "" && !m.CostTier.Valid() {
		return fmt.Errorf("model %s: unknown cost tier %q", m.ID, m.CostTier)
	}
	if m.IsLightweight() && m.SupportsStructuredTools {
		return fmt.Errorf("model %s: supports_structured_tools requires supports_system_instruction", m.ID)
	}
	return nil
}

// Registry is a read-only catalog of models. It is built once and shared; no
// method mutates it.
type Registry struct {
	models  map[string]ModelDescriptor // id -> model
	aliases map[string]string          // alias -> id
}

// NewRegistry validates descs and builds a registry from them.
func NewRegistry(descs ...ModelDescriptor) (*Registry, error) {
	r := &Registry{
		models:  make(map[string]ModelDescriptor, len(descs)),
		aliases: make(map[string]string),
	}
	for _, d := range descs {
		if err := r.add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Extend returns a new registry holding the current models plus descs. The
// receiver is left untouched.
func (r *Registry) Extend(descs ...ModelDescriptor) (*Registry, error) {
	all := make([]ModelDescriptor, 0, len(r.models)+len(descs))
	for _, id := range r.ids() {
		all = append(all, r.models[id])
	}
	all = append(all, descs...)
	return NewRegistry(all...)
}

func (r *Registry) add(d ModelDescriptor) error {
	// Credential keys are lowercase.
	d.Provider = strings.ToLower(strings.TrimSpace(d.Provider))
	if err := d.validate(); err != nil {
		return err
	}
	if d.CostTier == "" {
		d.CostTier = TierStandard
	}
	if _, exists := r.models[d.ID]; exists {
		return fmt.Errorf("duplicate model id %q", d.ID)
	}
	if owner, exists := r.aliases[strings.ToLower(d.ID)]; exists {
		return fmt.Errorf("model id %q collides with alias of %q", d.ID, owner)
	}
	for _, alias := range d.Aliases {
		key := strings.ToLower(strings.TrimSpace(alias))
		if key == "" {
			continue
		}
		if owner, exists := r.aliases[key]; exists {
			return fmt.Errorf("alias %q of %q already registered for %q", alias, d.ID, owner)
		}
		if _, exists := r.models[alias]; exists {
			return fmt.Errorf("alias %q of %q collides with a model id", alias, d.ID)
		}
		r.aliases[key] = d.ID
	}
	r.models[d.ID] = d.clone()
	return nil
}

// Get retrieves a model by ID or alias.
func (r *Registry) Get(id string) (ModelDescriptor, bool) {
	if r == nil {
		return ModelDescriptor{}, false
	}
	if m, ok := r.models[id]; ok {
		return m.clone(), true
	}
	if realID, ok := r.aliases[strings.ToLower(strings.TrimSpace(id))]; ok {
		return r.models[realID].clone(), true
	}
	return ModelDescriptor{}, false
}

// Lookup is like Get but returns ErrUnknownModel for missing ids.
func (r *Registry) Lookup(id string) (ModelDescriptor, error) {
	m, ok := r.Get(id)
	if !ok {
		return ModelDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return m, nil
}

// Canonical resolves an alias to its model id.
func (r *Registry) Canonical(id string) (string, bool) {
	m, ok := r.Get(id)
	if !ok {
		return "", false
	}
	return m.ID, true
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.models)
}

// List returns all models matching filter, sorted by family, tier, then id.
func (r *Registry) List(filter *Filter) []ModelDescriptor {
	if r == nil {
		return nil
	}
	var result []ModelDescriptor
	for _, m := range r.models {
		if filter.Matches(m) {
			result = append(result, m.clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Family != result[j].Family {
			return result[i].Family < result[j].Family
		}
		if result[i].CostTier != result[j].CostTier {
			return tierRank(result[i].CostTier) < tierRank(result[j].CostTier)
		}
		return result[i].ID < result[j].ID
	})

	return result
}

// Providers returns the distinct provider keys in the registry.
func (r *Registry) Providers() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range r.models {
		if !seen[m.Provider] {
			seen[m.Provider] = true
			out = append(out, m.Provider)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) ids() []string {
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Filter for querying models.
type Filter struct {
	Families  []Family
	Providers []string
	CostTiers []CostTier

	RequireTools  bool
	RequireJSON   bool
	RequireVision bool

	// Minimum context window
	MinContextWindow int
}

// Matches checks if a model matches the filter.
func (f *Filter) Matches(m ModelDescriptor) bool {
	if f == nil {
		return true
	}

	if len(f.Families) > 0 && !containsValue(f.Families, m.Family) {
		return false
	}
	if len(f.Providers) > 0 && !containsValue(f.Providers, m.Provider) {
		return false
	}
	if len(f.CostTiers) > 0 && !containsValue(f.CostTiers, m.CostTier) {
		return false
	}

	if f.RequireTools && !m.SupportsStructuredTools {
		return false
	}
	if f.RequireJSON && !m.SupportsJSONMode {
		return false
	}
	if f.RequireVision && !m.SupportsVision {
		return false
	}

	if f.MinContextWindow > 0 && m.ContextWindow < f.MinContextWindow {
		return false
	}

	return true
}

func containsValue[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func tierRank(t CostTier) int {
	switch t {
	case TierFree:
		return 0
	case TierLow:
		return 1
	case TierStandard:
		return 2
	case TierPremium:
		return 3
	default:
		return 4
	}
}

// Built-in model ids referenced by the default chains.
const (
	ModelGeminiPro       = "gemini-2.5-pro"
	ModelGeminiFlash     = "gemini-2.5-flash"
	ModelGeminiFlashLite = "gemini-2.5-flash-lite"
	ModelGemma           = "gemma-3-27b-it"

	ModelDeepSeekR1   = "deepseek/deepseek-r1:free"
	ModelQwenCoder    = "qwen/qwen-2.5-coder-32b-instruct:free"
	ModelLlamaChat    = "meta-llama/llama-3.3-70b-instruct:free"
	ModelMistralSmall = "mistralai/mistral-small-3.1-24b-instruct:free"
	ModelGPT4oMini    = "openai/gpt-4o-mini"

	ModelGroqLlama    = "llama-3.3-70b-versatile"
	ModelGroqDeepSeek = "deepseek-r1-distill-llama-70b"
)

// DefaultModels returns the built-in catalog entries.
func DefaultModels() []ModelDescriptor {
	return []ModelDescriptor{
		// Structured provider
		{
			ID:                        ModelGeminiPro,
			Name:                      "Gemini 2.5 Pro",
			Family:                    FamilyStructured,
			Provider:                  "google",
			ContextWindow:             1048576,
			SupportsStructuredTools:   true,
			SupportsJSONMode:          true,
			SupportsVision:            true,
			SupportsSystemInstruction: true,
			CostTier:                  TierPremium,
			Aliases:                   []string{"gemini-pro"},
		},
		{
			ID:                        ModelGeminiFlash,
			Name:                      "Gemini 2.5 Flash",
			Family:                    FamilyStructured,
			Provider:                  "google",
			ContextWindow:             1048576,
			SupportsStructuredTools:   true,
			SupportsJSONMode:          true,
			SupportsVision:            true,
			SupportsSystemInstruction: true,
			CostTier:                  TierLow,
			Aliases:                   []string{"gemini-flash", "gemini"},
		},
		{
			ID:                        ModelGeminiFlashLite,
			Name:                      "Gemini 2.5 Flash-Lite",
			Family:                    FamilyStructured,
			Provider:                  "google",
			ContextWindow:             1048576,
			SupportsStructuredTools:   true,
			SupportsJSONMode:          true,
			SupportsVision:            true,
			SupportsSystemInstruction: true,
			CostTier:                  TierFree,
			Aliases:                   []string{"gemini-flash-lite"},
		},
		{
			ID:                        ModelGemma,
			Name:                      "Gemma 3 27B",
			Family:                    FamilyStructured,
			Provider:                  "google",
			ContextWindow:             131072,
			SupportsStructuredTools:   false,
			SupportsJSONMode:          false,
			SupportsVision:            true,
			SupportsSystemInstruction: false,
			CostTier:                  TierFree,
			Aliases:                   []string{"gemma"},
		},

		// OpenRouter
		{
			ID:                        ModelDeepSeekR1,
			Name:                      "DeepSeek R1",
			Family:                    FamilyGenericChat,
			Provider:                  "openrouter",
			ContextWindow:             163840,
			SupportsSystemInstruction: true,
			CostTier:                  TierFree,
			Aliases:                   []string{"deepseek-r1"},
		},
		{
			ID:                        ModelQwenCoder,
			Name:                      "Qwen 2.5 Coder 32B",
			Family:                    FamilyGenericChat,
			Provider:                  "openrouter",
			ContextWindow:             32768,
			SupportsSystemInstruction: true,
			CostTier:                  TierFree,
			Aliases:                   []string{"qwen-coder"},
		},
		{
			ID:                        ModelLlamaChat,
			Name:                      "Llama 3.3 70B",
			Family:                    FamilyGenericChat,
			Provider:                  "openrouter",
			ContextWindow:             131072,
			SupportsSystemInstruction: true,
			CostTier:                  TierFree,
			Aliases:                   []string{"llama-3.3"},
		},
		{
			ID:                        ModelMistralSmall,
			Name:                      "Mistral Small 3.1",
			Family:                    FamilyGenericChat,
			Provider:                  "openrouter",
			ContextWindow:             128000,
			SupportsSystemInstruction: true,
			CostTier:                  TierFree,
			Aliases:                   []string{"mistral-small"},
		},
		{
			ID:                        ModelGPT4oMini,
			Name:                      "GPT-4o mini",
			Family:                    FamilyGenericChat,
			Provider:                  "openrouter",
			ContextWindow:             128000,
			SupportsJSONMode:          true,
			SupportsVision:            true,
			SupportsSystemInstruction: true,
			CostTier:                  TierLow,
			Aliases:                   []string{"gpt-4o-mini"},
		},

		// Groq
		{
			ID:                        ModelGroqLlama,
			Name:                      "Llama 3.3 70B (Groq)",
			Family:                    FamilyGenericChat,
			Provider:                  "groq",
			ContextWindow:             131072,
			SupportsJSONMode:          true,
			SupportsSystemInstruction: true,
			CostTier:                  TierFree,
		},
		{
			ID:                        ModelGroqDeepSeek,
			Name:                      "DeepSeek R1 Distill (Groq)",
			Family:                    FamilyGenericChat,
			Provider:                  "groq",
			ContextWindow:             131072,
			SupportsSystemInstruction: true,
			CostTier:                  TierFree,
		},
	}
}

// DefaultRegistry builds a registry holding DefaultModels.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultModels()...)
	if err != nil {
		panic(fmt.Sprintf("models: invalid built-in catalog: %v", err))
	}
	return r
}
