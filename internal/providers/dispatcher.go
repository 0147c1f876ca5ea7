// Package providers dispatches a single inference request to the provider that
// serves a model, normalizing the reply and its failures.
//
// Two protocol families exist. Structured models are reached through the
// Gemini SDK and keep system instructions, tool declarations and
// schema-constrained JSON. Generic-chat models are reached through any
// OpenAI-compatible endpoint and receive a plain prompt. Which path a request
// takes, and which features survive, is decided from the model descriptor's
// capability flags.
package providers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/haasonsaas/scholar/internal/models"
)

// Request is a single inference call.
type Request struct {
	Model             string
	Prompt            string
	SystemInstruction string
	Tools             []models.ToolDeclaration

	// JSON requests a JSON reply. ResponseSchema, when set, constrains and
	// validates it.
	JSON           bool
	ResponseSchema map[string]any

	MaxOutputTokens int
}

// Result is the normalized reply of any provider.
type Result struct {
	Text             string            `json:"text"`
	Model            string            `json:"model"`
	ToolCalls        []models.ToolCall `json:"tool_calls,omitempty"`
	FinishReason     string            `json:"finish_reason,omitempty"`
	PromptTokens     int               `json:"prompt_tokens,omitempty"`
	CompletionTokens int               `json:"completion_tokens,omitempty"`
}

// Backend performs a call for one protocol family.
type Backend interface {
	Generate(ctx context.Context, model models.ModelDescriptor, apiKey string, req Request) (*Result, error)
}

// Dispatcher routes requests to the backend of the model's family.
type Dispatcher struct {
	registry   *models.Registry
	structured Backend
	generic    Backend
	maxTokens  int
	logger     *slog.Logger
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry   *models.Registry
	Structured Backend
	Generic    Backend

	// MaxOutputTokens applies when a request sets none.
	MaxOutputTokens int

	Logger *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("providers: registry is required")
	}
	if cfg.Structured == nil || cfg.Generic == nil {
		return nil, errors.New("providers: both structured and generic backends are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:   cfg.Registry,
		structured: cfg.Structured,
		generic:    cfg.Generic,
		maxTokens:  cfg.MaxOutputTokens,
		logger:     logger,
	}, nil
}

// Dispatch sends req to its model's provider. Failures are *ProviderError.
// A provider with no credential fails fast with reason credential_missing.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, creds Credentials) (*Result, error) {
	desc, err := d.registry.Lookup(req.Model)
	if err != nil {
		pe := NewProviderError("", req.Model, err)
		pe.Reason = FailoverModelUnavailable
		return nil, pe
	}

	if creds == nil {
		creds = NoCredentials
	}
	apiKey, ok := creds.Lookup(desc.Provider)
	if !ok {
		return nil, newCredentialError(desc.Provider, desc.ID)
	}

	if req.MaxOutputTokens <= 0 {
		req.MaxOutputTokens = d.maxTokens
	}
	req.Model = desc.ID

	backend := d.generic
	if desc.IsStructured() {
		backend = d.structured
	}
	d.logger.Debug("dispatching request",
		"model", desc.ID,
		"provider", desc.Provider,
		"family", desc.Family,
		"tools", len(req.Tools),
		"json", req.JSON,
	)

	result, err := backend.Generate(ctx, desc, apiKey, req)
	if err != nil {
		return nil, wrapDispatchError(err, desc)
	}
	if result == nil {
		return nil, newMalformedError(desc.Provider, desc.ID, errors.New("empty result"))
	}
	result.Model = desc.ID

	if req.JSON {
		cleaned, err := NormalizeJSON(result.Text, req.ResponseSchema)
		if err != nil {
			return nil, newMalformedError(desc.Provider, desc.ID, err)
		}
		result.Text = cleaned
	}
	return result, nil
}

// wrapDispatchError guarantees a ProviderError, honoring context expiry.
func wrapDispatchError(err error, desc models.ModelDescriptor) error {
	if IsProviderError(err) {
		return err
	}
	pe := NewProviderError(desc.Provider, desc.ID, err)
	if errors.Is(err, context.DeadlineExceeded) {
		pe.Reason = FailoverTimeout
	}
	return pe
}

// Complete adapts the dispatcher to a single-prompt text completion against a
// fixed model, as used by the intent classifier.
func (d *Dispatcher) Complete(ctx context.Context, model string, creds Credentials, prompt string) (string, error) {
	res, err := d.Dispatch(ctx, Request{Model: model, Prompt: prompt, MaxOutputTokens: 32}, creds)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Registry returns the catalog the dispatcher resolves models against.
func (d *Dispatcher) Registry() *models.Registry {
	return d.registry
}
