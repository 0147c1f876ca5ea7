package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/haasonsaas/scholar/internal/models"
)

// Delimiters around a system instruction folded into the user turn.
const (
	foldedInstructionStart = "<<INSTRUCTIONS>>"
	foldedInstructionEnd   = "<</INSTRUCTIONS>>"
)

// StructuredConfig configures the Gemini backend.
type StructuredConfig struct {
	// BaseURL overrides the API endpoint (optional)
	BaseURL string

	// APIVersion overrides the API version (optional)
	APIVersion string

	// MaxClients bounds the per-key client cache. Zero means
	// DefaultMaxClients.
	MaxClients int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// StructuredBackend reaches structured-family models through the Gemini SDK.
// It is safe for concurrent use.
type StructuredBackend struct {
	cfg     StructuredConfig
	logger  *slog.Logger
	clients *clientCache[*genai.Client]
}

// NewStructuredBackend creates the Gemini backend. Clients are created lazily
// per API key and cached up to cfg.MaxClients.
func NewStructuredBackend(cfg StructuredConfig) *StructuredBackend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StructuredBackend{
		cfg:     cfg,
		logger:  logger,
		clients: newClientCache[*genai.Client](cfg.MaxClients),
	}
}

func (b *StructuredBackend) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	return b.clients.get("google", apiKey, func() (*genai.Client, error) {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: b.cfg.HTTPClient,
			HTTPOptions: genai.HTTPOptions{
				BaseURL:    b.cfg.BaseURL,
				APIVersion: b.cfg.APIVersion,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("google: failed to create client: %w", err)
		}
		return c, nil
	})
}

// Generate implements Backend.
func (b *StructuredBackend) Generate(ctx context.Context, model models.ModelDescriptor, apiKey string, req Request) (*Result, error) {
	client, err := b.client(ctx, apiKey)
	if err != nil {
		return nil, NewProviderError(model.Provider, model.ID, err)
	}

	contents, config := b.buildRequest(model, req)

	resp, err := client.Models.GenerateContent(ctx, model.ID, contents, config)
	if err != nil {
		return nil, wrapGenAIError(err, model)
	}
	return parseGenAIResponse(model, resp)
}

// buildRequest shapes the request to the model's capabilities. Lightweight
// variants get their instruction folded into the user turn and never receive
// tools.
func (b *StructuredBackend) buildRequest(model models.ModelDescriptor, req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	prompt := req.Prompt
	system := strings.TrimSpace(req.SystemInstruction)

	if system != "" {
		if model.SupportsSystemInstruction {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{
					{Text: system},
				},
			}
		} else {
			prompt = foldInstruction(system, prompt)
		}
	}

	if len(req.Tools) > 0 {
		switch {
		case model.IsLightweight(), !model.SupportsStructuredTools:
			b.logger.Warn("model does not support structured tools; dropping tool declarations",
				"model", model.ID,
				"lightweight", model.IsLightweight(),
				"tools", len(req.Tools),
			)
		case req.JSON:
			b.logger.Warn("JSON output requested; dropping tool declarations",
				"model", model.ID,
				"tools", len(req.Tools),
			)
		default:
			config.Tools = ToGeminiTools(req.Tools)
		}
	}

	if req.JSON {
		if model.SupportsJSONMode {
			config.ResponseMIMEType = "application/json"
			if len(req.ResponseSchema) > 0 {
				config.ResponseSchema = ToGeminiSchema(req.ResponseSchema)
			}
		} else {
			prompt = withJSONInstruction(prompt, req.ResponseSchema)
		}
	}

	if req.MaxOutputTokens > 0 {
		maxTokens := min(req.MaxOutputTokens, math.MaxInt32)
		// #nosec G115 -- bounded by min above
		config.MaxOutputTokens = int32(maxTokens)
	}

	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	return contents, config
}

func foldInstruction(system, prompt string) string {
	return foldedInstructionStart + "\n" + system + "\n" + foldedInstructionEnd + "\n\n" + prompt
}

func parseGenAIResponse(model models.ModelDescriptor, resp *genai.GenerateContentResponse) (*Result, error) {
	if resp == nil {
		return nil, newMalformedError(model.Provider, model.ID, errors.New("nil response"))
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			pe := NewProviderError(model.Provider, model.ID,
				fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
			pe.Reason = FailoverContentFilter
			return nil, pe
		}
		return nil, newMalformedError(model.Provider, model.ID, errors.New("response has no candidates"))
	}

	candidate := resp.Candidates[0]
	result := &Result{
		Model:        model.ID,
		FinishReason: string(candidate.FinishReason),
	}

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				result.ToolCalls = append(result.ToolCalls, toToolCall(part.FunctionCall))
			}
		}
		result.Text = text.String()
	}

	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if strings.TrimSpace(result.Text) == "" && len(result.ToolCalls) == 0 {
		if candidate.FinishReason == genai.FinishReasonSafety {
			pe := NewProviderError(model.Provider, model.ID, errors.New("response blocked by safety filters"))
			pe.Reason = FailoverContentFilter
			return nil, pe
		}
		return nil, newMalformedError(model.Provider, model.ID,
			fmt.Errorf("empty response (finish reason %q)", candidate.FinishReason))
	}
	return result, nil
}

func toToolCall(fc *genai.FunctionCall) models.ToolCall {
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	args, err := json.Marshal(fc.Args)
	if err != nil || fc.Args == nil {
		args = json.RawMessage("{}")
	}
	return models.ToolCall{
		ID:        id,
		Name:      fc.Name,
		Arguments: args,
	}
}

func wrapGenAIError(err error, model models.ModelDescriptor) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	providerErr := NewProviderError(model.Provider, model.ID, err)

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			providerErr = providerErr.WithMessage(apiErr.Message)
		}
		if apiErr.Code != 0 {
			providerErr = providerErr.WithStatus(apiErr.Code)
		}
		if apiErr.Status != "" {
			providerErr = providerErr.WithCode(strings.ToLower(apiErr.Status))
		}
		return providerErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		providerErr.Reason = FailoverTimeout
		return providerErr
	}

	// Try to extract status code from error message
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "401") || strings.Contains(errMsg, "unauthenticated") {
		providerErr = providerErr.WithStatus(http.StatusUnauthorized)
	} else if strings.Contains(errMsg, "403") || strings.Contains(errMsg, "permission denied") {
		providerErr = providerErr.WithStatus(http.StatusForbidden)
	} else if strings.Contains(errMsg, "404") || strings.Contains(errMsg, "not found") {
		providerErr = providerErr.WithStatus(http.StatusNotFound)
	} else if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		providerErr = providerErr.WithStatus(http.StatusTooManyRequests)
	} else if strings.Contains(errMsg, "500") {
		providerErr = providerErr.WithStatus(http.StatusInternalServerError)
	} else if strings.Contains(errMsg, "503") {
		providerErr = providerErr.WithStatus(http.StatusServiceUnavailable)
	}

	return providerErr
}
