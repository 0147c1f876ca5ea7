package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/scholar/internal/models"
)

// Default OpenAI-compatible endpoints per provider key.
var DefaultEndpoints = map[string]string{
	"openrouter": "https://openrouter.ai/api/v1",
	"groq":       "https://api.groq.com/openai/v1",
}

// GenericConfig configures the OpenAI-compatible backend.
type GenericConfig struct {
	// Endpoints maps provider keys to base URLs. Missing providers fall back
	// to DefaultEndpoints.
	Endpoints map[string]string

	// MaxClients bounds the per-key client cache. Zero means
	// DefaultMaxClients.
	MaxClients int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// GenericBackend reaches generic-chat models through any OpenAI-compatible
// chat completion endpoint. Tools are never sent on this path.
type GenericBackend struct {
	endpoints  map[string]string
	httpClient *http.Client
	logger     *slog.Logger
	clients    *clientCache[*openai.Client]
}

// NewGenericBackend creates the generic-chat backend.
func NewGenericBackend(cfg GenericConfig) *GenericBackend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endpoints := make(map[string]string, len(DefaultEndpoints)+len(cfg.Endpoints))
	for k, v := range DefaultEndpoints {
		endpoints[k] = v
	}
	for k, v := range cfg.Endpoints {
		if v = strings.TrimSpace(v); v != "" {
			endpoints[k] = strings.TrimRight(v, "/")
		}
	}
	return &GenericBackend{
		endpoints:  endpoints,
		httpClient: cfg.HTTPClient,
		logger:     logger,
		clients:    newClientCache[*openai.Client](cfg.MaxClients),
	}
}

func (b *GenericBackend) client(provider, apiKey string) (*openai.Client, error) {
	baseURL, ok := b.endpoints[provider]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for provider %q", provider)
	}

	return b.clients.get(provider, apiKey, func() (*openai.Client, error) {
		clientConfig := openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = baseURL
		if b.httpClient != nil {
			clientConfig.HTTPClient = b.httpClient
		}
		return openai.NewClientWithConfig(clientConfig), nil
	})
}

// Generate implements Backend.
func (b *GenericBackend) Generate(ctx context.Context, model models.ModelDescriptor, apiKey string, req Request) (*Result, error) {
	client, err := b.client(model.Provider, apiKey)
	if err != nil {
		pe := NewProviderError(model.Provider, model.ID, err)
		pe.Reason = FailoverInvalidRequest
		return nil, pe
	}

	chatReq := b.buildRequest(model, req)

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, wrapOpenAIError(err, model)
	}

	if len(resp.Choices) == 0 {
		return nil, newMalformedError(model.Provider, model.ID, errors.New("response has no choices"))
	}
	choice := resp.Choices[0]
	text := choice.Message.Content
	if strings.TrimSpace(text) == "" {
		if choice.FinishReason == openai.FinishReasonContentFilter {
			pe := NewProviderError(model.Provider, model.ID, errors.New("response blocked by content filter"))
			pe.Reason = FailoverContentFilter
			return nil, pe
		}
		return nil, newMalformedError(model.Provider, model.ID,
			fmt.Errorf("empty response (finish reason %q)", choice.FinishReason))
	}

	return &Result{
		Text:             text,
		Model:            model.ID,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// buildRequest renders a plain chat request. response_format is only set for
// models on the JSON allowlist; the JSON instruction is always in the prompt.
func (b *GenericBackend) buildRequest(model models.ModelDescriptor, req Request) openai.ChatCompletionRequest {
	if len(req.Tools) > 0 {
		b.logger.Debug("generic chat path does not send tools",
			"model", model.ID,
			"tools", len(req.Tools),
		)
	}

	prompt := req.Prompt
	if req.JSON {
		prompt = withJSONInstruction(prompt, req.ResponseSchema)
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.SystemInstruction); system != "" {
		if model.SupportsSystemInstruction {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			})
		} else {
			prompt = foldInstruction(system, prompt)
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:    model.ID,
		Messages: messages,
	}
	if req.MaxOutputTokens > 0 {
		chatReq.MaxTokens = req.MaxOutputTokens
	}
	if req.JSON && model.SupportsJSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return chatReq
}

func wrapOpenAIError(err error, model models.ModelDescriptor) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	providerErr := NewProviderError(model.Provider, model.ID, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			providerErr = providerErr.WithMessage(apiErr.Message)
		}
		if apiErr.HTTPStatusCode != 0 {
			providerErr = providerErr.WithStatus(apiErr.HTTPStatusCode)
		}
		if code := errorCodeString(apiErr.Code); code != "" {
			providerErr = providerErr.WithCode(code)
		} else if apiErr.Type != "" {
			providerErr = providerErr.WithCode(apiErr.Type)
		}
		return providerErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode != 0 {
			providerErr = providerErr.WithStatus(reqErr.HTTPStatusCode)
		}
		return providerErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		providerErr.Reason = FailoverTimeout
	}
	return providerErr
}

// errorCodeString renders the loosely typed code field of an API error.
func errorCodeString(code any) string {
	switch v := code.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}
