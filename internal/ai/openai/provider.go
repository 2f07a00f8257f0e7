// Package openai implements ai.ChatProvider on the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/cairn/internal/ai"
	"github.com/DukeRupert/cairn/internal/domain"
	goopenai "github.com/sashabaranov/go-openai"
)

// DefaultModels maps model tiers to OpenAI models.
var DefaultModels = map[domain.ModelTier]string{
	domain.ModelTierBasic:    "gpt-4o-mini",
	domain.ModelTierAdvanced: "gpt-4o",
	domain.ModelTierPremium:  "gpt-4.1",
}

// Config contains configuration for the OpenAI provider
type Config struct {
	APIKey         string
	BaseURL        string // Optional; for compatible gateways
	Models         map[domain.ModelTier]string
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.ChatProvider using go-openai
type Provider struct {
	config Config
	client *goopenai.Client
	logger *slog.Logger
}

var _ ai.ChatProvider = (*Provider)(nil)

// New creates a new OpenAI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	config.ProviderConfig = config.ProviderConfig.WithDefaults()

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.ProviderConfig.RequestTimeout}

	return &Provider{
		config: config,
		client: goopenai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

func (p *Provider) model(tier domain.ModelTier) string {
	if m, ok := p.config.Models[tier]; ok && m != "" {
		return m
	}
	if m, ok := DefaultModels[tier]; ok {
		return m
	}
	return DefaultModels[domain.ModelTierBasic]
}

// Chat sends the conversation to OpenAI and returns the reply
func (p *Provider) Chat(ctx context.Context, params ai.ChatParams) (*ai.ChatResult, error) {
	startTime := time.Now()

	if len(params.History) == 0 {
		return nil, ai.WrapError("chat", ai.EAIInvalidRequest)
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(params.History)+1)
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: ai.SystemPrompt(params.Snapshot, params.DeepAnalysis),
	})
	for _, m := range params.History {
		role := goopenai.ChatMessageRoleUser
		if m.Role == domain.ChatRoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	maxTokens := 512
	if params.DeepAnalysis {
		maxTokens = 2048
	}

	req := goopenai.ChatCompletionRequest{
		Model:     p.model(params.Tier),
		Messages:  messages,
		MaxTokens: maxTokens,
		User:      params.UserID.String(),
	}

	var resp goopenai.ChatCompletionResponse
	err := ai.Retry(ctx, p.config.ProviderConfig, p.logRetry, func() error {
		var reqErr error
		resp, reqErr = p.client.CreateChatCompletion(ctx, req)
		return mapError(reqErr)
	})
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ai.WrapError("parse response", fmt.Errorf("empty completion"))
	}

	return &ai.ChatResult{
		Content: resp.Choices[0].Message.Content,
		Usage: ai.UsageInfo{
			Model:        resp.Model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			Duration:     time.Since(startTime),
		},
	}, nil
}

func (p *Provider) logRetry(attempt int, delay time.Duration, err error) {
	p.logger.Info("Retrying AI request", "provider", "openai", "attempt", attempt, "delay", delay, "error", err)
}

// mapError converts go-openai errors to provider errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.EAITimeout
	}

	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		// Transport failure before any response.
		return fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %v", ai.EAIInvalidRequest, err)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ai.EAIUnavailable
	default:
		return err
	}
}
