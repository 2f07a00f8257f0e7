// Package ai defines the chat provider used for financial advice
// conversations and the errors shared by every provider.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
)

// ChatProvider generates assistant replies for a conversation.
type ChatProvider interface {
	// Chat returns the assistant's reply to the last message in params.History.
	Chat(ctx context.Context, params ChatParams) (*ChatResult, error)
}

// ChatParams contains parameters for a chat completion.
type ChatParams struct {
	UserID       uuid.UUID
	Tier         domain.ModelTier // Selects the model class
	DeepAnalysis bool             // Longer, more structured answer
	Snapshot     string           // Plain-text summary of the user's finances
	History      []Message        // Oldest first; the last entry is the new user turn
}

// Message is one turn passed to the provider.
type Message struct {
	Role    domain.ChatRole
	Content string
}

// ChatResult is the provider's reply.
type ChatResult struct {
	Content string
	Usage   UsageInfo
}

// UsageInfo tracks API usage for monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// WithDefaults returns c with zero fields set to their defaults.
func (c ProviderConfig) WithDefaults() ProviderConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 1 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	return c
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidRequest indicates the provider rejected the request
	EAIInvalidRequest = errors.New("invalid ai request")

	// EAIContentPolicy indicates the prompt violates content policy
	EAIContentPolicy = errors.New("prompt violates content policy")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

// Retry runs fn up to cfg.MaxRetries times with exponential backoff, retrying
// only errors for which IsRetryable is true.
func Retry(ctx context.Context, cfg ProviderConfig, onRetry func(attempt int, delay time.Duration, err error), fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= cfg.MaxRetries {
			break
		}

		// Exponential: base * 2^(attempt-1)
		delay := cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
