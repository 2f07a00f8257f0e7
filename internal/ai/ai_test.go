package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	cfg := ProviderConfig{MaxRetries: 3, RetryBaseDelay: time.Millisecond}

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, nil, func() error {
			calls++
			if calls < 3 {
				return EAIUnavailable
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, nil, func() error {
			calls++
			return EAIUnauthorized
		})
		assert.ErrorIs(t, err, EAIUnauthorized)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, nil, func() error {
			calls++
			return EAIRateLimit
		})
		assert.ErrorIs(t, err, EAIRateLimit)
		assert.Equal(t, 3, calls)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapError("chat", EAITimeout)))
	assert.False(t, IsRetryable(EAIContentPolicy))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt("Income (30d): $4,000.00", true)
	assert.Contains(t, p, "deep analysis")
	assert.Contains(t, p, "Income (30d)")

	p = SystemPrompt("", false)
	assert.Contains(t, p, "under 150 words")
	assert.NotContains(t, p, "snapshot:")
}
