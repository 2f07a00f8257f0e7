package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/cairn/internal/ai"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Models:  map[domain.ModelTier]string{domain.ModelTierPremium: "claude-premium"},
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     2,
			RetryBaseDelay: time.Millisecond,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func TestChat(t *testing.T) {
	var got apiRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","model":"claude-premium","content":[{"type":"text","text":"Save 10% first."}],"usage":{"input_tokens":12,"output_tokens":5}}`))
	})

	res, err := p.Chat(context.Background(), ai.ChatParams{
		Tier:     domain.ModelTierPremium,
		Snapshot: "Income (30d): $4,000.00",
		History:  []ai.Message{{Role: domain.ChatRoleUser, Content: "How do I start saving?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Save 10% first.", res.Content)
	assert.Equal(t, 12, res.Usage.InputTokens)
	assert.Equal(t, "claude-premium", got.Model)
	assert.Contains(t, got.System, "Income (30d)")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestChat_RetriesUnavailable(t *testing.T) {
	calls := 0
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	})

	res, err := p.Chat(context.Background(), ai.ChatParams{
		History: []ai.Message{{Role: domain.ChatRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 2, calls)
}

func TestChat_Unauthorized(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := p.Chat(context.Background(), ai.ChatParams{
		History: []ai.Message{{Role: domain.ChatRoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, ai.EAIUnauthorized)
}
