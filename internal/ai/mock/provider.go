package mock

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/cairn/internal/ai"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	ChatResponse *ai.ChatResult
	ChatError    error

	// Call tracking for testing
	ChatCalls  int
	LastParams ai.ChatParams
}

var _ ai.ChatProvider = (*Provider)(nil)

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Chat returns a canned coaching reply
func (p *Provider) Chat(ctx context.Context, params ai.ChatParams) (*ai.ChatResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ChatCalls++
	p.LastParams = params

	// If a custom response or error is set, use it
	if p.ChatError != nil {
		return nil, p.ChatError
	}
	if p.ChatResponse != nil {
		return p.ChatResponse, nil
	}

	reply := "Start by tracking every expense for a week, then set aside a fixed amount on payday before spending on anything else."
	if params.DeepAnalysis {
		reply = strings.Join([]string{
			"Where you stand: your recent income covers your spending with a little room to spare.",
			"What is working: you are logging transactions regularly.",
			"Risks: an unexpected bill would hit your main account directly.",
			"Next three steps: build a one-month emergency fund, automate a weekly transfer, and review subscriptions.",
		}, "\n\n")
	}

	return &ai.ChatResult{
		Content: reply,
		Usage: ai.UsageInfo{
			Model:        "mock-" + string(params.Tier),
			InputTokens:  250,
			OutputTokens: 80,
			Duration:     25 * time.Millisecond,
		},
	}, nil
}

// Calls returns the number of Chat calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ChatCalls
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ChatCalls = 0
	p.LastParams = ai.ChatParams{}
	p.ChatResponse = nil
	p.ChatError = nil
}
