package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/DukeRupert/cairn/internal/ai"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/metrics"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

const (
	chatHistoryLimit   = 20
	maxChatMessageSize = 4000
)

// ChatService runs AI advice conversations behind the usage quotas.
type ChatService interface {
	CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)

	// ListMessages returns the latest messages of a conversation, oldest first.
	ListMessages(ctx context.Context, conversationID, userID uuid.UUID, limit int) ([]domain.ChatMessage, error)

	// SendMessage checks quotas, asks the provider, stores both turns and
	// only then charges usage. A failed provider call charges nothing.
	SendMessage(ctx context.Context, params domain.SendMessageParams) (*domain.SendMessageResult, error)
}

type chatService struct {
	store         store.Store
	provider      ai.ChatProvider
	subscriptions SubscriptionService
	quota         QuotaService
	logger        *slog.Logger
	now           Clock
}

// NewChatService creates a new ChatService.
func NewChatService(st store.Store, provider ai.ChatProvider, subscriptions SubscriptionService, quota QuotaService, logger *slog.Logger) ChatService {
	return &chatService{
		store:         st,
		provider:      provider,
		subscriptions: subscriptions,
		quota:         quota,
		logger:        logger,
		now:           systemClock,
	}
}

func (s *chatService) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*domain.Conversation, error) {
	const op = "chat.create_conversation"

	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}
	if len(title) > 200 {
		return nil, domain.Invalid(op, "Title must be 200 characters or fewer")
	}

	c, err := s.store.CreateConversation(ctx, domain.Conversation{UserID: userID, Title: title})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create conversation")
	}
	return c, nil
}

func (s *chatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	const op = "chat.list_conversations"

	cs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list conversations")
	}
	return cs, nil
}

func (s *chatService) ListMessages(ctx context.Context, conversationID, userID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	const op = "chat.list_messages"

	if _, err := s.conversation(ctx, op, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	msgs, err := s.store.ListChatMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list messages")
	}
	return msgs, nil
}

func (s *chatService) conversation(ctx context.Context, op string, id, userID uuid.UUID) (*domain.Conversation, error) {
	c, err := s.store.GetConversation(ctx, id, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.NotFound(op, "conversation", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to load conversation")
	}
	return c, nil
}

// SendMessage runs one chat turn.
func (s *chatService) SendMessage(ctx context.Context, params domain.SendMessageParams) (*domain.SendMessageResult, error) {
	const op = "chat.send_message"

	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, domain.Invalid(op, "Message cannot be empty")
	}
	if len(content) > maxChatMessageSize {
		return nil, domain.Invalid(op, "Message is too long")
	}
	tier := params.ModelTier
	if tier == "" {
		tier = domain.ModelTierBasic
	}
	tierUsage, ok := tier.UsageType()
	if !ok {
		return nil, domain.Invalid(op, "Unknown model tier")
	}

	if _, err := s.conversation(ctx, op, params.ConversationID, params.UserID); err != nil {
		return nil, err
	}
	if _, err := s.subscriptions.EnsureSubscription(ctx, params.UserID); err != nil {
		return nil, err
	}

	// Every counter this turn will charge must have room before the provider is called.
	charges := []domain.UsageType{domain.UsageChats, tierUsage}
	if params.DeepAnalysis {
		charges = append(charges, domain.UsageDeepAnalysis)
	}
	for _, t := range charges {
		if _, err := s.quota.RequireQuota(ctx, params.UserID, t); err != nil {
			return nil, err
		}
	}

	history, err := s.store.ListChatMessages(ctx, params.ConversationID, chatHistoryLimit)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load conversation history")
	}
	inputs, err := loadHealthInputs(ctx, s.store, params.UserID, s.now())
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load financial data")
	}

	msgs := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, ai.Message{Role: domain.ChatRoleUser, Content: content})

	reply, err := s.provider.Chat(ctx, ai.ChatParams{
		UserID:       params.UserID,
		Tier:         tier,
		DeepAnalysis: params.DeepAnalysis,
		Snapshot:     financialSnapshot(inputs),
		History:      msgs,
	})
	if err != nil {
		metrics.AICall(tier, nil, err)
		s.logger.Error("ai chat failed", "error", err, "op", op, "user_id", params.UserID, "tier", tier)
		return nil, mapAIError(op, err)
	}
	metrics.AICall(tier, &reply.Usage, nil)

	userMsg, err := s.store.CreateChatMessage(ctx, domain.ChatMessage{
		ConversationID: params.ConversationID,
		Role:           domain.ChatRoleUser,
		Content:        content,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to store message")
	}
	assistantMsg, err := s.store.CreateChatMessage(ctx, domain.ChatMessage{
		ConversationID: params.ConversationID,
		Role:           domain.ChatRoleAssistant,
		Content:        reply.Content,
		ModelTier:      tier,
		TokensUsed:     reply.Usage.InputTokens + reply.Usage.OutputTokens,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to store reply")
	}

	result := &domain.SendMessageResult{UserMessage: *userMsg, AssistantMessage: *assistantMsg}
	for _, t := range charges {
		if _, err := s.quota.IncrementUsage(ctx, params.UserID, t, 1); err != nil {
			return nil, err
		}
	}

	check, err := s.quota.CheckUsageLimit(ctx, params.UserID, domain.UsageChats)
	if err != nil {
		return nil, err
	}
	result.Quota = *check

	s.logger.Info("chat message answered",
		"user_id", params.UserID,
		"conversation_id", params.ConversationID,
		"tier", tier,
		"deep", params.DeepAnalysis,
		"model", reply.Usage.Model,
	)
	return result, nil
}

// mapAIError converts provider failures into application errors.
func mapAIError(op string, err error) error {
	switch {
	case errors.Is(err, ai.EAIRateLimit):
		return domain.Wrap(err, domain.ERATELIMIT, op, "The AI assistant is busy. Please try again shortly.")
	case errors.Is(err, ai.EAIContentPolicy):
		return domain.Wrap(err, domain.EINVALID, op, "That message can't be answered. Please rephrase it.")
	case errors.Is(err, ai.EAIInvalidRequest):
		return domain.Wrap(err, domain.EINVALID, op, "The AI assistant rejected the request.")
	default:
		return domain.Internal(err, op, "The AI assistant is unavailable")
	}
}
