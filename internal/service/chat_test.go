package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/DukeRupert/cairn/internal/ai"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversation(t *testing.T, e *env, userID uuid.UUID) uuid.UUID {
	t.Helper()
	c, err := e.chat.CreateConversation(context.Background(), userID, "")
	require.NoError(t, err)
	assert.Equal(t, "New conversation", c.Title)
	return c.ID
}

func usedOf(t *testing.T, e *env, userID uuid.UUID, typ domain.UsageType) int64 {
	t.Helper()
	check, err := e.quota.CheckUsageLimit(context.Background(), userID, typ)
	require.NoError(t, err)
	return check.Used
}

func TestSendMessage_ChargesAfterReply(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	convID := newConversation(t, e, userID)
	e.addTx(t, userID, domain.TransactionIncome, 2500_00, testNow.AddDate(0, 0, -5))

	res, err := e.chat.SendMessage(ctx, domain.SendMessageParams{
		UserID:         userID,
		ConversationID: convID,
		Content:        "  How do I start saving?  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "How do I start saving?", res.UserMessage.Content)
	assert.Equal(t, domain.ChatRoleAssistant, res.AssistantMessage.Role)
	assert.Equal(t, domain.ModelTierBasic, res.AssistantMessage.ModelTier)
	assert.Equal(t, 330, res.AssistantMessage.TokensUsed)
	assert.EqualValues(t, 1, res.Quota.Used)
	assert.EqualValues(t, 10, res.Quota.Limit)

	assert.EqualValues(t, 1, usedOf(t, e, userID, domain.UsageChats))
	assert.EqualValues(t, 1, usedOf(t, e, userID, domain.UsageModelBasic))
	assert.Zero(t, usedOf(t, e, userID, domain.UsageDeepAnalysis))

	assert.Contains(t, e.provider.LastParams.Snapshot, "$2,500.00")

	msgs, err := e.chat.ListMessages(ctx, convID, userID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.ChatRoleUser, msgs[0].Role)
	assert.Equal(t, domain.ChatRoleAssistant, msgs[1].Role)
}

func TestSendMessage_SendsHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	convID := newConversation(t, e, userID)

	for _, content := range []string{"first", "second"} {
		_, err := e.chat.SendMessage(ctx, domain.SendMessageParams{UserID: userID, ConversationID: convID, Content: content})
		require.NoError(t, err)
	}

	history := e.provider.LastParams.History
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, domain.ChatRoleAssistant, history[1].Role)
	assert.Equal(t, "second", history[2].Content)
}

func TestSendMessage_QuotaExhausted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	convID := newConversation(t, e, userID)

	for i := 0; i < 10; i++ {
		_, err := e.chat.SendMessage(ctx, domain.SendMessageParams{
			UserID: userID, ConversationID: convID, Content: fmt.Sprintf("question %d", i),
		})
		require.NoError(t, err)
	}

	_, err := e.chat.SendMessage(ctx, domain.SendMessageParams{UserID: userID, ConversationID: convID, Content: "one more"})
	require.Error(t, err)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	details, ok := domain.QuotaDetailsOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.UsageChats, details.Type)
	assert.EqualValues(t, 10, details.Used)
	assert.Equal(t, 10, e.provider.Calls(), "denied turns never reach the provider")
}

func TestSendMessage_TierNotInPlan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	convID := newConversation(t, e, userID)

	_, err := e.chat.SendMessage(ctx, domain.SendMessageParams{
		UserID: userID, ConversationID: convID, Content: "hi", ModelTier: domain.ModelTierPremium,
	})
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	assert.Zero(t, e.provider.Calls())
	assert.Zero(t, usedOf(t, e, userID, domain.UsageChats), "nothing is charged when a later check fails")

	_, err = e.chat.SendMessage(ctx, domain.SendMessageParams{
		UserID: userID, ConversationID: convID, Content: "hi", ModelTier: "ultra",
	})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestSendMessage_DeepAnalysis(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	convID := newConversation(t, e, userID)

	for i := 0; i < 2; i++ {
		res, err := e.chat.SendMessage(ctx, domain.SendMessageParams{
			UserID: userID, ConversationID: convID, Content: "review my month", DeepAnalysis: true,
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(res.AssistantMessage.Content, "Where you stand"))
	}
	assert.True(t, e.provider.LastParams.DeepAnalysis)

	_, err := e.chat.SendMessage(ctx, domain.SendMessageParams{
		UserID: userID, ConversationID: convID, Content: "again", DeepAnalysis: true,
	})
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))

	assert.EqualValues(t, 2, usedOf(t, e, userID, domain.UsageDeepAnalysis))
	assert.EqualValues(t, 2, usedOf(t, e, userID, domain.UsageChats))
}

func TestSendMessage_ProviderFailureChargesNothing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"rate limited", ai.WrapError("chat", ai.EAIRateLimit), domain.ERATELIMIT},
		{"content policy", ai.EAIContentPolicy, domain.EINVALID},
		{"outage", ai.EAIUnavailable, domain.EINTERNAL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			userID := uuid.New()
			convID := newConversation(t, e, userID)
			e.provider.ChatError = tt.err

			_, err := e.chat.SendMessage(ctx, domain.SendMessageParams{UserID: userID, ConversationID: convID, Content: "hello"})
			assert.Equal(t, tt.code, domain.ErrorCode(err))

			assert.Zero(t, usedOf(t, e, userID, domain.UsageChats))
			msgs, err := e.chat.ListMessages(ctx, convID, userID, 0)
			require.NoError(t, err)
			assert.Empty(t, msgs)
		})
	}
}

func TestSendMessage_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	convID := newConversation(t, e, userID)

	_, err := e.chat.SendMessage(ctx, domain.SendMessageParams{UserID: userID, ConversationID: convID, Content: "   "})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = e.chat.SendMessage(ctx, domain.SendMessageParams{
		UserID: userID, ConversationID: convID, Content: strings.Repeat("a", maxChatMessageSize+1),
	})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	// Another user's conversation looks missing.
	_, err = e.chat.SendMessage(ctx, domain.SendMessageParams{UserID: uuid.New(), ConversationID: convID, Content: "hi"})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	assert.Zero(t, e.provider.Calls())
}

func TestHealthScore_ConsumesInsights(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	e.addTx(t, userID, domain.TransactionIncome, 4000_00, testNow.AddDate(0, 0, -10))
	e.addTx(t, userID, domain.TransactionExpense, 3000_00, testNow.AddDate(0, 0, -4))

	for i := 0; i < 3; i++ {
		score, err := e.health.HealthScore(ctx, userID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score.Score, 0)
		assert.LessOrEqual(t, score.Score, 100)
		assert.NotEmpty(t, score.Grade)
	}

	_, err := e.health.HealthScore(ctx, userID)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	assert.EqualValues(t, 3, usedOf(t, e, userID, domain.UsageInsights))
}

func TestFinancialSnapshot(t *testing.T) {
	snap := financialSnapshot(&domain.HealthInputs{
		Income30:   1000_00,
		Expenses30: 750_00,
		Goals: []domain.FinancialGoal{
			{Name: "Trip", Category: domain.GoalCategorySavings, TargetAmount: 1000_00, CurrentAmount: 250_00, Status: domain.GoalStatusActive},
		},
	})
	assert.Contains(t, snap, "Income (last 30 days): $1,000.00")
	assert.Contains(t, snap, "Savings rate: 25.0%")
	assert.Contains(t, snap, "- Trip (savings): $250.00 of $1,000.00, 25%, active")

	empty := financialSnapshot(&domain.HealthInputs{})
	assert.Contains(t, empty, "Goals: none")
}
