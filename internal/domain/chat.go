// Package domain contains core business types and interfaces.
//
// This file defines AI chat conversations and the model tiers they bill against.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ModelTier selects the AI model class for a chat message.
type ModelTier string

const (
	ModelTierBasic    ModelTier = "basic"
	ModelTierAdvanced ModelTier = "advanced"
	ModelTierPremium  ModelTier = "premium"
)

// UsageType returns the per-tier counter a message is billed against.
func (t ModelTier) UsageType() (UsageType, bool) {
	switch t {
	case ModelTierBasic:
		return UsageModelBasic, true
	case ModelTierAdvanced:
		return UsageModelAdvanced, true
	case ModelTierPremium:
		return UsageModelPremium, true
	default:
		return "", false
	}
}

// ChatRole is the author of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// Conversation is an AI advice thread owned by a user.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           ChatRole  `json:"role"`
	Content        string    `json:"content"`
	ModelTier      ModelTier `json:"model_tier,omitempty"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SendMessageParams contains parameters for sending a chat message.
type SendMessageParams struct {
	UserID         uuid.UUID
	ConversationID uuid.UUID
	Content        string
	ModelTier      ModelTier
	DeepAnalysis   bool
}

// SendMessageResult is the stored user turn, the assistant reply and the
// post-increment quota for chats.
type SendMessageResult struct {
	UserMessage      ChatMessage `json:"user_message"`
	AssistantMessage ChatMessage `json:"assistant_message"`
	Quota            QuotaCheck  `json:"quota"`
}
