// Package domain contains core business types and interfaces.
//
// This file defines the account data export document.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserExport is everything a user owns, serialized as one JSON document.
type UserExport struct {
	UserID        uuid.UUID         `json:"user_id"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Goals         []FinancialGoal   `json:"goals"`
	Milestones    []GoalMilestone   `json:"milestones"`
	Transactions  []Transaction     `json:"transactions"`
	Notifications []Notification    `json:"notifications"`
	Streak        *UserStreak       `json:"streak,omitempty"`
	Achievements  []UserAchievement `json:"achievements"`
	Conversations []Conversation    `json:"conversations"`
}

// ExportResult locates a stored export.
type ExportResult struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
}
