// Package domain contains core business types and interfaces.
//
// This file defines notifications and the pure rule math used by the smart
// notification generator.
package domain

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// NotificationType identifies the rule that produced a notification.
type NotificationType string

const (
	NotificationDailyBriefing       NotificationType = "daily_briefing"
	NotificationRiskVolatility      NotificationType = "risk_volatility"
	NotificationRiskEmergencyFund   NotificationType = "risk_emergency_fund"
	NotificationGoalDeadlineRisk    NotificationType = "goal_deadline_risk"
	NotificationTransactionReminder NotificationType = "transaction_reminder"
	NotificationBudgetWarning       NotificationType = "budget_warning"
	NotificationGoalAlmostComplete  NotificationType = "goal_almost_complete"
	NotificationGoalCompleted       NotificationType = "goal_completed"
	NotificationMilestoneReached    NotificationType = "milestone_reached"
	NotificationAchievementUnlocked NotificationType = "achievement_unlocked"
)

// NotificationPriority orders notifications for display.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Notification is an append-only message to a user. Only the read and
// archive flags change after creation.
type Notification struct {
	ID         uuid.UUID            `json:"id"`
	UserID     uuid.UUID            `json:"user_id"`
	Type       NotificationType     `json:"type"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	Priority   NotificationPriority `json:"priority"`
	IsRead     bool                 `json:"is_read"`
	IsArchived bool                 `json:"is_archived"`
	Metadata   json.RawMessage      `json:"metadata,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// CreateNotificationParams contains parameters for creating a notification.
type CreateNotificationParams struct {
	UserID   uuid.UUID
	Type     NotificationType
	Title    string
	Message  string
	Priority NotificationPriority
	Metadata json.RawMessage
}

// NotificationFilter selects notifications for listing.
type NotificationFilter struct {
	UserID          uuid.UUID
	UnreadOnly      bool
	IncludeArchived bool
	Limit           int
}

// GenerateResult aggregates one run of the smart notification battery.
type GenerateResult struct {
	Created []Notification `json:"created"`
	Failed  []string       `json:"failed,omitempty"` // Names of rules that errored
}

// =============================================================================
// Rule math
// =============================================================================

// Briefing is the title/message/priority tuple for a daily briefing band.
type Briefing struct {
	Title    string
	Message  string
	Priority NotificationPriority
}

// SavingsRate returns (income-expenses)/income*100. With no income the rate is
// 0 when there were no expenses either, otherwise -100.
func SavingsRate(income, expenses Money) float64 {
	if income <= 0 {
		if expenses > 0 {
			return -100
		}
		return 0
	}
	return float64(income-expenses) / float64(income) * 100
}

// BriefingForSavingsRate buckets a trailing savings rate into one of four bands.
func BriefingForSavingsRate(rate float64) Briefing {
	switch {
	case rate >= 20:
		return Briefing{
			Title:    "Great savings momentum",
			Message:  "You saved " + formatPercent(rate) + " of your income over the last 30 days. Keep it up!",
			Priority: PriorityLow,
		}
	case rate >= 10:
		return Briefing{
			Title:    "Solid savings habit",
			Message:  "You saved " + formatPercent(rate) + " of your income over the last 30 days. Aim for 20% to build momentum.",
			Priority: PriorityLow,
		}
	case rate >= 0:
		return Briefing{
			Title:    "Room to save more",
			Message:  "You saved " + formatPercent(rate) + " of your income over the last 30 days. Small cuts add up quickly.",
			Priority: PriorityMedium,
		}
	default:
		return Briefing{
			Title:    "Spending exceeds income",
			Message:  "You spent " + formatPercent(-rate) + " more than you earned over the last 30 days. Review your recent expenses.",
			Priority: PriorityHigh,
		}
	}
}

// VolatilityFloor is the minimum mean weekly spend before volatility is flagged.
const VolatilityFloor Money = 100_00

// Volatility describes the spread of weekly expense totals.
type Volatility struct {
	Mean         float64 // cents
	MaxDeviation float64 // cents
	Volatile     bool
}

// WeeklyVolatility flags spending when the largest deviation from the mean
// exceeds half the mean and the mean is above VolatilityFloor.
func WeeklyVolatility(weeks []Money) Volatility {
	if len(weeks) == 0 {
		return Volatility{}
	}
	var sum float64
	for _, w := range weeks {
		sum += float64(w)
	}
	mean := sum / float64(len(weeks))

	var maxDev float64
	for _, w := range weeks {
		if d := math.Abs(float64(w) - mean); d > maxDev {
			maxDev = d
		}
	}

	return Volatility{
		Mean:         mean,
		MaxDeviation: maxDev,
		Volatile:     mean > float64(VolatilityFloor) && maxDev > 0.5*mean,
	}
}

// OverspendPercent returns how far expenses exceed income, as a percentage of income.
// With zero income any spending counts as 100% over.
func OverspendPercent(income, expenses Money) float64 {
	if expenses <= income {
		return 0
	}
	if income <= 0 {
		return 100
	}
	return float64(expenses-income) / float64(income) * 100
}

// RequiredDailySavings returns the amount per day needed to reach the goal by its deadline.
func RequiredDailySavings(remaining Money, days int) Money {
	if days <= 0 {
		return remaining
	}
	return Money(math.Ceil(float64(remaining) / float64(days)))
}

func formatPercent(p float64) string {
	return displayPrinter.Sprintf("%.1f%%", p)
}
