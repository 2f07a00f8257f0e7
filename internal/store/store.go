// Package store persists accounting state: plans, subscriptions, usage
// counters, goals, milestones, streaks, achievements, notifications and the
// supporting transaction, group and chat records.
//
// Two implementations exist. Postgres is used in production; Memory backs
// tests and single-process development. Both satisfy the same contract,
// exercised by the storetest package.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a unique key other than an idempotent
	// insert key is violated.
	ErrConflict = errors.New("store: conflict")

	// ErrInviteUnavailable is returned when an invite is no longer pending
	// or has expired at accept time.
	ErrInviteUnavailable = errors.New("store: invite unavailable")
)

// =============================================================================
// Interface Definition
// =============================================================================

// Store is the persistence boundary used by the service layer.
type Store interface {
	PlanStore
	SubscriptionStore
	UsageStore
	GoalStore
	TransactionStore
	StreakStore
	NotificationStore
	GroupStore
	ChatStore

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// PlanStore manages subscription plan reference data.
type PlanStore interface {
	// UpsertPlan inserts or updates a plan by name and returns the stored row.
	UpsertPlan(ctx context.Context, plan domain.Plan) (*domain.Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*domain.Plan, error)
	ListPlans(ctx context.Context) ([]domain.Plan, error)
}

// SubscriptionStore manages user subscriptions. At most one active
// subscription exists per user.
type SubscriptionStore interface {
	GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// CreateSubscription inserts sub unless the user already has an active
	// subscription, in which case created is false and nothing changes.
	CreateSubscription(ctx context.Context, sub domain.Subscription) (created bool, err error)

	// UpdateSubscription overwrites the mutable fields of an existing subscription.
	UpdateSubscription(ctx context.Context, sub domain.Subscription) error

	GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*domain.Subscription, error)
	GetSubscriptionByCustomerID(ctx context.Context, providerCustomerID string) (*domain.Subscription, error)
}

// UsageStore manages usage counters and add-on credits.
type UsageStore interface {
	// GetUsageRecord returns the record for (userID, periodStart).
	GetUsageRecord(ctx context.Context, userID uuid.UUID, periodStart time.Time) (*domain.UsageRecord, error)

	// IncrementUsage adds amount to the counter for usageType in the record
	// identified by key, creating the record if needed, and returns the new
	// counter value. The read-modify-write is atomic.
	IncrementUsage(ctx context.Context, key domain.UsageKey, usageType domain.UsageType, amount int64) (int64, error)

	CreateAddOnCredit(ctx context.Context, credit domain.AddOnCredit) (*domain.AddOnCredit, error)

	// SumAddOnCredits totals credits for usageType that have not expired at.
	SumAddOnCredits(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, at time.Time) (int64, error)
}

// GoalStore manages financial goals and their milestones.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal domain.FinancialGoal) (*domain.FinancialGoal, error)
	GetGoal(ctx context.Context, id, userID uuid.UUID) (*domain.FinancialGoal, error)
	ListGoals(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]domain.FinancialGoal, error)

	// UpdateGoal overwrites name, category, amounts, target date and status.
	UpdateGoal(ctx context.Context, goal domain.FinancialGoal) (*domain.FinancialGoal, error)

	// AddGoalAmount atomically adds delta to the goal's current amount.
	AddGoalAmount(ctx context.Context, id, userID uuid.UUID, delta domain.Money) (*domain.FinancialGoal, error)

	SetGoalStatus(ctx context.Context, id, userID uuid.UUID, status domain.GoalStatus) error

	// InsertMilestone records a milestone. When (GoalID, Milestone) already
	// exists the call is a no-op and inserted is false.
	InsertMilestone(ctx context.Context, m domain.GoalMilestone) (inserted bool, err error)

	ListMilestones(ctx context.Context, goalID, userID uuid.UUID) ([]domain.GoalMilestone, error)
	ListUnseenMilestones(ctx context.Context, userID uuid.UUID) ([]domain.GoalMilestone, error)

	// MarkMilestonesSeen flags the given milestones as seen and returns how many changed.
	MarkMilestonesSeen(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

// TransactionStore manages income, expense and contribution records.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)

	// ListTransactions returns matching transactions, newest first.
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	SumTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Money, error)
	CountTransactions(ctx context.Context, filter domain.TransactionFilter) (int64, error)
}

// StreakStore manages check-in streaks and achievements.
type StreakStore interface {
	GetStreak(ctx context.Context, userID uuid.UUID) (*domain.UserStreak, error)
	SaveStreak(ctx context.Context, streak domain.UserStreak) error

	GetAchievement(ctx context.Context, userID uuid.UUID, achievementID string) (*domain.UserAchievement, error)

	// UpsertAchievement writes progress for (UserID, AchievementID). Rows that
	// are already earned are never modified. The stored row is returned.
	UpsertAchievement(ctx context.Context, a domain.UserAchievement) (*domain.UserAchievement, error)

	ListAchievements(ctx context.Context, userID uuid.UUID) ([]domain.UserAchievement, error)
}

// NotificationStore manages user notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n domain.Notification) (*domain.Notification, error)

	// HasRecentNotification reports whether a notification of type was
	// created for the user at or after since.
	HasRecentNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, since time.Time) (bool, error)

	// HasRecentGoalNotification is HasRecentNotification narrowed to
	// notifications whose metadata references goalID.
	HasRecentGoalNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, goalID uuid.UUID, since time.Time) (bool, error)

	// ListNotifications returns matching notifications, newest first.
	ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, error)

	MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	ArchiveNotification(ctx context.Context, id, userID uuid.UUID) error
	CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int64, error)
}

// GroupStore manages groups, members and invites.
type GroupStore interface {
	// CreateGroup inserts the group and its owner membership together.
	CreateGroup(ctx context.Context, group domain.Group) (*domain.Group, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*domain.Group, error)
	GetGroupMember(ctx context.Context, groupID, userID uuid.UUID) (*domain.GroupMember, error)
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error)

	CreateInvite(ctx context.Context, invite domain.GroupInvite) (*domain.GroupInvite, error)
	GetInviteByCode(ctx context.Context, code string) (*domain.GroupInvite, error)

	// AcceptInvite consumes a pending, unexpired invite and adds userID as a
	// member. Exactly one caller can accept a given code; all others get
	// ErrInviteUnavailable.
	AcceptInvite(ctx context.Context, code string, userID uuid.UUID, now time.Time) (*domain.GroupInvite, error)
}

// ChatStore manages AI conversations.
type ChatStore interface {
	CreateConversation(ctx context.Context, c domain.Conversation) (*domain.Conversation, error)
	GetConversation(ctx context.Context, id, userID uuid.UUID) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)

	CreateChatMessage(ctx context.Context, m domain.ChatMessage) (*domain.ChatMessage, error)

	// ListChatMessages returns the most recent limit messages in chronological order.
	ListChatMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.ChatMessage, error)
}
