package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/cairn/internal/ai/mock"
	"github.com/DukeRupert/cairn/internal/cache"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/rates"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock shared by every service in an env.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// env wires every service over one memory store with a pinned clock.
type env struct {
	store         *store.Memory
	clock         *testClock
	provider      *mock.Provider
	subscriptions SubscriptionService
	quota         QuotaService
	milestones    MilestoneService
	notifications NotificationService
	streaks       StreakService
	goals         GoalService
	transactions  TransactionService
	chat          ChatService
	health        HealthService
	groups        GroupService
}

// Wednesday noon UTC.
var testNow = time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()

	st := store.NewMemory()
	clock := &testClock{t: testNow}
	logger := testLogger()
	provider := mock.New(logger)

	subs := NewSubscriptionService(st, logger)
	subs.(*subscriptionService).now = clock.Now
	require.NoError(t, subs.SeedPlans(context.Background()))

	quota := NewQuotaService(st, subs, logger)
	quota.(*quotaService).now = clock.Now

	milestones := NewMilestoneService(st, logger)
	milestones.(*milestoneService).now = clock.Now

	notifications := NewNotificationService(st, time.UTC, logger)
	notifications.(*notificationService).now = clock.Now

	streaks := NewStreakService(st, notifications, time.UTC, logger)
	streaks.(*streakService).now = clock.Now

	goals := NewGoalService(st, milestones, notifications, logger)

	converter := rates.NewConverter(rates.StaticFeed{
		"EUR": {"USD": 1.10},
		"JPY": {"USD": 0.0067},
	}, cache.NewMemory(), time.Hour, logger)
	transactions := NewTransactionService(st, converter, goals, streaks, notifications, logger)
	transactions.(*transactionService).now = clock.Now

	chat := NewChatService(st, provider, subs, quota, logger)
	chat.(*chatService).now = clock.Now

	health := NewHealthService(st, subs, quota, logger)
	health.(*healthService).now = clock.Now

	groups := NewGroupService(st, 0, logger)
	groups.(*groupService).now = clock.Now

	return &env{
		store:         st,
		clock:         clock,
		provider:      provider,
		subscriptions: subs,
		quota:         quota,
		milestones:    milestones,
		notifications: notifications,
		streaks:       streaks,
		goals:         goals,
		transactions:  transactions,
		chat:          chat,
		health:        health,
		groups:        groups,
	}
}

// addTx records a transaction directly in the store at occurredAt.
func (e *env) addTx(t *testing.T, userID uuid.UUID, kind domain.TransactionKind, amount domain.Money, occurredAt time.Time) {
	t.Helper()
	_, err := e.store.CreateTransaction(context.Background(), domain.Transaction{
		UserID:         userID,
		Kind:           kind,
		Amount:         amount,
		Currency:       domain.BaseCurrency,
		OriginalAmount: amount,
		OccurredAt:     occurredAt,
	})
	require.NoError(t, err)
}

// notificationsOfType lists a user's notifications of one type.
func (e *env) notificationsOfType(t *testing.T, userID uuid.UUID, typ domain.NotificationType) []domain.Notification {
	t.Helper()
	all, err := e.store.ListNotifications(context.Background(), domain.NotificationFilter{UserID: userID, IncludeArchived: true})
	require.NoError(t, err)
	var out []domain.Notification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}
