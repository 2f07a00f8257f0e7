package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Daily briefing
// =============================================================================

func TestDailyBriefing_Bands(t *testing.T) {
	tests := []struct {
		name     string
		income   domain.Money
		expenses domain.Money
		title    string
		priority domain.NotificationPriority
	}{
		{"strong saver", 1000_00, 700_00, "Great savings momentum", domain.PriorityLow},
		{"moderate saver", 1000_00, 850_00, "Solid savings habit", domain.PriorityLow},
		{"thin margin", 1000_00, 950_00, "Room to save more", domain.PriorityMedium},
		{"overspending", 1000_00, 1200_00, "Spending exceeds income", domain.PriorityHigh},
		{"no income", 0, 50_00, "Spending exceeds income", domain.PriorityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			userID := uuid.New()
			if tt.income > 0 {
				e.addTx(t, userID, domain.TransactionIncome, tt.income, testNow.AddDate(0, 0, -10))
			}
			e.addTx(t, userID, domain.TransactionExpense, tt.expenses, testNow.AddDate(0, 0, -5))

			_, err := e.notifications.GenerateSmartNotifications(context.Background(), userID)
			require.NoError(t, err)

			briefings := e.notificationsOfType(t, userID, domain.NotificationDailyBriefing)
			require.Len(t, briefings, 1)
			assert.Equal(t, tt.title, briefings[0].Title)
			assert.Equal(t, tt.priority, briefings[0].Priority)
		})
	}
}

func TestDailyBriefing_OncePerDay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	e.addTx(t, userID, domain.TransactionIncome, 1000_00, testNow.AddDate(0, 0, -3))

	for i := 0; i < 3; i++ {
		_, err := e.notifications.GenerateSmartNotifications(ctx, userID)
		require.NoError(t, err)
		e.clock.Advance(time.Hour)
	}
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationDailyBriefing), 1)

	// Next calendar day.
	e.clock.Set(time.Date(2024, time.March, 14, 0, 5, 0, 0, time.UTC))
	_, err := e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationDailyBriefing), 2)
}

func TestDailyBriefing_SkippedWithoutActivity(t *testing.T) {
	e := newEnv(t)
	userID := uuid.New()

	_, err := e.notifications.GenerateSmartNotifications(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, e.notificationsOfType(t, userID, domain.NotificationDailyBriefing))
}

// =============================================================================
// Risk alerts
// =============================================================================

func TestRiskAlerts_Volatility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	e.addTx(t, userID, domain.TransactionIncome, 5000_00, testNow.AddDate(0, 0, -20))
	e.addTx(t, userID, domain.TransactionExpense, 100_00, testNow.AddDate(0, 0, -25))
	e.addTx(t, userID, domain.TransactionExpense, 100_00, testNow.AddDate(0, 0, -18))
	e.addTx(t, userID, domain.TransactionExpense, 100_00, testNow.AddDate(0, 0, -11))
	e.addTx(t, userID, domain.TransactionExpense, 900_00, testNow.AddDate(0, 0, -2))

	_, err := e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)

	alerts := e.notificationsOfType(t, userID, domain.NotificationRiskVolatility)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.PriorityMedium, alerts[0].Priority)
	assert.Contains(t, alerts[0].Message, "$300.00")

	// Throttled for a day.
	e.clock.Advance(12 * time.Hour)
	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationRiskVolatility), 1)
}

func TestRiskAlerts_SteadySpendingIsQuiet(t *testing.T) {
	e := newEnv(t)
	userID := uuid.New()

	for _, daysAgo := range []int{25, 18, 11, 4} {
		e.addTx(t, userID, domain.TransactionExpense, 200_00, testNow.AddDate(0, 0, -daysAgo))
	}

	_, err := e.notifications.GenerateSmartNotifications(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, e.notificationsOfType(t, userID, domain.NotificationRiskVolatility))
}

func TestRiskAlerts_EmergencyFund(t *testing.T) {
	t.Run("missing fund with heavy spending", func(t *testing.T) {
		e := newEnv(t)
		userID := uuid.New()
		e.addTx(t, userID, domain.TransactionExpense, 800_00, testNow.AddDate(0, 0, -3))

		_, err := e.notifications.GenerateSmartNotifications(context.Background(), userID)
		require.NoError(t, err)

		alerts := e.notificationsOfType(t, userID, domain.NotificationRiskEmergencyFund)
		require.Len(t, alerts, 1)
		assert.Equal(t, domain.PriorityHigh, alerts[0].Priority)
		assert.Contains(t, alerts[0].Message, "$800.00")
	})

	t.Run("spending below floor", func(t *testing.T) {
		e := newEnv(t)
		userID := uuid.New()
		e.addTx(t, userID, domain.TransactionExpense, 400_00, testNow.AddDate(0, 0, -3))

		_, err := e.notifications.GenerateSmartNotifications(context.Background(), userID)
		require.NoError(t, err)
		assert.Empty(t, e.notificationsOfType(t, userID, domain.NotificationRiskEmergencyFund))
	})

	t.Run("fund exists", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		userID := uuid.New()
		_, err := e.goals.Create(ctx, domain.CreateGoalParams{
			UserID:       userID,
			Name:         "Rainy day",
			Category:     domain.GoalCategoryEmergencyFund,
			TargetAmount: 3000_00,
		})
		require.NoError(t, err)
		e.addTx(t, userID, domain.TransactionExpense, 800_00, testNow.AddDate(0, 0, -3))

		_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, e.notificationsOfType(t, userID, domain.NotificationRiskEmergencyFund))
	})
}

func TestRiskAlerts_ThrottledAsPair(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	// Steady but heavy spending: only the emergency fund alert fires.
	for _, daysAgo := range []int{25, 18, 11, 4} {
		e.addTx(t, userID, domain.TransactionExpense, 200_00, testNow.AddDate(0, 0, -daysAgo))
	}
	_, err := e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	require.Len(t, e.notificationsOfType(t, userID, domain.NotificationRiskEmergencyFund), 1)
	require.Empty(t, e.notificationsOfType(t, userID, domain.NotificationRiskVolatility))

	// Spending turns volatile, but the pair was alerted within the day.
	e.addTx(t, userID, domain.TransactionExpense, 900_00, testNow.AddDate(0, 0, -1))
	e.clock.Advance(12 * time.Hour)
	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, e.notificationsOfType(t, userID, domain.NotificationRiskVolatility))
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationRiskEmergencyFund), 1)

	e.clock.Advance(13 * time.Hour)
	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationRiskVolatility), 1)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationRiskEmergencyFund), 2)
}

// =============================================================================
// Goal rules
// =============================================================================

func TestGoalDeadlineRisk(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	soon := testNow.AddDate(0, 0, 10)
	later := testNow.AddDate(0, 0, 45)
	atRisk, err := e.goals.Create(ctx, domain.CreateGoalParams{
		UserID: userID, Name: "Vacation", TargetAmount: 1000_00, CurrentAmount: 100_00, TargetDate: &soon,
	})
	require.NoError(t, err)
	_, err = e.goals.Create(ctx, domain.CreateGoalParams{
		UserID: userID, Name: "Car", TargetAmount: 1000_00, CurrentAmount: 100_00, TargetDate: &later,
	})
	require.NoError(t, err)
	_, err = e.goals.Create(ctx, domain.CreateGoalParams{
		UserID: userID, Name: "Laptop", TargetAmount: 1000_00, CurrentAmount: 600_00, TargetDate: &soon,
	})
	require.NoError(t, err)

	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)

	risks := e.notificationsOfType(t, userID, domain.NotificationGoalDeadlineRisk)
	require.Len(t, risks, 1)
	assert.Contains(t, risks[0].Title, "Vacation")
	assert.Contains(t, risks[0].Message, "10 days left")
	assert.Contains(t, risks[0].Message, "$90.00 a day")
	assert.Contains(t, string(risks[0].Metadata), atRisk.Goal.ID.String())

	// One warning per goal per 72 hours.
	e.clock.Advance(48 * time.Hour)
	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationGoalDeadlineRisk), 1)

	e.clock.Advance(25 * time.Hour)
	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationGoalDeadlineRisk), 2)
}

func TestGoalCompletion_AlmostThenDone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	res, err := e.goals.Create(ctx, domain.CreateGoalParams{
		UserID: userID, Name: "Bike", TargetAmount: 1000_00, CurrentAmount: 950_00,
	})
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationGoalAlmostComplete), 1)

	// The battery respects the 72 hour throttle.
	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationGoalAlmostComplete), 1)

	res, err = e.goals.Contribute(ctx, res.Goal.ID, userID, 50_00)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, []int{100}, milestoneValues(res.NewMilestones))

	goal, err := e.goals.Get(ctx, res.Goal.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalStatusCompleted, goal.Status)

	done := e.notificationsOfType(t, userID, domain.NotificationGoalCompleted)
	require.Len(t, done, 1)
	assert.Equal(t, domain.PriorityHigh, done[0].Priority)

	// Completed goals are not evaluated again.
	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationGoalCompleted), 1)
}

// =============================================================================
// Reminder & budget
// =============================================================================

func TestTransactionReminder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	e.addTx(t, userID, domain.TransactionExpense, 20_00, testNow.AddDate(0, 0, -8))

	_, err := e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	reminders := e.notificationsOfType(t, userID, domain.NotificationTransactionReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, domain.PriorityLow, reminders[0].Priority)

	e.clock.Advance(23 * time.Hour)
	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationTransactionReminder), 1)

	e.clock.Advance(2 * time.Hour)
	_, err = e.notifications.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, e.notificationsOfType(t, userID, domain.NotificationTransactionReminder), 2)
}

func TestTransactionReminder_RecentActivity(t *testing.T) {
	e := newEnv(t)
	userID := uuid.New()
	e.addTx(t, userID, domain.TransactionExpense, 20_00, testNow.AddDate(0, 0, -2))

	_, err := e.notifications.GenerateSmartNotifications(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, e.notificationsOfType(t, userID, domain.NotificationTransactionReminder))
}

func TestCheckBudgetWarning(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	e.addTx(t, userID, domain.TransactionIncome, 1000_00, testNow.AddDate(0, 0, -10))
	e.addTx(t, userID, domain.TransactionExpense, 1500_00, testNow.AddDate(0, 0, -4))

	n, err := e.notifications.CheckBudgetWarning(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, domain.PriorityUrgent, n.Priority)
	assert.Contains(t, n.Message, "50%")

	n, err = e.notifications.CheckBudgetWarning(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, n, "throttled for 24 hours")

	e.clock.Advance(25 * time.Hour)
	n, err = e.notifications.CheckBudgetWarning(ctx, userID)
	require.NoError(t, err)
	assert.NotNil(t, n)
}

func TestCheckBudgetWarning_WithinBudget(t *testing.T) {
	e := newEnv(t)
	userID := uuid.New()
	e.addTx(t, userID, domain.TransactionIncome, 1000_00, testNow.AddDate(0, 0, -10))
	e.addTx(t, userID, domain.TransactionExpense, 1000_00, testNow.AddDate(0, 0, -4))
	// Outside the trailing window.
	e.addTx(t, userID, domain.TransactionExpense, 5000_00, testNow.AddDate(0, 0, -40))

	n, err := e.notifications.CheckBudgetWarning(context.Background(), userID)
	require.NoError(t, err)
	assert.Nil(t, n)
}

// =============================================================================
// Battery behavior
// =============================================================================

// countFailStore fails transaction counts so one rule errors.
type countFailStore struct {
	store.Store
}

func (countFailStore) CountTransactions(ctx context.Context, filter domain.TransactionFilter) (int64, error) {
	return 0, errors.New("count unavailable")
}

func TestGenerateSmartNotifications_RuleFailureIsIsolated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	e.addTx(t, userID, domain.TransactionIncome, 1000_00, testNow.AddDate(0, 0, -10))
	e.addTx(t, userID, domain.TransactionExpense, 1500_00, testNow.AddDate(0, 0, -4))

	svc := NewNotificationService(countFailStore{e.store}, time.UTC, testLogger())
	svc.(*notificationService).now = e.clock.Now

	result, err := svc.GenerateSmartNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"transaction_reminder"}, result.Failed)

	types := map[domain.NotificationType]bool{}
	for _, n := range result.Created {
		types[n.Type] = true
	}
	assert.True(t, types[domain.NotificationDailyBriefing])
	assert.True(t, types[domain.NotificationBudgetWarning], "rules after the failure still run")
}

func TestGenerateSmartNotifications_RequiresUser(t *testing.T) {
	e := newEnv(t)

	_, err := e.notifications.GenerateSmartNotifications(context.Background(), uuid.Nil)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

// =============================================================================
// Inbox management
// =============================================================================

func TestNotificationInbox(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		n, err := e.notifications.Notify(ctx, domain.CreateNotificationParams{
			UserID: userID,
			Type:   domain.NotificationDailyBriefing,
			Title:  "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.PriorityMedium, n.Priority)
		ids = append(ids, n.ID)
		e.clock.Advance(time.Minute)
	}

	count, err := e.notifications.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	require.NoError(t, e.notifications.MarkRead(ctx, ids[0], userID))
	require.NoError(t, e.notifications.Archive(ctx, ids[1], userID))

	err = e.notifications.MarkRead(ctx, ids[2], uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	count, err = e.notifications.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	list, err := e.notifications.List(ctx, domain.NotificationFilter{UserID: userID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID, "newest first")

	unread, err := e.notifications.List(ctx, domain.NotificationFilter{UserID: userID, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	n, err := e.notifications.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = e.notifications.Notify(ctx, domain.CreateNotificationParams{UserID: userID})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}
