// Package storetest is the behavioural contract every store.Store
// implementation must satisfy. Each test works on fresh random user IDs so
// the suite can share one database.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the contract against the store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Plans", testPlans},
		{"Subscriptions", testSubscriptions},
		{"UsageIncrement", testUsageIncrement},
		{"UsageIncrementConcurrent", testUsageIncrementConcurrent},
		{"AddOnCredits", testAddOnCredits},
		{"Goals", testGoals},
		{"Milestones", testMilestones},
		{"Transactions", testTransactions},
		{"Streaks", testStreaks},
		{"Achievements", testAchievements},
		{"Notifications", testNotifications},
		{"Groups", testGroups},
		{"InviteAcceptConcurrent", testInviteAcceptConcurrent},
		{"Chat", testChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func seedPlan(t *testing.T, s store.Store) *domain.Plan {
	t.Helper()
	plan, err := s.UpsertPlan(context.Background(), domain.Plan{
		Name:        "test-" + uuid.NewString(),
		DisplayName: "Test",
		PriceCents:  500,
		Limits:      domain.PlanLimits{Chats: 5, Insights: 1},
	})
	require.NoError(t, err)
	return plan
}

func seedSubscription(t *testing.T, s store.Store, userID uuid.UUID) *domain.Subscription {
	t.Helper()
	ctx := context.Background()
	plan := seedPlan(t, s)
	start, end := domain.MonthBoundaries(time.Now())
	created, err := s.CreateSubscription(ctx, domain.Subscription{
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	})
	require.NoError(t, err)
	require.True(t, created)
	sub, err := s.GetActiveSubscription(ctx, userID)
	require.NoError(t, err)
	return sub
}

func seedGoal(t *testing.T, s store.Store, userID uuid.UUID, target domain.Money) *domain.FinancialGoal {
	t.Helper()
	g, err := s.CreateGoal(context.Background(), domain.FinancialGoal{
		UserID:       userID,
		Name:         "Emergency fund",
		Category:     domain.GoalCategoryEmergencyFund,
		TargetAmount: target,
	})
	require.NoError(t, err)
	return g
}

func testPlans(t *testing.T, s store.Store) {
	ctx := context.Background()
	plan := seedPlan(t, s)
	assert.NotEqual(t, uuid.Nil, plan.ID)

	plan.Limits.Chats = 42
	updated, err := s.UpsertPlan(ctx, *plan)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, updated.ID, "upsert by name keeps the id")
	assert.Equal(t, int64(42), updated.Limits.Chats)

	byName, err := s.GetPlanByName(ctx, plan.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(42), byName.Limits.Chats)

	byID, err := s.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Name, byID.Name)

	_, err = s.GetPlanByName(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)

	plans, err := s.ListPlans(ctx)
	require.NoError(t, err)
	var found bool
	for _, p := range plans {
		found = found || p.ID == plan.ID
	}
	assert.True(t, found)
}

func testSubscriptions(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()

	_, err := s.GetActiveSubscription(ctx, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	sub := seedSubscription(t, s, userID)

	// A second active subscription for the same user is a no-op.
	created, err := s.CreateSubscription(ctx, domain.Subscription{
		UserID:             userID,
		PlanID:             sub.PlanID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
	})
	require.NoError(t, err)
	assert.False(t, created)

	sub.ProviderCustomerID = "cus_" + uuid.NewString()
	sub.ProviderSubscriptionID = "sub_" + uuid.NewString()
	sub.FreePremium = true
	require.NoError(t, s.UpdateSubscription(ctx, *sub))

	byProvider, err := s.GetSubscriptionByProviderID(ctx, sub.ProviderSubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, byProvider.ID)
	assert.True(t, byProvider.FreePremium)

	byCustomer, err := s.GetSubscriptionByCustomerID(ctx, sub.ProviderCustomerID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, byCustomer.ID)

	sub.Status = domain.SubscriptionStatusCancelled
	require.NoError(t, s.UpdateSubscription(ctx, *sub))
	_, err = s.GetActiveSubscription(ctx, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// With the old one cancelled a new active subscription can be created.
	created, err = s.CreateSubscription(ctx, domain.Subscription{
		UserID:             userID,
		PlanID:             sub.PlanID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
	})
	require.NoError(t, err)
	assert.True(t, created)

	// A provider subscription ID links to one subscription only.
	other := seedSubscription(t, s, uuid.New())
	other.ProviderSubscriptionID = sub.ProviderSubscriptionID
	assert.ErrorIs(t, s.UpdateSubscription(ctx, *other), store.ErrConflict)

	missing := *sub
	missing.ID = uuid.New()
	assert.ErrorIs(t, s.UpdateSubscription(ctx, missing), store.ErrNotFound)
}

func testUsageIncrement(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()
	start, end := domain.MonthBoundaries(time.Now())
	key := domain.UsageKey{UserID: userID, SubscriptionID: uuid.New(), PeriodStart: start, PeriodEnd: end}

	_, err := s.GetUsageRecord(ctx, userID, start)
	assert.ErrorIs(t, err, store.ErrNotFound)

	v, err := s.IncrementUsage(ctx, key, domain.UsageChats, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.IncrementUsage(ctx, key, domain.UsageChats, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = s.IncrementUsage(ctx, key, domain.UsageModelPremium, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	rec, err := s.GetUsageRecord(ctx, userID, start)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.ChatsUsed)
	assert.Equal(t, int64(1), rec.ModelPremiumQueries)
	assert.Equal(t, int64(0), rec.DeepAnalysisUsed)
	assert.True(t, rec.PeriodEnd.Equal(end))

	// A different period is a different record.
	lifetime := domain.UsageKey{UserID: userID, SubscriptionID: key.SubscriptionID,
		PeriodStart: domain.LifetimePeriodStart, PeriodEnd: domain.LifetimePeriodEnd}
	v, err = s.IncrementUsage(ctx, lifetime, domain.UsageChats, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func testUsageIncrementConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()
	start, end := domain.MonthBoundaries(time.Now())
	key := domain.UsageKey{UserID: userID, SubscriptionID: uuid.New(), PeriodStart: start, PeriodEnd: end}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementUsage(ctx, key, domain.UsageInsights, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.GetUsageRecord(ctx, userID, start)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), rec.InsightsGenerated)
}

func testAddOnCredits(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	for _, c := range []domain.AddOnCredit{
		{UserID: userID, UsageType: domain.UsageChats, Amount: 10, ExpiresAt: now.Add(24 * time.Hour)},
		{UserID: userID, UsageType: domain.UsageChats, Amount: 5, ExpiresAt: now.Add(48 * time.Hour)},
		{UserID: userID, UsageType: domain.UsageChats, Amount: 100, ExpiresAt: now.Add(-time.Hour)},
		{UserID: userID, UsageType: domain.UsageInsights, Amount: 7, ExpiresAt: now.Add(time.Hour)},
	} {
		_, err := s.CreateAddOnCredit(ctx, c)
		require.NoError(t, err)
	}

	total, err := s.SumAddOnCredits(ctx, userID, domain.UsageChats, now)
	require.NoError(t, err)
	assert.Equal(t, int64(15), total)

	total, err = s.SumAddOnCredits(ctx, uuid.New(), domain.UsageChats, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func testGoals(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()
	g := seedGoal(t, s, userID, 1000_00)
	assert.Equal(t, domain.GoalStatusActive, g.Status)

	_, err := s.GetGoal(ctx, g.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound, "goals are scoped to their owner")

	updated, err := s.AddGoalAmount(ctx, g.ID, userID, 250_00)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(250_00), updated.CurrentAmount)

	deadline := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	updated.Name = "Rainy day"
	updated.TargetDate = &deadline
	updated, err = s.UpdateGoal(ctx, *updated)
	require.NoError(t, err)
	assert.Equal(t, "Rainy day", updated.Name)
	require.NotNil(t, updated.TargetDate)
	assert.True(t, updated.TargetDate.Equal(deadline))

	other := seedGoal(t, s, userID, 50_00)
	require.NoError(t, s.SetGoalStatus(ctx, other.ID, userID, domain.GoalStatusArchived))

	active, err := s.ListGoals(ctx, userID, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, g.ID, active[0].ID)

	all, err := s.ListGoals(ctx, userID, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, s.SetGoalStatus(ctx, uuid.New(), userID, domain.GoalStatusCompleted), store.ErrNotFound)
}

func testMilestones(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()
	g := seedGoal(t, s, userID, 1000_00)

	inserted, err := s.InsertMilestone(ctx, domain.GoalMilestone{GoalID: g.ID, UserID: userID, Milestone: 25, AmountAtMilestone: 250_00})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertMilestone(ctx, domain.GoalMilestone{GoalID: g.ID, UserID: userID, Milestone: 25, AmountAtMilestone: 999_00})
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate milestone is a no-op, not an error")

	inserted, err = s.InsertMilestone(ctx, domain.GoalMilestone{GoalID: g.ID, UserID: userID, Milestone: 50, AmountAtMilestone: 500_00})
	require.NoError(t, err)
	assert.True(t, inserted)

	list, err := s.ListMilestones(ctx, g.ID, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 25, list[0].Milestone)
	assert.Equal(t, domain.Money(250_00), list[0].AmountAtMilestone, "first snapshot is kept")

	unseen, err := s.ListUnseenMilestones(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, unseen, 2)

	n, err := s.MarkMilestonesSeen(ctx, userID, []uuid.UUID{list[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.MarkMilestonesSeen(ctx, uuid.New(), []uuid.UUID{list[1].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "other users cannot mark milestones")

	unseen, err = s.ListUnseenMilestones(ctx, userID)
	require.NoError(t, err)
	require.Len(t, unseen, 1)
	assert.Equal(t, 50, unseen[0].Milestone)
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().Truncate(time.Second)

	for _, tx := range []domain.Transaction{
		{UserID: userID, Kind: domain.TransactionIncome, Amount: 3000_00, OriginalAmount: 3000_00, Currency: "USD", OccurredAt: now.Add(-20 * 24 * time.Hour)},
		{UserID: userID, Kind: domain.TransactionExpense, Amount: 120_00, OriginalAmount: 120_00, Currency: "USD", OccurredAt: now.Add(-2 * 24 * time.Hour)},
		{UserID: userID, Kind: domain.TransactionExpense, Amount: 80_00, OriginalAmount: 80_00, Currency: "USD", OccurredAt: now.Add(-time.Hour)},
		{UserID: userID, Kind: domain.TransactionExpense, Amount: 999_00, OriginalAmount: 999_00, Currency: "USD", OccurredAt: now.Add(-40 * 24 * time.Hour)},
	} {
		_, err := s.CreateTransaction(ctx, tx)
		require.NoError(t, err)
	}

	window := domain.TransactionFilter{UserID: userID, Kind: domain.TransactionExpense, From: now.Add(-30 * 24 * time.Hour)}
	sum, err := s.SumTransactions(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(200_00), sum)

	count, err := s.CountTransactions(ctx, domain.TransactionFilter{UserID: userID, From: now.Add(-7 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	bounded, err := s.SumTransactions(ctx, domain.TransactionFilter{UserID: userID, Kind: domain.TransactionExpense, To: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.Money(1119_00), bounded, "To is exclusive")

	list, err := s.ListTransactions(ctx, domain.TransactionFilter{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.Money(80_00), list[0].Amount, "newest first")

	empty, err := s.SumTransactions(ctx, domain.TransactionFilter{UserID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, domain.Money(0), empty)
}

func testStreaks(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()

	_, err := s.GetStreak(ctx, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	last := time.Date(2026, time.October, 15, 9, 30, 0, 0, time.UTC)
	streak := domain.UserStreak{
		UserID:        userID,
		CurrentStreak: 3,
		LongestStreak: 5,
		TotalCheckIns: 12,
		LastCheckIn:   &last,
		UpdatedAt:     last,
	}
	streak.WeeklyProgress[2] = true
	streak.WeeklyProgress[4] = true
	require.NoError(t, s.SaveStreak(ctx, streak))

	got, err := s.GetStreak(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentStreak)
	assert.Equal(t, 5, got.LongestStreak)
	assert.Equal(t, 12, got.TotalCheckIns)
	require.NotNil(t, got.LastCheckIn)
	assert.True(t, got.LastCheckIn.Equal(last))
	assert.Equal(t, [7]bool{false, false, true, false, true, false, false}, got.WeeklyProgress)

	streak.CurrentStreak = 4
	require.NoError(t, s.SaveStreak(ctx, streak))
	got, err = s.GetStreak(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.CurrentStreak)
}

func testAchievements(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()

	a, err := s.UpsertAchievement(ctx, domain.UserAchievement{UserID: userID, AchievementID: "streak_7", Progress: 3, Target: 7})
	require.NoError(t, err)
	assert.False(t, a.Earned())

	earnedAt := time.Now().Truncate(time.Second)
	a, err = s.UpsertAchievement(ctx, domain.UserAchievement{UserID: userID, AchievementID: "streak_7", Progress: 7, Target: 7, EarnedAt: &earnedAt})
	require.NoError(t, err)
	assert.True(t, a.Earned())

	// Earned rows are frozen.
	a, err = s.UpsertAchievement(ctx, domain.UserAchievement{UserID: userID, AchievementID: "streak_7", Progress: 1, Target: 7})
	require.NoError(t, err)
	assert.True(t, a.Earned())
	assert.Equal(t, 7, a.Progress)

	_, err = s.UpsertAchievement(ctx, domain.UserAchievement{UserID: userID, AchievementID: "streak_30", Progress: 1, Target: 30})
	require.NoError(t, err)

	list, err := s.ListAchievements(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "streak_7", list[0].AchievementID)

	_, err = s.GetAchievement(ctx, userID, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testNotifications(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()
	goalID := uuid.New()
	now := time.Now()

	meta, err := json.Marshal(map[string]string{"goal_id": goalID.String()})
	require.NoError(t, err)

	first, err := s.CreateNotification(ctx, domain.Notification{
		UserID:    userID,
		Type:      domain.NotificationGoalDeadlineRisk,
		Title:     "Deadline approaching",
		Message:   "msg",
		Priority:  domain.PriorityHigh,
		Metadata:  meta,
		CreatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.JSONEq(t, string(meta), string(first.Metadata))

	second, err := s.CreateNotification(ctx, domain.Notification{
		UserID:  userID,
		Type:    domain.NotificationDailyBriefing,
		Title:   "Briefing",
		Message: "msg",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, second.Priority)
	assert.Empty(t, second.Metadata)

	recent, err := s.HasRecentNotification(ctx, userID, domain.NotificationGoalDeadlineRisk, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.True(t, recent)

	recent, err = s.HasRecentNotification(ctx, userID, domain.NotificationGoalDeadlineRisk, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.False(t, recent)

	recent, err = s.HasRecentGoalNotification(ctx, userID, domain.NotificationGoalDeadlineRisk, goalID, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.True(t, recent)

	recent, err = s.HasRecentGoalNotification(ctx, userID, domain.NotificationGoalDeadlineRisk, uuid.New(), now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.False(t, recent)

	list, err := s.ListNotifications(ctx, domain.NotificationFilter{UserID: userID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	unread, err := s.CountUnreadNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	require.NoError(t, s.MarkNotificationRead(ctx, first.ID, userID))
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, first.ID, uuid.New()), store.ErrNotFound)

	list, err = s.ListNotifications(ctx, domain.NotificationFilter{UserID: userID, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, s.ArchiveNotification(ctx, second.ID, userID))
	list, err = s.ListNotifications(ctx, domain.NotificationFilter{UserID: userID})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListNotifications(ctx, domain.NotificationFilter{UserID: userID, IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := s.MarkAllNotificationsRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err = s.CountUnreadNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)
}

func testGroups(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := uuid.New()
	guest := uuid.New()
	now := time.Now()

	g, err := s.CreateGroup(ctx, domain.Group{Name: "Family", OwnerID: owner})
	require.NoError(t, err)

	m, err := s.GetGroupMember(ctx, g.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.GroupRoleOwner, m.Role)

	code := "INV-" + uuid.NewString()[:8]
	_, err = s.CreateInvite(ctx, domain.GroupInvite{GroupID: g.ID, Code: code, InvitedBy: owner, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	_, err = s.CreateInvite(ctx, domain.GroupInvite{GroupID: g.ID, Code: code, InvitedBy: owner, ExpiresAt: now.Add(time.Hour)})
	assert.ErrorIs(t, err, store.ErrConflict)

	inv, err := s.AcceptInvite(ctx, code, guest, now)
	require.NoError(t, err)
	assert.Equal(t, domain.InviteStatusAccepted, inv.Status)
	require.NotNil(t, inv.AcceptedBy)
	assert.Equal(t, guest, *inv.AcceptedBy)

	_, err = s.AcceptInvite(ctx, code, uuid.New(), now)
	assert.ErrorIs(t, err, store.ErrInviteUnavailable, "invites are single use")

	members, err := s.ListGroupMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	expired := "EXP-" + uuid.NewString()[:8]
	_, err = s.CreateInvite(ctx, domain.GroupInvite{GroupID: g.ID, Code: expired, InvitedBy: owner, ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = s.AcceptInvite(ctx, expired, guest, now)
	assert.ErrorIs(t, err, store.ErrInviteUnavailable)

	_, err = s.AcceptInvite(ctx, "NOPE-"+uuid.NewString(), guest, now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testInviteAcceptConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := uuid.New()
	now := time.Now()

	g, err := s.CreateGroup(ctx, domain.Group{Name: "Race", OwnerID: owner})
	require.NoError(t, err)
	code := "RACE-" + uuid.NewString()[:8]
	_, err = s.CreateInvite(ctx, domain.GroupInvite{GroupID: g.ID, Code: code, InvitedBy: owner, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AcceptInvite(ctx, code, uuid.New(), now)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, store.ErrInviteUnavailable)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testChat(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()

	c, err := s.CreateConversation(ctx, domain.Conversation{UserID: userID, Title: "Budget help"})
	require.NoError(t, err)

	_, err = s.GetConversation(ctx, c.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	base := time.Now().Add(-time.Minute)
	for i, content := range []string{"hi", "hello", "how do I save?", "start small"} {
		role := domain.ChatRoleUser
		if i%2 == 1 {
			role = domain.ChatRoleAssistant
		}
		_, err := s.CreateChatMessage(ctx, domain.ChatMessage{
			ConversationID: c.ID,
			Role:           role,
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	msgs, err := s.ListChatMessages(ctx, c.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "how do I save?", msgs[0].Content, "latest messages in chronological order")
	assert.Equal(t, "start small", msgs[1].Content)

	_, err = s.CreateChatMessage(ctx, domain.ChatMessage{ConversationID: uuid.New(), Role: domain.ChatRoleUser, Content: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	convs, err := s.ListConversations(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}
