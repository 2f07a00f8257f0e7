package service

import (
	"context"
	"fmt"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

// Rule windows and thresholds.
const (
	trailingDays         = 30
	volatilityWeeks      = 4
	riskThrottle         = 24 * time.Hour
	reminderThrottle     = 24 * time.Hour
	budgetThrottle       = 24 * time.Hour
	goalThrottle         = 72 * time.Hour
	reminderInactiveDays = 7
	deadlineRiskDays     = 30
	deadlineRiskProgress = 50.0
	almostThereProgress  = 90.0

	emergencyFundExpenseFloor domain.Money = 500_00
)

// rule is one named member of the notification battery.
type rule struct {
	name string
	run  func(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error)
}

func (s *notificationService) rules() []rule {
	return []rule{
		{"daily_briefing", s.ruleDailyBriefing},
		{"risk_alerts", s.ruleRiskAlerts},
		{"goal_deadline_risk", s.ruleGoalDeadlineRisk},
		{"transaction_reminder", s.ruleTransactionReminder},
		{"budget_warning", s.ruleBudgetWarning},
		{"goal_completion", s.ruleGoalCompletion},
	}
}

// =============================================================================
// Helpers
// =============================================================================

// recent reports whether a notification of typ was sent at or after since.
func (s *notificationService) recent(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, since time.Time) (bool, error) {
	return s.store.HasRecentNotification(ctx, userID, typ, since)
}

// trailingTotals sums income and expenses over the last trailingDays.
func (s *notificationService) trailingTotals(ctx context.Context, userID uuid.UUID) (income, expenses domain.Money, err error) {
	from := s.now().AddDate(0, 0, -trailingDays)
	income, err = s.store.SumTransactions(ctx, domain.TransactionFilter{
		UserID: userID, Kind: domain.TransactionIncome, From: from,
	})
	if err != nil {
		return 0, 0, err
	}
	expenses, err = s.store.SumTransactions(ctx, domain.TransactionFilter{
		UserID: userID, Kind: domain.TransactionExpense, From: from,
	})
	if err != nil {
		return 0, 0, err
	}
	return income, expenses, nil
}

// weeklyExpenses returns expense totals for the trailing weeks, oldest first.
func (s *notificationService) weeklyExpenses(ctx context.Context, userID uuid.UUID, weeks int) ([]domain.Money, error) {
	return weeklyExpenseTotals(ctx, s.store, userID, s.now(), weeks)
}

func collect(n *domain.Notification) []domain.Notification {
	if n == nil {
		return nil
	}
	return []domain.Notification{*n}
}

// =============================================================================
// Rules
// =============================================================================

// ruleDailyBriefing sends one savings-rate summary per local calendar day.
func (s *notificationService) ruleDailyBriefing(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	sent, err := s.recent(ctx, userID, domain.NotificationDailyBriefing, domain.StartOfDay(s.now(), s.loc))
	if err != nil || sent {
		return nil, err
	}

	income, expenses, err := s.trailingTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	if income == 0 && expenses == 0 {
		return nil, nil
	}

	rate := domain.SavingsRate(income, expenses)
	b := domain.BriefingForSavingsRate(rate)
	n, err := s.Notify(ctx, domain.CreateNotificationParams{
		UserID:   userID,
		Type:     domain.NotificationDailyBriefing,
		Title:    b.Title,
		Message:  b.Message,
		Priority: b.Priority,
		Metadata: mustJSON(map[string]any{
			"savings_rate": rate,
			"income":       income,
			"expenses":     expenses,
		}),
	})
	return collect(n), err
}

// ruleRiskAlerts flags volatile weekly spending and a missing emergency fund.
// The two alerts share one throttle window: if either went out recently,
// neither is evaluated.
func (s *notificationService) ruleRiskAlerts(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	since := s.now().Add(-riskThrottle)
	for _, typ := range []domain.NotificationType{domain.NotificationRiskVolatility, domain.NotificationRiskEmergencyFund} {
		sent, err := s.recent(ctx, userID, typ, since)
		if err != nil || sent {
			return nil, err
		}
	}

	var created []domain.Notification
	weeks, err := s.weeklyExpenses(ctx, userID, volatilityWeeks)
	if err != nil {
		return created, err
	}
	if v := domain.WeeklyVolatility(weeks); v.Volatile {
		n, err := s.Notify(ctx, domain.CreateNotificationParams{
			UserID: userID,
			Type:   domain.NotificationRiskVolatility,
			Title:  "Your spending is swinging",
			Message: fmt.Sprintf("Weekly spending varied by up to %s around an average of %s. A weekly budget can smooth it out.",
				domain.Money(v.MaxDeviation).Display(), domain.Money(v.Mean).Display()),
			Priority: domain.PriorityMedium,
			Metadata: mustJSON(map[string]any{"weeks": weeks, "mean": v.Mean, "max_deviation": v.MaxDeviation}),
		})
		if err != nil {
			return created, err
		}
		created = append(created, *n)
	}

	goals, err := s.store.ListGoals(ctx, userID, false)
	if err != nil {
		return created, err
	}
	for _, g := range goals {
		if g.Category == domain.GoalCategoryEmergencyFund {
			return created, nil
		}
	}
	_, expenses, err := s.trailingTotals(ctx, userID)
	if err != nil {
		return created, err
	}
	if expenses <= emergencyFundExpenseFloor {
		return created, nil
	}
	n, err := s.Notify(ctx, domain.CreateNotificationParams{
		UserID: userID,
		Type:   domain.NotificationRiskEmergencyFund,
		Title:  "Start an emergency fund",
		Message: fmt.Sprintf("You spent %s over the last 30 days with no emergency fund. Aim to set aside at least %s.",
			expenses.Display(), expenses.Display()),
		Priority: domain.PriorityHigh,
		Metadata: mustJSON(map[string]any{"recommended": expenses}),
	})
	if err != nil {
		return created, err
	}
	return append(created, *n), nil
}

// ruleGoalDeadlineRisk warns about goals due within a month that are less than half funded.
func (s *notificationService) ruleGoalDeadlineRisk(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	goals, err := s.store.ListGoals(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	var created []domain.Notification
	for i := range goals {
		g := &goals[i]
		if g.Status != domain.GoalStatusActive {
			continue
		}
		days, ok := g.DaysUntilDeadline(now)
		if !ok || days <= 0 || days > deadlineRiskDays || g.ProgressPercent() >= deadlineRiskProgress {
			continue
		}

		sent, err := s.store.HasRecentGoalNotification(ctx, userID, domain.NotificationGoalDeadlineRisk, g.ID, now.Add(-goalThrottle))
		if err != nil {
			return created, err
		}
		if sent {
			continue
		}

		daily := domain.RequiredDailySavings(g.Remaining(), days)
		n, err := s.Notify(ctx, domain.CreateNotificationParams{
			UserID: userID,
			Type:   domain.NotificationGoalDeadlineRisk,
			Title:  fmt.Sprintf("%q is at risk", g.Name),
			Message: fmt.Sprintf("%d days left and %.0f%% funded. Save %s a day to reach %s on time.",
				days, g.ProgressPercent(), daily.Display(), g.TargetAmount.Display()),
			Priority: domain.PriorityHigh,
			Metadata: goalMetadata(g.ID, map[string]any{"days_left": days, "required_daily": daily}),
		})
		if err != nil {
			return created, err
		}
		created = append(created, *n)
	}
	return created, nil
}

// ruleTransactionReminder nudges users who have not recorded anything in a week.
func (s *notificationService) ruleTransactionReminder(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	now := s.now()
	sent, err := s.recent(ctx, userID, domain.NotificationTransactionReminder, now.Add(-reminderThrottle))
	if err != nil || sent {
		return nil, err
	}

	count, err := s.store.CountTransactions(ctx, domain.TransactionFilter{
		UserID: userID,
		From:   now.AddDate(0, 0, -reminderInactiveDays),
	})
	if err != nil || count > 0 {
		return nil, err
	}

	n, err := s.Notify(ctx, domain.CreateNotificationParams{
		UserID:   userID,
		Type:     domain.NotificationTransactionReminder,
		Title:    "Keep your records current",
		Message:  "You haven't logged a transaction in a week. A quick update keeps your insights accurate.",
		Priority: domain.PriorityLow,
	})
	return collect(n), err
}

// ruleBudgetWarning is the battery entry for the budget rule.
func (s *notificationService) ruleBudgetWarning(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	n, err := s.CheckBudgetWarning(ctx, userID)
	return collect(n), err
}

// CheckBudgetWarning sends an urgent warning when trailing expenses exceed income.
func (s *notificationService) CheckBudgetWarning(ctx context.Context, userID uuid.UUID) (*domain.Notification, error) {
	sent, err := s.recent(ctx, userID, domain.NotificationBudgetWarning, s.now().Add(-budgetThrottle))
	if err != nil || sent {
		return nil, err
	}

	income, expenses, err := s.trailingTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	if expenses <= income {
		return nil, nil
	}

	over := domain.OverspendPercent(income, expenses)
	return s.Notify(ctx, domain.CreateNotificationParams{
		UserID: userID,
		Type:   domain.NotificationBudgetWarning,
		Title:  "You're over budget",
		Message: fmt.Sprintf("Spending of %s is %.0f%% above your income of %s over the last 30 days.",
			expenses.Display(), over, income.Display()),
		Priority: domain.PriorityUrgent,
		Metadata: mustJSON(map[string]any{"income": income, "expenses": expenses, "overage_percent": over}),
	})
}

// ruleGoalCompletion evaluates every active goal.
func (s *notificationService) ruleGoalCompletion(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	goals, err := s.store.ListGoals(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	var created []domain.Notification
	for i := range goals {
		n, _, err := s.EvaluateGoal(ctx, &goals[i])
		if err != nil {
			return created, err
		}
		created = append(created, collect(n)...)
	}
	return created, nil
}

// EvaluateGoal sends "almost there" at 90% and completes the goal at 100%.
func (s *notificationService) EvaluateGoal(ctx context.Context, goal *domain.FinancialGoal) (*domain.Notification, bool, error) {
	if goal.Status != domain.GoalStatusActive {
		return nil, false, nil
	}

	progress := goal.ProgressPercent()
	switch {
	case progress >= 100:
		if err := s.store.SetGoalStatus(ctx, goal.ID, goal.UserID, domain.GoalStatusCompleted); err != nil {
			return nil, false, err
		}
		goal.Status = domain.GoalStatusCompleted
		n, err := s.Notify(ctx, domain.CreateNotificationParams{
			UserID:   goal.UserID,
			Type:     domain.NotificationGoalCompleted,
			Title:    fmt.Sprintf("You reached %q!", goal.Name),
			Message:  fmt.Sprintf("You saved %s and hit your target. Time to celebrate.", goal.CurrentAmount.Display()),
			Priority: domain.PriorityHigh,
			Metadata: goalMetadata(goal.ID, nil),
		})
		return n, true, err

	case progress >= almostThereProgress:
		sent, err := s.store.HasRecentGoalNotification(ctx, goal.UserID, domain.NotificationGoalAlmostComplete, goal.ID, s.now().Add(-goalThrottle))
		if err != nil || sent {
			return nil, false, err
		}
		n, err := s.Notify(ctx, domain.CreateNotificationParams{
			UserID:   goal.UserID,
			Type:     domain.NotificationGoalAlmostComplete,
			Title:    fmt.Sprintf("Almost there on %q", goal.Name),
			Message:  fmt.Sprintf("Only %s to go. You're %.0f%% of the way.", goal.Remaining().Display(), progress),
			Priority: domain.PriorityMedium,
			Metadata: goalMetadata(goal.ID, nil),
		})
		return n, false, err
	}
	return nil, false, nil
}

// weeklyExpenseTotals sums expenses for the trailing weeks ending at now, oldest first.
func weeklyExpenseTotals(ctx context.Context, st store.TransactionStore, userID uuid.UUID, now time.Time, weeks int) ([]domain.Money, error) {
	totals := make([]domain.Money, 0, weeks)
	for i := weeks; i > 0; i-- {
		f := domain.TransactionFilter{
			UserID: userID,
			Kind:   domain.TransactionExpense,
			From:   now.AddDate(0, 0, -7*i),
		}
		if i > 1 {
			f.To = now.AddDate(0, 0, -7*(i-1))
		}
		sum, err := st.SumTransactions(ctx, f)
		if err != nil {
			return nil, err
		}
		totals = append(totals, sum)
	}
	return totals, nil
}
