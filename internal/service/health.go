package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

// HealthService scores a user's finances.
type HealthService interface {
	// HealthScore computes the 0-100 score. Each call consumes one insight.
	HealthScore(ctx context.Context, userID uuid.UUID) (*domain.HealthScore, error)
}

type healthService struct {
	store         store.Store
	subscriptions SubscriptionService
	quota         QuotaService
	logger        *slog.Logger
	now           Clock
}

// NewHealthService creates a new HealthService.
func NewHealthService(st store.Store, subscriptions SubscriptionService, quota QuotaService, logger *slog.Logger) HealthService {
	return &healthService{
		store:         st,
		subscriptions: subscriptions,
		quota:         quota,
		logger:        logger,
		now:           systemClock,
	}
}

func (s *healthService) HealthScore(ctx context.Context, userID uuid.UUID) (*domain.HealthScore, error) {
	const op = "health.score"

	if _, err := s.subscriptions.EnsureSubscription(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.quota.RequireQuota(ctx, userID, domain.UsageInsights); err != nil {
		return nil, err
	}

	in, err := loadHealthInputs(ctx, s.store, userID, s.now())
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load financial data")
	}
	score := domain.ComputeHealthScore(*in)

	if _, err := s.quota.IncrementUsage(ctx, userID, domain.UsageInsights, 1); err != nil {
		return nil, err
	}

	s.logger.Info("health score computed", "user_id", userID, "score", score.Score, "grade", score.Grade)
	return &score, nil
}

// loadHealthInputs gathers the trailing figures the score and chat snapshot use.
func loadHealthInputs(ctx context.Context, st store.Store, userID uuid.UUID, now time.Time) (*domain.HealthInputs, error) {
	from := now.AddDate(0, 0, -trailingDays)
	income, err := st.SumTransactions(ctx, domain.TransactionFilter{UserID: userID, Kind: domain.TransactionIncome, From: from})
	if err != nil {
		return nil, err
	}
	expenses, err := st.SumTransactions(ctx, domain.TransactionFilter{UserID: userID, Kind: domain.TransactionExpense, From: from})
	if err != nil {
		return nil, err
	}
	weeks, err := weeklyExpenseTotals(ctx, st, userID, now, volatilityWeeks)
	if err != nil {
		return nil, err
	}
	goals, err := st.ListGoals(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	in := &domain.HealthInputs{
		Income30:       income,
		Expenses30:     expenses,
		WeeklyExpenses: weeks,
		Goals:          goals,
	}
	for _, g := range goals {
		if g.Category == domain.GoalCategoryEmergencyFund {
			in.EmergencyFund += g.CurrentAmount
		}
	}
	return in, nil
}

// financialSnapshot renders the user's figures as plain text for the AI prompt.
func financialSnapshot(in *domain.HealthInputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Income (last 30 days): %s\n", in.Income30.Display())
	fmt.Fprintf(&b, "Expenses (last 30 days): %s\n", in.Expenses30.Display())
	fmt.Fprintf(&b, "Savings rate: %.1f%%\n", domain.SavingsRate(in.Income30, in.Expenses30))
	fmt.Fprintf(&b, "Emergency fund: %s\n", in.EmergencyFund.Display())

	if len(in.Goals) == 0 {
		b.WriteString("Goals: none\n")
		return b.String()
	}
	b.WriteString("Goals:\n")
	for i := range in.Goals {
		g := &in.Goals[i]
		fmt.Fprintf(&b, "- %s (%s): %s of %s, %.0f%%, %s\n",
			g.Name, g.Category, g.CurrentAmount.Display(), g.TargetAmount.Display(), g.ProgressPercent(), g.Status)
	}
	return b.String()
}
