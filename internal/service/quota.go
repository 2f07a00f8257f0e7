// Package service contains the business logic layer.
//
// This file implements the quota service for checking and enforcing
// AI usage limits based on subscription plan.
package service

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/metrics"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService defines operations for checking quota limits.
type QuotaService interface {
	// CheckUsageLimit reports whether the user may consume one more unit of
	// usageType. A user without an active subscription is denied, not errored.
	CheckUsageLimit(ctx context.Context, userID uuid.UUID, usageType domain.UsageType) (*domain.QuotaCheck, error)

	// RequireQuota checks the limit and returns an EQUOTA error when denied.
	RequireQuota(ctx context.Context, userID uuid.UUID, usageType domain.UsageType) (*domain.QuotaCheck, error)

	// IncrementUsage atomically adds amount to the user's counter for the
	// current window and returns the new value.
	IncrementUsage(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, amount int64) (int64, error)

	// GetUsageSummary reports every counter for the current window.
	GetUsageSummary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error)

	// PurchaseAddOn records the credits of an add-on pack.
	PurchaseAddOn(ctx context.Context, userID uuid.UUID, packID string) (*domain.AddOnCredit, error)
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store         store.Store
	subscriptions SubscriptionService
	logger        *slog.Logger
	now           Clock
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(st store.Store, subscriptions SubscriptionService, logger *slog.Logger) QuotaService {
	return &quotaService{
		store:         st,
		subscriptions: subscriptions,
		logger:        logger,
		now:           systemClock,
	}
}

// CheckUsageLimit reports whether the user may consume one more unit.
func (s *quotaService) CheckUsageLimit(ctx context.Context, userID uuid.UUID, usageType domain.UsageType) (*domain.QuotaCheck, error) {
	const op = "quota.check_usage_limit"

	if !usageType.Valid() {
		return nil, domain.Invalid(op, "unknown usage type "+string(usageType))
	}

	active, err := s.subscriptions.GetActiveSubscription(ctx, userID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			metrics.QuotaChecked(usageType, "no_subscription")
			return &domain.QuotaCheck{Type: usageType, Allowed: false}, nil
		}
		return nil, err
	}

	check, err := s.check(ctx, active, usageType)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to check usage")
	}

	result := "allowed"
	if !check.Allowed {
		result = "denied"
	}
	metrics.QuotaChecked(usageType, result)
	return check, nil
}

// check computes the quota for one usage type against an already resolved subscription.
func (s *quotaService) check(ctx context.Context, active *domain.ActiveSubscription, usageType domain.UsageType) (*domain.QuotaCheck, error) {
	userID := active.Subscription.UserID
	now := s.now()

	start, _ := active.UsagePeriod(now)
	var used int64
	record, err := s.store.GetUsageRecord(ctx, userID, start)
	switch {
	case err == nil:
		used = record.Used(usageType)
	case isNotFound(err):
	default:
		return nil, err
	}

	if active.Subscription.FreePremium {
		return &domain.QuotaCheck{
			Type:      usageType,
			Allowed:   true,
			Used:      used,
			Limit:     domain.UnlimitedSentinel,
			Unlimited: true,
		}, nil
	}

	credits, err := s.store.SumAddOnCredits(ctx, userID, usageType, now)
	if err != nil {
		return nil, err
	}
	limit := active.Plan.Limits.For(usageType) + credits

	return &domain.QuotaCheck{
		Type:    usageType,
		Allowed: used < limit,
		Used:    used,
		Limit:   limit,
	}, nil
}

// RequireQuota returns an EQUOTA error when the check denies usage.
func (s *quotaService) RequireQuota(ctx context.Context, userID uuid.UUID, usageType domain.UsageType) (*domain.QuotaCheck, error) {
	const op = "quota.require"

	check, err := s.CheckUsageLimit(ctx, userID, usageType)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		s.logger.Info("quota exceeded",
			"user_id", userID,
			"type", usageType,
			"used", check.Used,
			"limit", check.Limit,
		)
		return check, domain.QuotaExceeded(op, usageType, check.Used, check.Limit)
	}
	return check, nil
}

// IncrementUsage atomically adds amount to the current window's counter.
func (s *quotaService) IncrementUsage(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, amount int64) (int64, error) {
	const op = "quota.increment_usage"

	if !usageType.Valid() {
		return 0, domain.Invalid(op, "unknown usage type "+string(usageType))
	}
	if amount <= 0 {
		return 0, domain.Invalid(op, "amount must be positive")
	}

	active, err := s.subscriptions.GetActiveSubscription(ctx, userID)
	if err != nil {
		return 0, err
	}

	start, end := active.UsagePeriod(s.now())
	value, err := s.store.IncrementUsage(ctx, domain.UsageKey{
		UserID:         userID,
		SubscriptionID: active.Subscription.ID,
		PeriodStart:    start,
		PeriodEnd:      end,
	}, usageType, amount)
	if err != nil {
		s.logger.Error("failed to increment usage", "error", err, "op", op, "user_id", userID, "type", usageType)
		return 0, domain.Internal(err, op, "failed to record usage")
	}

	metrics.UsageIncremented(usageType, amount)
	return value, nil
}

// GetUsageSummary reports every counter for the current window.
func (s *quotaService) GetUsageSummary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error) {
	const op = "quota.get_usage_summary"

	active, err := s.subscriptions.EnsureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	start, end := active.UsagePeriod(s.now())
	summary := &domain.UsageSummary{
		Plan:        active.Plan.Name,
		PeriodStart: start,
		PeriodEnd:   end,
		Lifetime:    active.Plan.IsLifetimeLimit,
		Quotas:      make([]domain.QuotaCheck, 0, len(domain.UsageTypes)),
	}
	for _, t := range domain.UsageTypes {
		check, err := s.check(ctx, active, t)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to summarize usage")
		}
		summary.Quotas = append(summary.Quotas, *check)
	}
	return summary, nil
}

// PurchaseAddOn records the credits of an add-on pack.
func (s *quotaService) PurchaseAddOn(ctx context.Context, userID uuid.UUID, packID string) (*domain.AddOnCredit, error) {
	const op = "quota.purchase_add_on"

	pack, ok := domain.FindAddOnPack(packID)
	if !ok {
		return nil, domain.Invalid(op, "unknown add-on pack "+packID)
	}

	now := s.now()
	credit, err := s.store.CreateAddOnCredit(ctx, domain.AddOnCredit{
		UserID:    userID,
		UsageType: pack.UsageType,
		Amount:    pack.Amount,
		ExpiresAt: now.AddDate(0, 0, pack.ValidDays),
		CreatedAt: now,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to record add-on")
	}

	s.logger.Info("add-on purchased", "user_id", userID, "pack", pack.ID, "amount", pack.Amount)
	return credit, nil
}
