package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/metrics"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionService resolves which plan governs a user's quotas.
type SubscriptionService interface {
	// SeedPlans upserts the default plans. Called once at startup.
	SeedPlans(ctx context.Context) error

	// ListPlans returns every plan.
	ListPlans(ctx context.Context) ([]domain.Plan, error)

	// GetActiveSubscription returns the user's active subscription with its plan,
	// or an ENOTFOUND error.
	GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.ActiveSubscription, error)

	// EnsureSubscription returns the active subscription, bootstrapping the free
	// plan when the user has none. Concurrent callers end up with the same row.
	EnsureSubscription(ctx context.Context, userID uuid.UUID) (*domain.ActiveSubscription, error)

	// ChangePlan moves the user's active subscription to another plan.
	ChangePlan(ctx context.Context, userID uuid.UUID, planName string) (*domain.ActiveSubscription, error)

	// Cancel cancels the active subscription. The next EnsureSubscription
	// falls back to the free plan.
	Cancel(ctx context.Context, userID uuid.UUID) error

	// SetFreePremium toggles the unlimited override.
	SetFreePremium(ctx context.Context, userID uuid.UUID, enabled bool) (*domain.ActiveSubscription, error)

	// ApplyProviderEvent reconciles a billing provider update.
	ApplyProviderEvent(ctx context.Context, event domain.ProviderSubscriptionEvent) error
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	store  store.Store
	logger *slog.Logger
	now    Clock
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(st store.Store, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		store:  st,
		logger: logger,
		now:    systemClock,
	}
}

// SeedPlans upserts the default plans.
func (s *subscriptionService) SeedPlans(ctx context.Context) error {
	const op = "subscription.seed_plans"

	for _, plan := range domain.DefaultPlans {
		if _, err := s.store.UpsertPlan(ctx, plan); err != nil {
			return domain.Internal(err, op, "failed to seed plan "+plan.Name)
		}
	}
	s.logger.Info("subscription plans seeded", "count", len(domain.DefaultPlans))
	return nil
}

// ListPlans returns every plan.
func (s *subscriptionService) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	const op = "subscription.list_plans"

	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list plans")
	}
	return plans, nil
}

// GetActiveSubscription returns the user's active subscription with its plan.
func (s *subscriptionService) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.ActiveSubscription, error) {
	const op = "subscription.get_active"

	sub, err := s.store.GetActiveSubscription(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.Errorf(domain.ENOTFOUND, op, "no active subscription")
		}
		return nil, domain.Internal(err, op, "failed to get subscription")
	}

	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.NotFound(op, "plan", sub.PlanID.String())
		}
		return nil, domain.Internal(err, op, "failed to get plan")
	}

	return &domain.ActiveSubscription{Subscription: *sub, Plan: *plan}, nil
}

// EnsureSubscription bootstraps the free plan when no active subscription exists.
func (s *subscriptionService) EnsureSubscription(ctx context.Context, userID uuid.UUID) (*domain.ActiveSubscription, error) {
	const op = "subscription.ensure"

	active, err := s.GetActiveSubscription(ctx, userID)
	if err == nil {
		return active, nil
	}
	if domain.ErrorCode(err) != domain.ENOTFOUND {
		return nil, err
	}

	plan, err := s.store.GetPlanByName(ctx, domain.PlanFree)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.NotFound(op, "plan", domain.PlanFree)
		}
		return nil, domain.Internal(err, op, "failed to get default plan")
	}

	start, end := s.periodFor(plan)
	created, err := s.store.CreateSubscription(ctx, domain.Subscription{
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create subscription")
	}
	if created {
		metrics.SubscriptionsBootstrapped.Inc()
		s.logger.Info("bootstrapped free subscription", "user_id", userID)
	}

	// Re-read so a concurrent bootstrap that won the insert is returned as-is.
	return s.GetActiveSubscription(ctx, userID)
}

// periodFor returns the billing window a new subscription on plan starts with.
func (s *subscriptionService) periodFor(plan *domain.Plan) (start, end time.Time) {
	if plan.IsLifetimeLimit {
		return domain.LifetimePeriodStart, domain.LifetimePeriodEnd
	}
	return domain.MonthBoundaries(s.now())
}

// ChangePlan moves the active subscription to another plan.
func (s *subscriptionService) ChangePlan(ctx context.Context, userID uuid.UUID, planName string) (*domain.ActiveSubscription, error) {
	const op = "subscription.change_plan"

	plan, err := s.store.GetPlanByName(ctx, planName)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.Invalid(op, "unknown plan "+planName)
		}
		return nil, domain.Internal(err, op, "failed to get plan")
	}

	active, err := s.EnsureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active.Plan.ID == plan.ID {
		return active, nil
	}

	sub := active.Subscription
	sub.PlanID = plan.ID
	sub.CurrentPeriodStart, sub.CurrentPeriodEnd = s.periodFor(plan)
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, domain.Internal(err, op, "failed to update subscription")
	}

	s.logger.Info("subscription plan changed",
		"user_id", userID,
		"from", active.Plan.Name,
		"to", plan.Name,
	)
	return s.GetActiveSubscription(ctx, userID)
}

// Cancel cancels the active subscription.
func (s *subscriptionService) Cancel(ctx context.Context, userID uuid.UUID) error {
	const op = "subscription.cancel"

	sub, err := s.store.GetActiveSubscription(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return domain.Errorf(domain.ENOTFOUND, op, "no active subscription")
		}
		return domain.Internal(err, op, "failed to get subscription")
	}

	sub.Status = domain.SubscriptionStatusCancelled
	if err := s.store.UpdateSubscription(ctx, *sub); err != nil {
		return domain.Internal(err, op, "failed to cancel subscription")
	}
	s.logger.Info("subscription cancelled", "user_id", userID, "subscription_id", sub.ID)
	return nil
}

// SetFreePremium toggles the unlimited override.
func (s *subscriptionService) SetFreePremium(ctx context.Context, userID uuid.UUID, enabled bool) (*domain.ActiveSubscription, error) {
	const op = "subscription.set_free_premium"

	active, err := s.EnsureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub := active.Subscription
	sub.FreePremium = enabled
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, domain.Internal(err, op, "failed to update subscription")
	}
	s.logger.Info("free premium override changed", "user_id", userID, "enabled", enabled)
	return s.GetActiveSubscription(ctx, userID)
}

// ApplyProviderEvent reconciles a billing provider update with the local
// subscription. Unknown plans fall back to free; ended subscriptions cancel.
func (s *subscriptionService) ApplyProviderEvent(ctx context.Context, event domain.ProviderSubscriptionEvent) error {
	const op = "subscription.apply_provider_event"

	if event.UserID == uuid.Nil {
		sub, err := s.store.GetSubscriptionByCustomerID(ctx, event.CustomerID)
		if err != nil {
			if isNotFound(err) {
				s.logger.Warn("provider event for unknown customer", "customer_id", event.CustomerID)
				return domain.Errorf(domain.ENOTFOUND, op, "no subscription for customer")
			}
			return domain.Internal(err, op, "failed to look up customer")
		}
		event.UserID = sub.UserID
	}

	if !event.Active {
		err := s.Cancel(ctx, event.UserID)
		if err != nil && domain.ErrorCode(err) != domain.ENOTFOUND {
			return err
		}
		return nil
	}

	planName := event.PlanName
	if planName == "" {
		planName = domain.PlanFree
	}
	active, err := s.ChangePlan(ctx, event.UserID, planName)
	if err != nil {
		return err
	}

	sub := active.Subscription
	sub.ProviderCustomerID = event.CustomerID
	sub.ProviderSubscriptionID = event.SubscriptionID
	if !event.PeriodStart.IsZero() && !active.Plan.IsLifetimeLimit {
		sub.CurrentPeriodStart = event.PeriodStart
		sub.CurrentPeriodEnd = event.PeriodEnd
	}
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.logger.Warn("provider subscription already linked elsewhere",
				"user_id", event.UserID,
				"provider_subscription_id", event.SubscriptionID,
			)
			return domain.Conflict(op, "Provider subscription is already linked to another subscription")
		}
		return domain.Internal(err, op, "failed to record provider ids")
	}

	s.logger.Info("applied provider subscription event",
		"user_id", event.UserID,
		"plan", planName,
		"provider_subscription_id", event.SubscriptionID,
	)
	return nil
}
