package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

// GoalService defines operations on financial goals.
type GoalService interface {
	// Create creates a goal and records any milestones its opening balance crosses.
	Create(ctx context.Context, params domain.CreateGoalParams) (*domain.GoalUpdateResult, error)

	// Get retrieves a goal, verifying ownership.
	Get(ctx context.Context, id, userID uuid.UUID) (*domain.FinancialGoal, error)

	// List returns the user's goals. Archived goals are included on request.
	List(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]domain.FinancialGoal, error)

	// Update changes goal fields. Amount changes run milestone and completion checks.
	Update(ctx context.Context, params domain.UpdateGoalParams) (*domain.GoalUpdateResult, error)

	// Contribute adds amount to the goal, then runs milestone and completion checks.
	Contribute(ctx context.Context, id, userID uuid.UUID, amount domain.Money) (*domain.GoalUpdateResult, error)

	// Delete archives the goal. Milestones are kept.
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type goalService struct {
	store         store.Store
	milestones    MilestoneService
	notifications NotificationService
	logger        *slog.Logger
}

// NewGoalService creates a new GoalService.
func NewGoalService(st store.Store, milestones MilestoneService, notifications NotificationService, logger *slog.Logger) GoalService {
	return &goalService{
		store:         st,
		milestones:    milestones,
		notifications: notifications,
		logger:        logger,
	}
}

// Create creates a goal.
func (s *goalService) Create(ctx context.Context, params domain.CreateGoalParams) (*domain.GoalUpdateResult, error) {
	const op = "goal.create"

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, domain.Invalid(op, "Goal name is required")
	}
	if len(name) > 200 {
		return nil, domain.Invalid(op, "Goal name must be 200 characters or fewer")
	}
	if params.TargetAmount <= 0 {
		return nil, domain.Invalid(op, "Target amount must be greater than zero")
	}
	if params.CurrentAmount < 0 {
		return nil, domain.Invalid(op, "Current amount cannot be negative")
	}
	category := params.Category
	if category == "" {
		category = domain.GoalCategorySavings
	}
	if !category.Valid() {
		return nil, domain.Invalid(op, "Unknown goal category")
	}

	goal, err := s.store.CreateGoal(ctx, domain.FinancialGoal{
		UserID:        params.UserID,
		Name:          name,
		Category:      category,
		TargetAmount:  params.TargetAmount,
		CurrentAmount: params.CurrentAmount,
		TargetDate:    params.TargetDate,
		Status:        domain.GoalStatusActive,
	})
	if err != nil {
		s.logger.Error("failed to create goal", "error", err, "op", op)
		return nil, domain.Internal(err, op, "Failed to create goal")
	}
	s.logger.Info("goal created", "goal_id", goal.ID, "user_id", goal.UserID, "category", goal.Category)

	return s.afterAmountChange(ctx, goal)
}

// Get retrieves a goal.
func (s *goalService) Get(ctx context.Context, id, userID uuid.UUID) (*domain.FinancialGoal, error) {
	const op = "goal.get"

	goal, err := s.store.GetGoal(ctx, id, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.NotFound(op, "goal", id.String())
		}
		s.logger.Error("failed to get goal", "error", err, "op", op, "goal_id", id)
		return nil, domain.Internal(err, op, "Failed to retrieve goal")
	}
	return goal, nil
}

// List returns the user's goals.
func (s *goalService) List(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]domain.FinancialGoal, error) {
	const op = "goal.list"

	goals, err := s.store.ListGoals(ctx, userID, includeArchived)
	if err != nil {
		s.logger.Error("failed to list goals", "error", err, "op", op, "user_id", userID)
		return nil, domain.Internal(err, op, "Failed to list goals")
	}
	return goals, nil
}

// Update changes goal fields.
func (s *goalService) Update(ctx context.Context, params domain.UpdateGoalParams) (*domain.GoalUpdateResult, error) {
	const op = "goal.update"

	goal, err := s.Get(ctx, params.ID, params.UserID)
	if err != nil {
		return nil, err
	}
	if goal.Status == domain.GoalStatusArchived {
		return nil, domain.Invalid(op, "Archived goals cannot be edited")
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, domain.Invalid(op, "Goal name is required")
		}
		goal.Name = name
	}
	if params.Category != nil {
		if !params.Category.Valid() {
			return nil, domain.Invalid(op, "Unknown goal category")
		}
		goal.Category = *params.Category
	}
	if params.TargetAmount != nil {
		if *params.TargetAmount <= 0 {
			return nil, domain.Invalid(op, "Target amount must be greater than zero")
		}
		goal.TargetAmount = *params.TargetAmount
	}
	if params.CurrentAmount != nil {
		if *params.CurrentAmount < 0 {
			return nil, domain.Invalid(op, "Current amount cannot be negative")
		}
		goal.CurrentAmount = *params.CurrentAmount
	}
	if params.TargetDate != nil {
		goal.TargetDate = params.TargetDate
	}

	updated, err := s.store.UpdateGoal(ctx, *goal)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.NotFound(op, "goal", params.ID.String())
		}
		return nil, domain.Internal(err, op, "Failed to update goal")
	}

	if params.TargetAmount == nil && params.CurrentAmount == nil {
		return &domain.GoalUpdateResult{Goal: updated, NewMilestones: []domain.GoalMilestone{}}, nil
	}
	return s.afterAmountChange(ctx, updated)
}

// Contribute adds amount to the goal.
func (s *goalService) Contribute(ctx context.Context, id, userID uuid.UUID, amount domain.Money) (*domain.GoalUpdateResult, error) {
	const op = "goal.contribute"

	goal, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := goal.CheckContribution(amount); err != nil {
		return nil, domain.Invalid(op, err.Error())
	}

	updated, err := s.store.AddGoalAmount(ctx, id, userID, amount)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.NotFound(op, "goal", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to update goal amount")
	}

	s.logger.Info("goal contribution recorded", "goal_id", id, "user_id", userID, "amount", amount.String())
	return s.afterAmountChange(ctx, updated)
}

// afterAmountChange records new milestones and runs the completion rule.
// Failures here are logged; the amount change itself already succeeded.
func (s *goalService) afterAmountChange(ctx context.Context, goal *domain.FinancialGoal) (*domain.GoalUpdateResult, error) {
	result := &domain.GoalUpdateResult{Goal: goal}

	ms, err := s.milestones.CheckAndCreateMilestones(ctx, goal.UserID, goal.ID, goal.CurrentAmount, goal.TargetAmount)
	if err != nil {
		s.logger.Error("milestone check failed", "error", err, "goal_id", goal.ID)
	}
	result.NewMilestones = ms
	if result.NewMilestones == nil {
		result.NewMilestones = []domain.GoalMilestone{}
	}

	for _, m := range result.NewMilestones {
		if m.Milestone >= 100 {
			continue
		}
		_, err := s.notifications.Notify(ctx, domain.CreateNotificationParams{
			UserID:   goal.UserID,
			Type:     domain.NotificationMilestoneReached,
			Title:    fmt.Sprintf("%s is %d%% funded", goal.Name, m.Milestone),
			Message:  fmt.Sprintf("You've saved %s of %s.", m.AmountAtMilestone.Display(), goal.TargetAmount.Display()),
			Priority: domain.PriorityLow,
			Metadata: goalMetadata(goal.ID, map[string]any{"milestone": m.Milestone}),
		})
		if err != nil {
			s.logger.Warn("failed to announce milestone", "error", err, "goal_id", goal.ID, "milestone", m.Milestone)
		}
	}

	_, completed, err := s.notifications.EvaluateGoal(ctx, goal)
	if err != nil {
		s.logger.Error("goal completion check failed", "error", err, "goal_id", goal.ID)
	}
	result.Completed = completed
	return result, nil
}

// Delete archives the goal.
func (s *goalService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	const op = "goal.delete"

	if err := s.store.SetGoalStatus(ctx, id, userID, domain.GoalStatusArchived); err != nil {
		if isNotFound(err) {
			return domain.NotFound(op, "goal", id.String())
		}
		return domain.Internal(err, op, "Failed to archive goal")
	}
	s.logger.Info("goal archived", "goal_id", id, "user_id", userID)
	return nil
}
