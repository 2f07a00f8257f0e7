package service

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/metrics"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

// MilestoneService records goal progress thresholds.
type MilestoneService interface {
	// CheckAndCreateMilestones records every threshold the goal has crossed and
	// returns only the milestones created by this call. Thresholds that already
	// exist are skipped silently.
	CheckAndCreateMilestones(ctx context.Context, userID, goalID uuid.UUID, current, target domain.Money) ([]domain.GoalMilestone, error)

	// List returns a goal's milestones.
	List(ctx context.Context, goalID, userID uuid.UUID) ([]domain.GoalMilestone, error)

	// ListUnseen returns milestones the user has not acknowledged.
	ListUnseen(ctx context.Context, userID uuid.UUID) ([]domain.GoalMilestone, error)

	// MarkSeen acknowledges milestones and returns how many changed.
	MarkSeen(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

type milestoneService struct {
	store  store.Store
	logger *slog.Logger
	now    Clock
}

// NewMilestoneService creates a new MilestoneService.
func NewMilestoneService(st store.Store, logger *slog.Logger) MilestoneService {
	return &milestoneService{
		store:  st,
		logger: logger,
		now:    systemClock,
	}
}

func (s *milestoneService) CheckAndCreateMilestones(ctx context.Context, userID, goalID uuid.UUID, current, target domain.Money) ([]domain.GoalMilestone, error) {
	const op = "milestone.check_and_create"

	created := []domain.GoalMilestone{}
	for _, threshold := range domain.CrossedThresholds(current, target) {
		m := domain.GoalMilestone{
			ID:                uuid.New(),
			GoalID:            goalID,
			UserID:            userID,
			Milestone:         threshold,
			AmountAtMilestone: current,
			CreatedAt:         s.now(),
		}
		inserted, err := s.store.InsertMilestone(ctx, m)
		if err != nil {
			// One failed threshold must not block the higher ones.
			s.logger.Error("failed to insert milestone",
				"error", err,
				"op", op,
				"goal_id", goalID,
				"milestone", threshold,
			)
			continue
		}
		if !inserted {
			continue
		}

		metrics.MilestoneReached(threshold)
		s.logger.Info("milestone reached", "user_id", userID, "goal_id", goalID, "milestone", threshold)
		created = append(created, m)
	}
	return created, nil
}

func (s *milestoneService) List(ctx context.Context, goalID, userID uuid.UUID) ([]domain.GoalMilestone, error) {
	const op = "milestone.list"

	ms, err := s.store.ListMilestones(ctx, goalID, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list milestones")
	}
	return ms, nil
}

func (s *milestoneService) ListUnseen(ctx context.Context, userID uuid.UUID) ([]domain.GoalMilestone, error) {
	const op = "milestone.list_unseen"

	ms, err := s.store.ListUnseenMilestones(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list milestones")
	}
	return ms, nil
}

func (s *milestoneService) MarkSeen(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	const op = "milestone.mark_seen"

	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.store.MarkMilestonesSeen(ctx, userID, ids)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to mark milestones seen")
	}
	return n, nil
}
