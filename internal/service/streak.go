package service

import (
	"context"
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

// StreakService tracks daily check-ins and the achievements they unlock.
type StreakService interface {
	// CheckIn records activity for today in the service's timezone.
	// A second check-in on the same local day changes nothing.
	CheckIn(ctx context.Context, userID uuid.UUID) (*domain.CheckInResult, error)

	// GetStreak returns the user's streak, zero-valued if they never checked in.
	GetStreak(ctx context.Context, userID uuid.UUID) (*domain.UserStreak, error)

	// ListAchievements returns progress on every achievement the user has touched.
	ListAchievements(ctx context.Context, userID uuid.UUID) ([]domain.UserAchievement, error)
}

// =============================================================================
// Implementation
// =============================================================================

type streakService struct {
	store    store.Store
	notifier Notifier
	loc      *time.Location
	logger   *slog.Logger
	now      Clock
}

// NewStreakService creates a new StreakService. Days are counted in loc.
// notifier may be nil.
func NewStreakService(st store.Store, notifier Notifier, loc *time.Location, logger *slog.Logger) StreakService {
	if loc == nil {
		loc = time.UTC
	}
	return &streakService{
		store:    st,
		notifier: notifier,
		loc:      loc,
		logger:   logger,
		now:      systemClock,
	}
}

// CheckIn records activity for today.
func (s *streakService) CheckIn(ctx context.Context, userID uuid.UUID) (*domain.CheckInResult, error) {
	const op = "streak.check_in"

	prev, err := s.store.GetStreak(ctx, userID)
	if err != nil && !isNotFound(err) {
		return nil, domain.Internal(err, op, "failed to load streak")
	}

	now := s.now()
	next, changed, reset := domain.ApplyCheckIn(prev, userID, now, s.loc)
	result := &domain.CheckInResult{
		NewStreak:       next.CurrentStreak,
		Streak:          next,
		NewAchievements: []string{},
	}
	if !changed {
		metrics.CheckedIn("same_day")
		return result, nil
	}

	if err := s.store.SaveStreak(ctx, next); err != nil {
		return nil, domain.Internal(err, op, "failed to save streak")
	}

	result.StreakReset = reset
	result.StreakIncreased = !reset
	switch {
	case reset:
		metrics.CheckedIn("reset")
	default:
		metrics.CheckedIn("increased")
	}

	unlocked, err := s.checkAndUnlockAchievements(ctx, userID, next.CurrentStreak, now)
	if err != nil {
		// The check-in itself is already saved.
		s.logger.Error("failed to update achievements", "error", err, "op", op, "user_id", userID)
	}
	result.NewAchievements = unlocked

	s.logger.Debug("checked in",
		"user_id", userID,
		"streak", next.CurrentStreak,
		"reset", reset,
		"unlocked", len(unlocked),
	)
	return result, nil
}

// checkAndUnlockAchievements writes progress toward each streak achievement and
// returns the IDs unlocked by this call. Earned rows are left untouched.
func (s *streakService) checkAndUnlockAchievements(ctx context.Context, userID uuid.UUID, streak int, now time.Time) ([]string, error) {
	unlocked := []string{}
	for _, def := range domain.StreakAchievements {
		existing, err := s.store.GetAchievement(ctx, userID, def.ID)
		if err != nil && !isNotFound(err) {
			return unlocked, err
		}
		if existing != nil && existing.Earned() {
			continue
		}

		a := domain.UserAchievement{
			UserID:        userID,
			AchievementID: def.ID,
			Progress:      min(streak, def.Target),
			Target:        def.Target,
		}
		// Truncated so the comparison below survives a database round trip.
		earnedAt := now.Truncate(time.Microsecond)
		if streak >= def.Target {
			a.EarnedAt = &earnedAt
		}

		stored, err := s.store.UpsertAchievement(ctx, a)
		if err != nil {
			return unlocked, err
		}
		if a.EarnedAt == nil || stored.EarnedAt == nil || !stored.EarnedAt.Equal(earnedAt) {
			continue
		}

		unlocked = append(unlocked, def.ID)
		metrics.AchievementUnlocked(def.ID)
		s.logger.Info("achievement unlocked", "user_id", userID, "achievement", def.ID)
		s.announce(ctx, userID, def)
	}
	return unlocked, nil
}

func (s *streakService) announce(ctx context.Context, userID uuid.UUID, def domain.AchievementDef) {
	if s.notifier == nil {
		return
	}
	_, err := s.notifier.Notify(ctx, domain.CreateNotificationParams{
		UserID:   userID,
		Type:     domain.NotificationAchievementUnlocked,
		Title:    "Achievement unlocked: " + def.Title,
		Message:  def.Description + ".",
		Priority: domain.PriorityLow,
		Metadata: mustJSON(map[string]any{"achievement_id": def.ID}),
	})
	if err != nil {
		s.logger.Warn("failed to announce achievement", "error", err, "user_id", userID, "achievement", def.ID)
	}
}

// GetStreak returns the user's streak.
func (s *streakService) GetStreak(ctx context.Context, userID uuid.UUID) (*domain.UserStreak, error) {
	const op = "streak.get"

	streak, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return &domain.UserStreak{UserID: userID}, nil
		}
		return nil, domain.Internal(err, op, "failed to load streak")
	}
	return streak, nil
}

// ListAchievements returns the user's achievement progress.
func (s *streakService) ListAchievements(ctx context.Context, userID uuid.UUID) ([]domain.UserAchievement, error) {
	const op = "streak.list_achievements"

	achievements, err := s.store.ListAchievements(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list achievements")
	}
	return achievements, nil
}
