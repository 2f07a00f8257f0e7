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

// Notifier creates a single notification.
type Notifier interface {
	Notify(ctx context.Context, params domain.CreateNotificationParams) (*domain.Notification, error)
}

// NotificationService generates and manages user notifications.
type NotificationService interface {
	Notifier

	// GenerateSmartNotifications runs every rule for the user. A failing rule
	// is logged and reported in the result; the remaining rules still run.
	GenerateSmartNotifications(ctx context.Context, userID uuid.UUID) (*domain.GenerateResult, error)

	// CheckBudgetWarning runs the budget rule alone. Returns nil when nothing was sent.
	CheckBudgetWarning(ctx context.Context, userID uuid.UUID) (*domain.Notification, error)

	// EvaluateGoal runs the completion rule for one goal. A goal at or past its
	// target is marked completed and completed is true.
	EvaluateGoal(ctx context.Context, goal *domain.FinancialGoal) (n *domain.Notification, completed bool, err error)

	List(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Archive(ctx context.Context, id, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// =============================================================================
// Implementation
// =============================================================================

type notificationService struct {
	store  store.Store
	loc    *time.Location
	logger *slog.Logger
	now    Clock
}

// NewNotificationService creates a new NotificationService. Calendar-day
// rules are evaluated in loc.
func NewNotificationService(st store.Store, loc *time.Location, logger *slog.Logger) NotificationService {
	if loc == nil {
		loc = time.UTC
	}
	return &notificationService{
		store:  st,
		loc:    loc,
		logger: logger,
		now:    systemClock,
	}
}

// Notify creates a single notification.
func (s *notificationService) Notify(ctx context.Context, params domain.CreateNotificationParams) (*domain.Notification, error) {
	const op = "notification.notify"

	if params.UserID == uuid.Nil || params.Type == "" || params.Title == "" {
		return nil, domain.Invalid(op, "user, type and title are required")
	}
	priority := params.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}

	n, err := s.store.CreateNotification(ctx, domain.Notification{
		ID:        uuid.New(),
		UserID:    params.UserID,
		Type:      params.Type,
		Title:     params.Title,
		Message:   params.Message,
		Priority:  priority,
		Metadata:  params.Metadata,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create notification")
	}

	metrics.NotificationCreated(n.Type)
	s.logger.Debug("notification created", "user_id", n.UserID, "type", n.Type, "priority", n.Priority)
	return n, nil
}

// GenerateSmartNotifications runs the full rule battery.
func (s *notificationService) GenerateSmartNotifications(ctx context.Context, userID uuid.UUID) (*domain.GenerateResult, error) {
	const op = "notification.generate"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user is required")
	}

	result := &domain.GenerateResult{Created: []domain.Notification{}}
	for _, r := range s.rules() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		created, err := r.run(ctx, userID)
		if err != nil {
			s.logger.Error("notification rule failed", "error", err, "op", op, "rule", r.name, "user_id", userID)
			metrics.NotificationRuleFailed(r.name)
			result.Failed = append(result.Failed, r.name)
			continue
		}
		result.Created = append(result.Created, created...)
	}

	s.logger.Info("smart notifications generated",
		"user_id", userID,
		"created", len(result.Created),
		"failed", len(result.Failed),
	)
	return result, nil
}

func (s *notificationService) List(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, error) {
	const op = "notification.list"

	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	ns, err := s.store.ListNotifications(ctx, filter)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list notifications")
	}
	return ns, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	const op = "notification.mark_read"

	if err := s.store.MarkNotificationRead(ctx, id, userID); err != nil {
		if isNotFound(err) {
			return domain.NotFound(op, "notification", id.String())
		}
		return domain.Internal(err, op, "failed to mark notification read")
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "notification.mark_all_read"

	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to mark notifications read")
	}
	return n, nil
}

func (s *notificationService) Archive(ctx context.Context, id, userID uuid.UUID) error {
	const op = "notification.archive"

	if err := s.store.ArchiveNotification(ctx, id, userID); err != nil {
		if isNotFound(err) {
			return domain.NotFound(op, "notification", id.String())
		}
		return domain.Internal(err, op, "failed to archive notification")
	}
	return nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "notification.unread_count"

	n, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to count notifications")
	}
	return n, nil
}
