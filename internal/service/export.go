package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/metrics"
	"github.com/DukeRupert/cairn/internal/storage"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultExportURLTTL is how long a download link stays valid.
const DefaultExportURLTTL = 24 * time.Hour

// ExportService writes a user's data to object storage.
type ExportService interface {
	// ExportUserData assembles every record the user owns into one JSON
	// document, stores it and returns a time-limited download link.
	ExportUserData(ctx context.Context, userID uuid.UUID) (*domain.ExportResult, error)
}

type exportService struct {
	store   store.Store
	storage storage.Storage
	urlTTL  time.Duration
	logger  *slog.Logger
	now     Clock
}

// NewExportService creates a new ExportService.
func NewExportService(st store.Store, objects storage.Storage, urlTTL time.Duration, logger *slog.Logger) ExportService {
	if urlTTL <= 0 {
		urlTTL = DefaultExportURLTTL
	}
	return &exportService{
		store:   st,
		storage: objects,
		urlTTL:  urlTTL,
		logger:  logger,
		now:     systemClock,
	}
}

func (s *exportService) ExportUserData(ctx context.Context, userID uuid.UUID) (*domain.ExportResult, error) {
	const op = "export.user_data"

	archive := domain.UserExport{UserID: userID, GeneratedAt: s.now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		archive.Goals, err = s.store.ListGoals(gctx, userID, true)
		return err
	})
	g.Go(func() (err error) {
		archive.Transactions, err = s.store.ListTransactions(gctx, domain.TransactionFilter{UserID: userID})
		return err
	})
	g.Go(func() (err error) {
		archive.Notifications, err = s.store.ListNotifications(gctx, domain.NotificationFilter{
			UserID:          userID,
			IncludeArchived: true,
		})
		return err
	})
	g.Go(func() error {
		streak, err := s.store.GetStreak(gctx, userID)
		if err != nil && !isNotFound(err) {
			return err
		}
		archive.Streak = streak
		return nil
	})
	g.Go(func() (err error) {
		archive.Achievements, err = s.store.ListAchievements(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		archive.Conversations, err = s.store.ListConversations(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.ExportsTotal.WithLabelValues("error").Inc()
		s.logger.Error("failed to collect export data", "error", err, "op", op, "user_id", userID)
		return nil, domain.Internal(err, op, "Failed to collect account data")
	}

	// Milestones are per goal, so they need the goal list first.
	for _, goal := range archive.Goals {
		ms, err := s.store.ListMilestones(ctx, goal.ID, userID)
		if err != nil {
			metrics.ExportsTotal.WithLabelValues("error").Inc()
			return nil, domain.Internal(err, op, "Failed to collect milestones")
		}
		archive.Milestones = append(archive.Milestones, ms...)
	}

	body, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("error").Inc()
		return nil, domain.Internal(err, op, "Failed to encode export")
	}

	key := storage.ExportKey(userID)
	if err := s.storage.Put(ctx, key, bytes.NewReader(body), storage.PutOptions{
		ContentType: "application/json",
	}); err != nil {
		metrics.ExportsTotal.WithLabelValues("error").Inc()
		s.logger.Error("failed to store export", "error", err, "op", op, "key", key)
		return nil, domain.Internal(err, op, "Failed to store export")
	}

	url, err := s.storage.URL(ctx, key, s.urlTTL)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("error").Inc()
		return nil, domain.Internal(err, op, "Failed to create download link")
	}

	metrics.ExportsTotal.WithLabelValues("success").Inc()
	s.logger.Info("user data exported", "user_id", userID, "key", key, "bytes", len(body))
	return &domain.ExportResult{
		Key:       key,
		URL:       url,
		Size:      int64(len(body)),
		ExpiresAt: s.now().Add(s.urlTTL),
	}, nil
}
