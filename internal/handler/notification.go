package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/service"
)

// NotificationHandler serves the notification inbox and the on-demand smart
// notification run.
type NotificationHandler struct {
	notifications service.NotificationService
	logger        *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger,
	}
}

// RegisterRoutes registers notification routes on the provided mux.
func (h *NotificationHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("GET /api/notifications", requireUser(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/notifications/generate", requireUser(http.HandlerFunc(h.Generate)))
	mux.Handle("POST /api/notifications/read-all", requireUser(http.HandlerFunc(h.MarkAllRead)))
	mux.Handle("POST /api/notifications/{id}/read", requireUser(http.HandlerFunc(h.MarkRead)))
	mux.Handle("POST /api/notifications/{id}/archive", requireUser(http.HandlerFunc(h.Archive)))
}

// List returns the inbox newest first with the unread count.
//
// Query parameters: unread, archived, limit.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	ns, err := h.notifications.List(r.Context(), domain.NotificationFilter{
		UserID:          userID,
		UnreadOnly:      queryBool(r, "unread"),
		IncludeArchived: queryBool(r, "archived"),
		Limit:           limit,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	unread, err := h.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if ns == nil {
		ns = []domain.Notification{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": ns,
		"unread_count":  unread,
	})
}

// Generate runs the smart notification rules for the caller.
func (h *NotificationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.notifications.GenerateSmartNotifications(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if res.Created == nil {
		res.Created = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.notifications.MarkRead(r.Context(), id, userID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	n, err := h.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *NotificationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.notifications.Archive(r.Context(), id, userID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
