package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/service"
)

// StreakHandler serves check-in, streak and achievement endpoints.
type StreakHandler struct {
	streaks service.StreakService
	logger  *slog.Logger
}

// NewStreakHandler creates a new StreakHandler.
func NewStreakHandler(streaks service.StreakService, logger *slog.Logger) *StreakHandler {
	return &StreakHandler{
		streaks: streaks,
		logger:  logger,
	}
}

// RegisterRoutes registers streak routes on the provided mux.
func (h *StreakHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("POST /api/streak/check-in", requireUser(http.HandlerFunc(h.CheckIn)))
	mux.Handle("GET /api/streak", requireUser(http.HandlerFunc(h.GetStreak)))
	mux.Handle("GET /api/achievements", requireUser(http.HandlerFunc(h.ListAchievements)))
}

func (h *StreakHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.streaks.CheckIn(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *StreakHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	streak, err := h.streaks.GetStreak(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

func (h *StreakHandler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	achievements, err := h.streaks.ListAchievements(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if achievements == nil {
		achievements = []domain.UserAchievement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": achievements})
}
