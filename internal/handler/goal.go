package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/service"
	"github.com/google/uuid"
)

// GoalHandler serves goal and milestone endpoints.
type GoalHandler struct {
	goals      service.GoalService
	milestones service.MilestoneService
	logger     *slog.Logger
}

// NewGoalHandler creates a new GoalHandler.
func NewGoalHandler(goals service.GoalService, milestones service.MilestoneService, logger *slog.Logger) *GoalHandler {
	return &GoalHandler{
		goals:      goals,
		milestones: milestones,
		logger:     logger,
	}
}

// RegisterRoutes registers goal routes on the provided mux.
func (h *GoalHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("GET /api/goals", requireUser(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/goals", requireUser(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/goals/{id}", requireUser(http.HandlerFunc(h.Get)))
	mux.Handle("PATCH /api/goals/{id}", requireUser(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/goals/{id}", requireUser(http.HandlerFunc(h.Delete)))
	mux.Handle("POST /api/goals/{id}/contributions", requireUser(http.HandlerFunc(h.Contribute)))
	mux.Handle("GET /api/goals/{id}/milestones", requireUser(http.HandlerFunc(h.ListMilestones)))
	mux.Handle("POST /api/milestones/seen", requireUser(http.HandlerFunc(h.MarkMilestonesSeen)))
}

// GoalRequest is the body for creating or updating a goal. On update, absent
// fields are left unchanged.
type GoalRequest struct {
	Name          *string              `json:"name"`
	Category      *domain.GoalCategory `json:"category"`
	TargetAmount  *domain.Money        `json:"target_amount"`
	CurrentAmount *domain.Money        `json:"current_amount"`
	TargetDate    *time.Time           `json:"target_date"`
}

func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	goals, err := h.goals.List(r.Context(), userID, queryBool(r, "include_archived"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if goals == nil {
		goals = []domain.FinancialGoal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
}

func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	var req GoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := domain.CreateGoalParams{
		UserID:     userID,
		TargetDate: req.TargetDate,
	}
	if req.Name != nil {
		params.Name = *req.Name
	}
	if req.Category != nil {
		params.Category = *req.Category
	}
	if req.TargetAmount != nil {
		params.TargetAmount = *req.TargetAmount
	}
	if req.CurrentAmount != nil {
		params.CurrentAmount = *req.CurrentAmount
	}

	res, err := h.goals.Create(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	goal, err := h.goals.Get(r.Context(), id, userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req GoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.goals.Update(r.Context(), domain.UpdateGoalParams{
		ID:            id,
		UserID:        userID,
		Name:          req.Name,
		Category:      req.Category,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    req.TargetDate,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Delete archives the goal.
func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.goals.Delete(r.Context(), id, userID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContributionRequest moves money into (positive) or out of (negative) a goal.
type ContributionRequest struct {
	Amount domain.Money `json:"amount"`
}

func (h *GoalHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req ContributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.goals.Contribute(r.Context(), id, userID, req.Amount)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *GoalHandler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	milestones, err := h.milestones.List(r.Context(), id, userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if milestones == nil {
		milestones = []domain.GoalMilestone{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"milestones": milestones})
}

// MarkSeenRequest lists milestone IDs the client has displayed.
type MarkSeenRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

func (h *GoalHandler) MarkMilestonesSeen(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	var req MarkSeenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	n, err := h.milestones.MarkSeen(r.Context(), userID, req.IDs)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
