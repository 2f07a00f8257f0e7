package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/cairn/internal/service"
)

// GroupHandler serves shared group and invite endpoints.
type GroupHandler struct {
	groups service.GroupService
	logger *slog.Logger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groups service.GroupService, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{
		groups: groups,
		logger: logger,
	}
}

// RegisterRoutes registers group routes on the provided mux.
func (h *GroupHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("POST /api/groups", requireUser(http.HandlerFunc(h.CreateGroup)))
	mux.Handle("GET /api/groups/{id}/members", requireUser(http.HandlerFunc(h.ListMembers)))
	mux.Handle("POST /api/groups/{id}/invites", requireUser(http.HandlerFunc(h.Invite)))
	mux.Handle("POST /api/invites/{code}/accept", requireUser(http.HandlerFunc(h.AcceptInvite)))
}

// GroupRequest is the body for creating a group.
type GroupRequest struct {
	Name string `json:"name"`
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	var req GroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	g, err := h.groups.CreateGroup(r.Context(), userID, req.Name)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	members, err := h.groups.ListMembers(r.Context(), id, userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// Invite issues a single-use invite code. Only the group owner may invite.
func (h *GroupHandler) Invite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	inv, err := h.groups.Invite(r.Context(), id, userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// AcceptInvite consumes an invite code. A code that was already used or has
// expired answers 410 Gone.
func (h *GroupHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	inv, err := h.groups.AcceptInvite(r.Context(), r.PathValue("code"), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
