package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/service"
)

// ChatHandler serves AI chat and the quota-metered financial health insight.
type ChatHandler struct {
	chat   service.ChatService
	health service.HealthService
	logger *slog.Logger

	// aiLimit guards routes that call a model or meter insights.
	aiLimit Middleware
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chat service.ChatService, health service.HealthService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chat:    chat,
		health:  health,
		logger:  logger,
		aiLimit: func(next http.Handler) http.Handler { return next },
	}
}

// WithAILimit wraps the model-backed routes in mw, inside requireUser.
func (h *ChatHandler) WithAILimit(mw Middleware) *ChatHandler {
	h.aiLimit = mw
	return h
}

// RegisterRoutes registers chat routes on the provided mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("GET /api/chat/conversations", requireUser(http.HandlerFunc(h.ListConversations)))
	mux.Handle("POST /api/chat/conversations", requireUser(http.HandlerFunc(h.CreateConversation)))
	mux.Handle("GET /api/chat/conversations/{id}/messages", requireUser(http.HandlerFunc(h.ListMessages)))
	mux.Handle("POST /api/chat/conversations/{id}/messages", requireUser(h.aiLimit(http.HandlerFunc(h.SendMessage))))
	mux.Handle("GET /api/insights/health", requireUser(h.aiLimit(http.HandlerFunc(h.HealthScore))))
}

// ConversationRequest is the body for starting a conversation.
type ConversationRequest struct {
	Title string `json:"title"`
}

// MessageRequest is the body for sending a chat message.
type MessageRequest struct {
	Content      string           `json:"content"`
	ModelTier    domain.ModelTier `json:"model_tier"`
	DeepAnalysis bool             `json:"deep_analysis"`
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	cs, err := h.chat.ListConversations(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if cs == nil {
		cs = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": cs})
}

func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	var req ConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	c, err := h.chat.CreateConversation(r.Context(), userID, req.Title)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListMessages returns the latest messages of a conversation, oldest first.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	msgs, err := h.chat.ListMessages(r.Context(), id, userID, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// SendMessage asks the assistant. A 402 with upgrade_required is returned
// when the chat, deep analysis or model tier quota is exhausted.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.chat.SendMessage(r.Context(), domain.SendMessageParams{
		UserID:         userID,
		ConversationID: id,
		Content:        req.Content,
		ModelTier:      req.ModelTier,
		DeepAnalysis:   req.DeepAnalysis,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HealthScore computes the caller's financial health score. Each call
// consumes one insight.
func (h *ChatHandler) HealthScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	score, err := h.health.HealthScore(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}
