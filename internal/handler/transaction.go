package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/service"
	"github.com/google/uuid"
)

// TransactionHandler serves transaction endpoints.
type TransactionHandler struct {
	transactions service.TransactionService
	logger       *slog.Logger
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactions service.TransactionService, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactions: transactions,
		logger:       logger,
	}
}

// RegisterRoutes registers transaction routes on the provided mux.
func (h *TransactionHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("GET /api/transactions", requireUser(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/transactions", requireUser(http.HandlerFunc(h.Create)))
}

// TransactionRequest is the body for recording a transaction.
type TransactionRequest struct {
	Kind        domain.TransactionKind `json:"kind"`
	Amount      domain.Money           `json:"amount"`
	Currency    string                 `json:"currency"`
	GoalID      *uuid.UUID             `json:"goal_id"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	OccurredAt  *time.Time             `json:"occurred_at"`
}

// Create records a transaction and reports its side effects: goal progress,
// the streak check-in and any budget warning.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	var req TransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := domain.CreateTransactionParams{
		UserID:      userID,
		GoalID:      req.GoalID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
	}
	if req.OccurredAt != nil {
		params.OccurredAt = *req.OccurredAt
	}

	res, err := h.transactions.Create(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// List returns the caller's transactions, newest first.
//
// Query parameters: kind, from and to (RFC 3339, to is exclusive), limit.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	filter := domain.TransactionFilter{
		UserID: userID,
		Kind:   domain.TransactionKind(r.URL.Query().Get("kind")),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if filter.From, err = queryTime(r, "from"); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if filter.To, err = queryTime(r, "to"); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	txs, err := h.transactions.List(r.Context(), filter)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError("", name, "must be an RFC 3339 timestamp")
	}
	return t, nil
}
