package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/cairn/internal/service"
)

// ExportHandler serves the personal data export.
type ExportHandler struct {
	exports service.ExportService
	logger  *slog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exports service.ExportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		exports: exports,
		logger:  logger,
	}
}

// RegisterRoutes registers export routes on the provided mux.
func (h *ExportHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("POST /api/export", requireUser(http.HandlerFunc(h.Export)))
}

// Export writes the caller's data archive and returns a time-limited link.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.exports.ExportUserData(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
