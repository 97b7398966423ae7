package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openfloor/tradedesk/internal/domain"
)

// Exporter uploads a bulk export of closed positions to blob storage.
type Exporter interface {
	ExportClosed(ctx context.Context, positions []domain.Position) (string, error)
}

// ArchiveHandler serves the manager-only export endpoint.
type ArchiveHandler struct {
	positions PositionService
	exporter  Exporter
	logger    *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. exporter may be nil when blob
// storage is not configured; the endpoint then answers 503.
func NewArchiveHandler(positions PositionService, exporter Exporter, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		positions: positions,
		exporter:  exporter,
		logger:    logger.With(slog.String("handler", "archive")),
	}
}

// Export uploads every closed position as one bulk object and returns its key.
// POST /api/archive/export
func (h *ArchiveHandler) Export(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if h.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage not configured")
		return
	}

	positions, err := h.positions.ListClosed(r.Context(), a, domain.ListOpts{})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	key, err := h.exporter.ExportClosed(r.Context(), positions)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: export failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"key":   key,
		"count": len(positions),
	})
}
