package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openfloor/tradedesk/internal/domain"
	"github.com/openfloor/tradedesk/internal/service"
)

// ExitService defines the methods the exit handler requires.
type ExitService interface {
	CreateExits(ctx context.Context, actor domain.Actor, positionID string, reqs []service.ExitRequest) ([]domain.Exit, error)
	UpdateExit(ctx context.Context, actor domain.Actor, exitID string, in service.UpdateExitInput) (domain.Exit, error)
	ListByPosition(ctx context.Context, actor domain.Actor, positionID string) ([]domain.Exit, error)
	OpenBook(ctx context.Context, actor domain.Actor) ([]service.PositionWithExits, error)
}

// ExitHandler serves the exit sub-ledger endpoints.
type ExitHandler struct {
	exits  ExitService
	logger *slog.Logger
}

// NewExitHandler creates an ExitHandler with the given service and logger.
func NewExitHandler(exits ExitService, logger *slog.Logger) *ExitHandler {
	return &ExitHandler{
		exits:  exits,
		logger: logger.With(slog.String("handler", "exit")),
	}
}

type createExitsRequest struct {
	Exits []service.ExitRequest `json:"exits"`
}

type exitsResponse struct {
	Exits []domain.Exit `json:"exits"`
}

// Create opens one or more exits against a position.
// POST /api/positions/{id}/exits
func (h *ExitHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req createExitsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	exits, err := h.exits.CreateExits(r.Context(), a, r.PathValue("id"), req.Exits)
	if err != nil {
		h.fail(r, "create exits", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exitsResponse{Exits: exits})
}

// ListByPosition returns a position's exits.
// GET /api/positions/{id}/exits
func (h *ExitHandler) ListByPosition(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	exits, err := h.exits.ListByPosition(r.Context(), a, r.PathValue("id"))
	if err != nil {
		h.fail(r, "list exits", err)
		writeDomainError(w, err)
		return
	}
	if exits == nil {
		exits = []domain.Exit{}
	}
	writeJSON(w, http.StatusOK, exitsResponse{Exits: exits})
}

type updateExitRequest struct {
	ExitStatus   string   `json:"exit_status"`
	ReceivedLots *int     `json:"received_lots"`
	ExitPrice    *float64 `json:"exit_price"`
}

// Update applies a status or fill update to an exit.
// PUT /api/exits/{id}
func (h *ExitHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req updateExitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	e, err := h.exits.UpdateExit(r.Context(), a, r.PathValue("id"), service.UpdateExitInput{
		Target:       domain.ExitStatus(req.ExitStatus),
		ReceivedLots: req.ReceivedLots,
		ExitPrice:    req.ExitPrice,
	})
	if err != nil {
		h.fail(r, "update exit", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type openBookResponse struct {
	Positions []service.PositionWithExits `json:"positions"`
}

// OpenBook returns open positions and their exits, scoped by role.
// GET /api/openbook
func (h *ExitHandler) OpenBook(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	book, err := h.exits.OpenBook(r.Context(), a)
	if err != nil {
		h.fail(r, "open book", err)
		writeDomainError(w, err)
		return
	}
	if book == nil {
		book = []service.PositionWithExits{}
	}
	writeJSON(w, http.StatusOK, openBookResponse{Positions: book})
}

func (h *ExitHandler) fail(r *http.Request, op string, err error) {
	level := slog.LevelError
	if domain.IsValidation(err) || domain.IsPermission(err) || domain.IsInvalidTransition(err) {
		level = slog.LevelDebug
	}
	h.logger.Log(r.Context(), level, "handler: "+op+" failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
