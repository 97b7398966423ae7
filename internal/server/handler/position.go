package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openfloor/tradedesk/internal/domain"
	"github.com/openfloor/tradedesk/internal/service"
)

// PositionService defines the methods the position handler requires.
type PositionService interface {
	Create(ctx context.Context, actor domain.Actor, in service.CreatePositionInput) (domain.Position, error)
	Get(ctx context.Context, actor domain.Actor, id string) (domain.Position, error)
	RecordFill(ctx context.Context, actor domain.Actor, id string, entries []domain.FillEntry) (domain.Position, error)
	AppendEntries(ctx context.Context, actor domain.Actor, id string, entries []domain.FillEntry) (domain.Position, error)
	RequestTransition(ctx context.Context, actor domain.Actor, id string, target domain.PositionStatus) (domain.Position, error)
	RequestClose(ctx context.Context, actor domain.Actor, id string) (domain.Position, error)
	AcceptClose(ctx context.Context, actor domain.Actor, id string) (domain.Position, error)
	ListAll(ctx context.Context, actor domain.Actor, opts domain.ListOpts) ([]domain.Position, error)
	ListMine(ctx context.Context, actor domain.Actor, opts domain.ListOpts) ([]domain.Position, error)
	ListCloseRequests(ctx context.Context, actor domain.Actor) ([]domain.Position, error)
	ListClosed(ctx context.Context, actor domain.Actor, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionHandler serves the position endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger.With(slog.String("handler", "position")),
	}
}

type createPositionRequest struct {
	Kind       string             `json:"kind"`
	TradeType  string             `json:"trade_type"`
	SpreadType string             `json:"spread_type"`
	Symbol     string             `json:"symbol"`
	Entries    []domain.FillEntry `json:"entries"`
}

// Create opens a new trade or spread for the acting trader.
// POST /api/positions
func (h *PositionHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req createPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	p, err := h.positions.Create(r.Context(), a, service.CreatePositionInput{
		Kind:       domain.PositionKind(req.Kind),
		TradeType:  domain.TradeType(req.TradeType),
		SpreadType: domain.SpreadType(req.SpreadType),
		Symbol:     req.Symbol,
		Entries:    req.Entries,
	})
	if err != nil {
		h.fail(r, "create position", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Get returns one position.
// GET /api/positions/{id}
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	p, err := h.positions.Get(r.Context(), a, r.PathValue("id"))
	if err != nil {
		h.fail(r, "get position", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// List returns positions. Managers get the whole book unless ?mine=true;
// traders always get their own.
// GET /api/positions
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	opts := parseListOpts(r)

	var (
		positions []domain.Position
		err       error
	)
	if a.IsManager && r.URL.Query().Get("mine") != "true" {
		positions, err = h.positions.ListAll(r.Context(), a, opts)
	} else {
		positions, err = h.positions.ListMine(r.Context(), a, opts)
	}
	if err != nil {
		h.fail(r, "list positions", err)
		writeDomainError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

type fillsRequest struct {
	Entries []domain.FillEntry `json:"entries"`
}

// RecordFill replaces the position's entries with updated fill figures.
// PUT /api/positions/{id}/fills
func (h *PositionHandler) RecordFill(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req fillsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	p, err := h.positions.RecordFill(r.Context(), a, r.PathValue("id"), req.Entries)
	if err != nil {
		h.fail(r, "record fill", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AppendEntries adds new fill-request lines to the position.
// POST /api/positions/{id}/entries
func (h *PositionHandler) AppendEntries(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req fillsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	p, err := h.positions.AppendEntries(r.Context(), a, r.PathValue("id"), req.Entries)
	if err != nil {
		h.fail(r, "append entries", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus requests a lifecycle transition.
// POST /api/positions/{id}/status
func (h *PositionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	p, err := h.positions.RequestTransition(r.Context(), a, r.PathValue("id"), domain.PositionStatus(req.Status))
	if err != nil {
		h.fail(r, "update status", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RequestClose records the trader's close request.
// POST /api/positions/{id}/close
func (h *PositionHandler) RequestClose(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	p, err := h.positions.RequestClose(r.Context(), a, r.PathValue("id"))
	if err != nil {
		h.fail(r, "request close", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AcceptClose records the manager accepting a close request.
// POST /api/positions/{id}/accept-close
func (h *PositionHandler) AcceptClose(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	p, err := h.positions.AcceptClose(r.Context(), a, r.PathValue("id"))
	if err != nil {
		h.fail(r, "accept close", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListCloseRequests returns positions awaiting close acceptance.
// GET /api/positions/close-requests
func (h *PositionHandler) ListCloseRequests(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	positions, err := h.positions.ListCloseRequests(r.Context(), a)
	if err != nil {
		h.fail(r, "list close requests", err)
		writeDomainError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// ListClosed returns fully closed positions.
// GET /api/positions/closed
func (h *PositionHandler) ListClosed(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	positions, err := h.positions.ListClosed(r.Context(), a, parseListOpts(r))
	if err != nil {
		h.fail(r, "list closed", err)
		writeDomainError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// fail logs a handler failure. Client errors (validation, permission) log at
// debug; everything else at error.
func (h *PositionHandler) fail(r *http.Request, op string, err error) {
	level := slog.LevelError
	if domain.IsValidation(err) || domain.IsPermission(err) || domain.IsInvalidTransition(err) {
		level = slog.LevelDebug
	}
	h.logger.Log(r.Context(), level, "handler: "+op+" failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
