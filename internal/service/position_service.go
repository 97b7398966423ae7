// Package service implements the public mutation operations of the trade
// desk: position and exit lifecycle changes, executed inside per-entity
// transaction scopes with change events published after commit.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openfloor/tradedesk/internal/domain"
	"github.com/openfloor/tradedesk/internal/ledger"
	"github.com/openfloor/tradedesk/internal/lifecycle"
)

// lockTTL bounds how long a per-position mutation lock may be held. A
// request that exceeds this has long since failed its own HTTP deadline.
const lockTTL = 10 * time.Second

// Alerter delivers operator notifications. Satisfied by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Archiver snapshots a closed position and its exit history to blob storage.
type Archiver interface {
	ArchivePosition(ctx context.Context, p domain.Position, exits []domain.Exit) error
}

// PositionService owns the position side of the lifecycle: creation, fill
// updates, status transitions, and the two-phase close.
type PositionService struct {
	tx       domain.TxRunner
	locks    domain.LockManager
	bus      domain.SignalBus
	alerts   Alerter
	archiver Archiver
	logger   *slog.Logger
}

// NewPositionService creates a PositionService. alerts and archiver may be
// nil; both are best-effort side channels.
func NewPositionService(
	tx domain.TxRunner,
	locks domain.LockManager,
	bus domain.SignalBus,
	alerts Alerter,
	archiver Archiver,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		tx:       tx,
		locks:    locks,
		bus:      bus,
		alerts:   alerts,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "position_service")),
	}
}

// CreatePositionInput carries the fields a trader supplies when requesting a
// new trade or spread.
type CreatePositionInput struct {
	Kind       domain.PositionKind
	TradeType  domain.TradeType
	SpreadType domain.SpreadType
	Symbol     string
	Entries    []domain.FillEntry
}

// Create validates and stores a new position owned by the acting trader.
// New positions always start pending.
func (s *PositionService) Create(ctx context.Context, actor domain.Actor, in CreatePositionInput) (domain.Position, error) {
	if err := validateCreate(in); err != nil {
		return domain.Position{}, err
	}

	now := time.Now().UTC()
	p := domain.Position{
		ID:         uuid.New().String(),
		Kind:       in.Kind,
		TradeType:  in.TradeType,
		SpreadType: in.SpreadType,
		Symbol:     in.Symbol,
		TraderID:   actor.ID,
		Entries:    in.Entries,
		Status:     domain.StatusPending,
		CreatedAt:  now,
	}
	ledger.Recompute(&p)

	err := s.tx.WithinTx(ctx, func(st domain.Stores) error {
		if err := st.Positions.Create(ctx, p); err != nil {
			return err
		}
		return st.Audit.Log(ctx, "position_created", map[string]any{
			"position_id": p.ID,
			"kind":        string(p.Kind),
			"trade_type":  string(p.TradeType),
			"symbol":      p.Symbol,
			"trader_id":   p.TraderID,
		})
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: create: %w", err)
	}

	s.publishPosition(ctx, p)
	return p, nil
}

func validateCreate(in CreatePositionInput) error {
	if in.Symbol == "" {
		return domain.Validationf("symbol", "is required")
	}
	if in.TradeType != domain.TradeTypeLong && in.TradeType != domain.TradeTypeShort {
		return domain.Validationf("trade_type", "must be long or short")
	}
	if err := ledger.ValidateEntries(in.Entries); err != nil {
		return err
	}

	switch in.Kind {
	case domain.KindTrade:
		// Single-contract trade; leg labels are ignored.
	case domain.KindSpread:
		legs := make(map[string]bool)
		for _, e := range in.Entries {
			if e.Leg == "" {
				return domain.Validationf("entries", "spread entries must carry a leg label")
			}
			legs[e.Leg] = true
		}
		switch in.SpreadType {
		case domain.SpreadTypeFly:
			if len(legs) != 2 {
				return domain.Validationf("spread_type", "fly spread must have exactly 2 legs, got %d", len(legs))
			}
		case domain.SpreadTypeCustom:
			if len(legs) < 3 {
				return domain.Validationf("spread_type", "custom spread must have 3 or more legs, got %d", len(legs))
			}
		default:
			return domain.Validationf("spread_type", "must be fly or custom")
		}
	default:
		return domain.Validationf("kind", "must be trade or spread")
	}
	return nil
}

// RecordFill replaces a position's entry collection, recomputes the derived
// totals, advances the fill status, and reprices every live exit against the
// new average price — all inside one transaction.
func (s *PositionService) RecordFill(ctx context.Context, actor domain.Actor, positionID string, entries []domain.FillEntry) (domain.Position, error) {
	if err := ledger.ValidateEntries(entries); err != nil {
		return domain.Position{}, err
	}

	unlock, err := s.lockPosition(ctx, positionID)
	if err != nil {
		return domain.Position{}, err
	}
	defer unlock()

	var (
		p        domain.Position
		repriced []domain.Exit
	)
	now := time.Now().UTC()
	err = s.tx.WithinTx(ctx, func(st domain.Stores) error {
		var err error
		p, err = st.Positions.GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}
		if p.TraderID != actor.ID && !actor.IsManager {
			return &domain.PermissionError{Action: "update another trader's fills"}
		}
		if !lifecycle.CanRecordFill(&p) {
			return domain.Validationf("status", "cannot update fills in status %q", p.Status)
		}

		p.Entries = entries
		ledger.Recompute(&p)

		_, received, err := st.Exits.LiveLots(ctx, p.ID)
		if err != nil {
			return err
		}
		if received > p.TotalFilledLots {
			return domain.Validationf("entries", "filled lots (%d) cannot drop below lots already exited (%d)", p.TotalFilledLots, received)
		}

		lifecycle.AdvanceFromFills(&p, now)
		if err := st.Positions.Update(ctx, p); err != nil {
			return err
		}

		repriced, err = s.repriceExits(ctx, st, p)
		if err != nil {
			return err
		}
		return st.Audit.Log(ctx, "position_fills_updated", map[string]any{
			"position_id":       p.ID,
			"total_filled_lots": p.TotalFilledLots,
			"avg_price":         p.AvgPrice,
			"status":            string(p.Status),
		})
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: record fill %q: %w", positionID, err)
	}

	s.publishPosition(ctx, p)
	for _, e := range repriced {
		s.publishExit(ctx, e)
	}
	return p, nil
}

// AppendEntries adds new fill-request lines to a position. A fully-filled
// position drops back to partial since the new lots are unfilled.
func (s *PositionService) AppendEntries(ctx context.Context, actor domain.Actor, positionID string, entries []domain.FillEntry) (domain.Position, error) {
	if err := ledger.ValidateEntries(entries); err != nil {
		return domain.Position{}, err
	}

	unlock, err := s.lockPosition(ctx, positionID)
	if err != nil {
		return domain.Position{}, err
	}
	defer unlock()

	var (
		p        domain.Position
		repriced []domain.Exit
	)
	err = s.tx.WithinTx(ctx, func(st domain.Stores) error {
		var err error
		p, err = st.Positions.GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}
		if p.TraderID != actor.ID {
			return &domain.PermissionError{Action: "add lots to another trader's position"}
		}

		p.Entries = append(p.Entries, entries...)
		ledger.Recompute(&p)
		lifecycle.DemoteOnAppend(&p)

		if err := st.Positions.Update(ctx, p); err != nil {
			return err
		}
		repriced, err = s.repriceExits(ctx, st, p)
		if err != nil {
			return err
		}
		return st.Audit.Log(ctx, "position_entries_added", map[string]any{
			"position_id": p.ID,
			"added":       len(entries),
		})
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: append entries %q: %w", positionID, err)
	}

	s.publishPosition(ctx, p)
	for _, e := range repriced {
		s.publishExit(ctx, e)
	}
	return p, nil
}

// RequestTransition applies a requested status change through the lifecycle
// state machine.
func (s *PositionService) RequestTransition(ctx context.Context, actor domain.Actor, positionID string, target domain.PositionStatus) (domain.Position, error) {
	unlock, err := s.lockPosition(ctx, positionID)
	if err != nil {
		return domain.Position{}, err
	}
	defer unlock()

	var p domain.Position
	now := time.Now().UTC()
	err = s.tx.WithinTx(ctx, func(st domain.Stores) error {
		var err error
		p, err = st.Positions.GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}
		if err := lifecycle.Transition(&p, target, actor, now); err != nil {
			return err
		}
		if err := st.Positions.Update(ctx, p); err != nil {
			return err
		}
		return st.Audit.Log(ctx, "position_status_changed", map[string]any{
			"position_id": p.ID,
			"status":      string(p.Status),
			"actor_id":    actor.ID,
		})
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: transition %q: %w", positionID, err)
	}

	s.publishPosition(ctx, p)
	return p, nil
}

// RequestClose records the trader's half of the two-phase close.
func (s *PositionService) RequestClose(ctx context.Context, actor domain.Actor, positionID string) (domain.Position, error) {
	unlock, err := s.lockPosition(ctx, positionID)
	if err != nil {
		return domain.Position{}, err
	}
	defer unlock()

	var p domain.Position
	now := time.Now().UTC()
	err = s.tx.WithinTx(ctx, func(st domain.Stores) error {
		var err error
		p, err = st.Positions.GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}
		if err := lifecycle.RequestClose(&p, actor, now); err != nil {
			return err
		}
		if err := st.Positions.Update(ctx, p); err != nil {
			return err
		}
		return st.Audit.Log(ctx, "position_close_requested", map[string]any{
			"position_id": p.ID,
			"trader_id":   actor.ID,
		})
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: request close %q: %w", positionID, err)
	}

	s.publishPosition(ctx, p)
	s.alert(ctx, "close_requested", "Close requested",
		fmt.Sprintf("Position %s (%s) close requested by %s", p.ID, p.Symbol, actor.Name))
	return p, nil
}

// AcceptClose records the manager's half of the two-phase close and, once
// committed, archives a snapshot of the position and its exit history.
func (s *PositionService) AcceptClose(ctx context.Context, actor domain.Actor, positionID string) (domain.Position, error) {
	unlock, err := s.lockPosition(ctx, positionID)
	if err != nil {
		return domain.Position{}, err
	}
	defer unlock()

	var (
		p     domain.Position
		exits []domain.Exit
	)
	err = s.tx.WithinTx(ctx, func(st domain.Stores) error {
		var err error
		p, err = st.Positions.GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}
		if err := lifecycle.AcceptClose(&p, actor); err != nil {
			return err
		}
		if err := st.Positions.Update(ctx, p); err != nil {
			return err
		}
		exits, err = st.Exits.ListByPosition(ctx, p.ID)
		if err != nil {
			return err
		}
		return st.Audit.Log(ctx, "position_close_accepted", map[string]any{
			"position_id": p.ID,
			"manager_id":  actor.ID,
		})
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: accept close %q: %w", positionID, err)
	}

	s.publishPosition(ctx, p)
	s.alert(ctx, "close_accepted", "Close accepted",
		fmt.Sprintf("Position %s (%s) close accepted by %s", p.ID, p.Symbol, actor.Name))

	if s.archiver != nil {
		if archErr := s.archiver.ArchivePosition(ctx, p, exits); archErr != nil {
			s.logger.WarnContext(ctx, "archive snapshot failed",
				slog.String("position_id", p.ID),
				slog.String("error", archErr.Error()),
			)
		}
	}
	return p, nil
}

// Get returns a position visible to the actor.
func (s *PositionService) Get(ctx context.Context, actor domain.Actor, positionID string) (domain.Position, error) {
	var p domain.Position
	err := s.tx.WithinTx(ctx, func(st domain.Stores) error {
		var err error
		p, err = st.Positions.GetByID(ctx, positionID)
		return err
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get %q: %w", positionID, err)
	}
	if p.TraderID != actor.ID && !actor.IsManager {
		return domain.Position{}, &domain.PermissionError{Action: "view another trader's position"}
	}
	return p, nil
}

// ListAll returns every position, newest first. Manager only.
func (s *PositionService) ListAll(ctx context.Context, actor domain.Actor, opts domain.ListOpts) ([]domain.Position, error) {
	if !actor.IsManager {
		return nil, &domain.PermissionError{Action: "list all positions"}
	}
	return s.list(ctx, func(st domain.Stores) ([]domain.Position, error) {
		return st.Positions.List(ctx, opts)
	})
}

// ListMine returns the acting trader's positions, newest first.
func (s *PositionService) ListMine(ctx context.Context, actor domain.Actor, opts domain.ListOpts) ([]domain.Position, error) {
	return s.list(ctx, func(st domain.Stores) ([]domain.Position, error) {
		return st.Positions.ListByTrader(ctx, actor.ID, opts)
	})
}

// ListCloseRequests returns positions awaiting close acceptance. Manager only.
func (s *PositionService) ListCloseRequests(ctx context.Context, actor domain.Actor) ([]domain.Position, error) {
	if !actor.IsManager {
		return nil, &domain.PermissionError{Action: "list close requests"}
	}
	return s.list(ctx, func(st domain.Stores) ([]domain.Position, error) {
		return st.Positions.ListCloseRequests(ctx)
	})
}

// ListClosed returns closed-and-accepted positions. Manager only.
func (s *PositionService) ListClosed(ctx context.Context, actor domain.Actor, opts domain.ListOpts) ([]domain.Position, error) {
	if !actor.IsManager {
		return nil, &domain.PermissionError{Action: "list closed positions"}
	}
	return s.list(ctx, func(st domain.Stores) ([]domain.Position, error) {
		return st.Positions.ListClosed(ctx, opts)
	})
}

func (s *PositionService) list(ctx context.Context, fn func(domain.Stores) ([]domain.Position, error)) ([]domain.Position, error) {
	var out []domain.Position
	err := s.tx.WithinTx(ctx, func(st domain.Stores) error {
		var err error
		out, err = fn(st)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("position_service: list: %w", err)
	}
	return out, nil
}

// repriceExits re-derives profit/loss for the position's live exits against
// its current average price, persisting only the ones that changed.
func (s *PositionService) repriceExits(ctx context.Context, st domain.Stores, p domain.Position) ([]domain.Exit, error) {
	exits, err := st.Exits.ListByPosition(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	var changed []domain.Exit
	for i := range exits {
		if !exits[i].ExitStatus.Live() {
			continue
		}
		if ledger.Reprice(&exits[i], p.AvgPrice) {
			if err := st.Exits.Update(ctx, exits[i]); err != nil {
				return nil, err
			}
			changed = append(changed, exits[i])
		}
	}
	return changed, nil
}

func (s *PositionService) lockPosition(ctx context.Context, positionID string) (func(), error) {
	unlock, err := s.locks.Acquire(ctx, "position:"+positionID, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("position_service: lock position %q: %w", positionID, err)
	}
	return unlock, nil
}

// publishPosition fans out the full position state on the global topic.
// Publish failures never unwind the committed mutation.
func (s *PositionService) publishPosition(ctx context.Context, p domain.Position) {
	evt, err := json.Marshal(map[string]any{
		"type":     "position_update",
		"position": p,
	})
	if err != nil {
		return
	}
	if pubErr := s.bus.Publish(ctx, domain.TopicPositions, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish position update failed",
			slog.String("position_id", p.ID),
			slog.String("error", pubErr.Error()),
		)
	}
}

func (s *PositionService) publishExit(ctx context.Context, e domain.Exit) {
	evt, err := json.Marshal(map[string]any{
		"type": "exit_update",
		"exit": e,
	})
	if err != nil {
		return
	}
	if pubErr := s.bus.Publish(ctx, domain.PositionTopic(e.PositionID), evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish exit update failed",
			slog.String("exit_id", e.ID),
			slog.String("error", pubErr.Error()),
		)
	}
}

func (s *PositionService) alert(ctx context.Context, event, title, message string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "operator alert failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
