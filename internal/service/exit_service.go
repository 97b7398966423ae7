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

// ExitService owns the exit sub-ledger: batch exit creation against a
// position's filled lots and the per-exit status/fill updates.
type ExitService struct {
	tx     domain.TxRunner
	locks  domain.LockManager
	bus    domain.SignalBus
	alerts Alerter
	logger *slog.Logger
}

// NewExitService creates an ExitService. alerts may be nil.
func NewExitService(
	tx domain.TxRunner,
	locks domain.LockManager,
	bus domain.SignalBus,
	alerts Alerter,
	logger *slog.Logger,
) *ExitService {
	return &ExitService{
		tx:     tx,
		locks:  locks,
		bus:    bus,
		alerts: alerts,
		logger: logger.With(slog.String("component", "exit_service")),
	}
}

// ExitRequest is one line of a batch exit creation.
type ExitRequest struct {
	RequestedExitLots int      `json:"requested_exit_lots"`
	ExitPrice         *float64 `json:"exit_price,omitempty"`
}

// CreateExits opens one or more exits against a position in a single
// transaction. The combined requested lots of the new exits plus every live
// exit may not exceed the position's filled lots; on violation nothing is
// created.
func (s *ExitService) CreateExits(ctx context.Context, actor domain.Actor, positionID string, reqs []ExitRequest) ([]domain.Exit, error) {
	if len(reqs) == 0 {
		return nil, domain.Validationf("exits", "at least one exit request is required")
	}
	for i, r := range reqs {
		if r.RequestedExitLots <= 0 {
			return nil, domain.Validationf(fmt.Sprintf("exits[%d].requested_exit_lots", i), "must be a positive integer")
		}
		if r.ExitPrice != nil && *r.ExitPrice <= 0 {
			return nil, domain.Validationf(fmt.Sprintf("exits[%d].exit_price", i), "must be a positive number")
		}
	}

	unlock, err := s.locks.Acquire(ctx, "position:"+positionID, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("exit_service: lock position %q: %w", positionID, err)
	}
	defer unlock()

	var created []domain.Exit
	now := time.Now().UTC()
	err = s.tx.WithinTx(ctx, func(st domain.Stores) error {
		p, err := st.Positions.GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}
		if p.TraderID != actor.ID && !actor.IsManager {
			return &domain.PermissionError{Action: "exit another trader's position"}
		}

		liveRequested, _, err := st.Exits.LiveLots(ctx, p.ID)
		if err != nil {
			return err
		}
		var asked int
		for _, r := range reqs {
			asked += r.RequestedExitLots
		}
		if available := p.TotalFilledLots - liveRequested; asked > available {
			return domain.Validationf("requested_exit_lots",
				"requested %d lots but only %d of %d filled lots remain unclaimed", asked, available, p.TotalFilledLots)
		}

		created = make([]domain.Exit, 0, len(reqs))
		for _, r := range reqs {
			e := domain.Exit{
				ID:                uuid.New().String(),
				PositionID:        p.ID,
				RequestedExitLots: r.RequestedExitLots,
				ExitPrice:         r.ExitPrice,
				ExitStatus:        domain.ExitPending,
				InitiatedBy:       actor.ID,
				RequestedAt:       now,
			}
			if err := st.Exits.Create(ctx, e); err != nil {
				return err
			}
			created = append(created, e)
		}
		return st.Audit.Log(ctx, "exits_created", map[string]any{
			"position_id": p.ID,
			"count":       len(created),
			"lots":        asked,
			"actor_id":    actor.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("exit_service: create exits for %q: %w", positionID, err)
	}

	for _, e := range created {
		s.publishExit(ctx, e)
	}
	return created, nil
}

// UpdateExitInput carries an exit status update. ReceivedLots and ExitPrice
// are consulted only for fill updates; for those the status stored is
// derived from the lots, not taken from Target.
type UpdateExitInput struct {
	Target       domain.ExitStatus
	ReceivedLots *int
	ExitPrice    *float64
}

// UpdateExit applies a status or fill update to an exit. Fill updates
// re-derive status, closure, and profit/loss from the received lots; the sum
// of received lots across the position's live exits may never exceed the
// position's filled lots.
func (s *ExitService) UpdateExit(ctx context.Context, actor domain.Actor, exitID string, in UpdateExitInput) (domain.Exit, error) {
	// Resolve the owning position outside the transaction so the lock is
	// taken before any row is read for update.
	var positionID string
	err := s.tx.WithinTx(ctx, func(st domain.Stores) error {
		e, err := st.Exits.GetByID(ctx, exitID)
		if err != nil {
			return err
		}
		positionID = e.PositionID
		return nil
	})
	if err != nil {
		return domain.Exit{}, fmt.Errorf("exit_service: resolve exit %q: %w", exitID, err)
	}

	unlock, err := s.locks.Acquire(ctx, "position:"+positionID, lockTTL)
	if err != nil {
		return domain.Exit{}, fmt.Errorf("exit_service: lock position %q: %w", positionID, err)
	}
	defer unlock()

	var e domain.Exit
	now := time.Now().UTC()
	err = s.tx.WithinTx(ctx, func(st domain.Stores) error {
		var err error
		e, err = st.Exits.GetForUpdate(ctx, exitID)
		if err != nil {
			return err
		}
		p, err := st.Positions.GetForUpdate(ctx, e.PositionID)
		if err != nil {
			return err
		}
		if p.TraderID != actor.ID && !actor.IsManager {
			return &domain.PermissionError{Action: "update another trader's exit"}
		}

		switch in.Target {
		case domain.ExitFilled, domain.ExitPartialFilled:
			if in.ReceivedLots == nil {
				return domain.Validationf("received_lots", "required for fill updates")
			}
			// A rejected or cancelled exit no longer counts against the
			// position's filled lots; filling one would resurrect it past
			// the lot bound.
			if !e.ExitStatus.Live() {
				return domain.Validationf("exit_status",
					"cannot record fills on a %s exit", e.ExitStatus)
			}
			_, otherReceived, err := st.Exits.LiveLots(ctx, p.ID)
			if err != nil {
				return err
			}
			otherReceived -= e.ReceivedLots
			if otherReceived+*in.ReceivedLots > p.TotalFilledLots {
				return domain.Validationf("received_lots",
					"total exited lots (%d) would exceed position filled lots (%d)",
					otherReceived+*in.ReceivedLots, p.TotalFilledLots)
			}
			if err := ledger.ApplyFill(&e, p.AvgPrice, *in.ReceivedLots, in.ExitPrice, now); err != nil {
				return err
			}
		default:
			if err := lifecycle.ExitTransition(&e, in.Target, actor, now); err != nil {
				return err
			}
		}

		if err := st.Exits.Update(ctx, e); err != nil {
			return err
		}
		return st.Audit.Log(ctx, "exit_updated", map[string]any{
			"exit_id":     e.ID,
			"position_id": e.PositionID,
			"status":      string(e.ExitStatus),
			"actor_id":    actor.ID,
		})
	})
	if err != nil {
		return domain.Exit{}, fmt.Errorf("exit_service: update exit %q: %w", exitID, err)
	}

	s.publishExit(ctx, e)
	if e.ExitStatus == domain.ExitFilled {
		s.alertFilled(ctx, e)
	}
	return e, nil
}

// ListByPosition returns a position's exits, oldest first.
func (s *ExitService) ListByPosition(ctx context.Context, actor domain.Actor, positionID string) ([]domain.Exit, error) {
	var exits []domain.Exit
	err := s.tx.WithinTx(ctx, func(st domain.Stores) error {
		p, err := st.Positions.GetByID(ctx, positionID)
		if err != nil {
			return err
		}
		if p.TraderID != actor.ID && !actor.IsManager {
			return &domain.PermissionError{Action: "view another trader's exits"}
		}
		exits, err = st.Exits.ListByPosition(ctx, positionID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("exit_service: list exits for %q: %w", positionID, err)
	}
	return exits, nil
}

// PositionWithExits is the open-book view: one open position and its exits.
type PositionWithExits struct {
	domain.Position
	Exits []domain.Exit `json:"exits"`
}

// OpenBook returns open positions with their exits. Managers see every
// trader's open positions; traders see their own.
func (s *ExitService) OpenBook(ctx context.Context, actor domain.Actor) ([]PositionWithExits, error) {
	traderID := actor.ID
	if actor.IsManager {
		traderID = ""
	}

	var out []PositionWithExits
	err := s.tx.WithinTx(ctx, func(st domain.Stores) error {
		positions, err := st.Positions.ListOpen(ctx, traderID)
		if err != nil {
			return err
		}
		out = make([]PositionWithExits, 0, len(positions))
		for _, p := range positions {
			exits, err := st.Exits.ListByPosition(ctx, p.ID)
			if err != nil {
				return err
			}
			out = append(out, PositionWithExits{Position: p, Exits: exits})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exit_service: open book: %w", err)
	}
	return out, nil
}

func (s *ExitService) publishExit(ctx context.Context, e domain.Exit) {
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

func (s *ExitService) alertFilled(ctx context.Context, e domain.Exit) {
	if s.alerts == nil {
		return
	}
	msg := fmt.Sprintf("Exit %s on position %s filled for %d lots", e.ID, e.PositionID, e.ReceivedLots)
	if err := s.alerts.Notify(ctx, "exit_filled", "Exit filled", msg); err != nil {
		s.logger.WarnContext(ctx, "operator alert failed",
			slog.String("event", "exit_filled"),
			slog.String("error", err.Error()),
		)
	}
}
