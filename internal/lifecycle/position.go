// Package lifecycle enforces the legal status transitions for positions and
// exits. It is the only code allowed to mutate status fields; the derived
// numeric fields belong to the ledger package.
package lifecycle

import (
	"time"

	"github.com/openfloor/tradedesk/internal/domain"
	"github.com/openfloor/tradedesk/internal/ledger"
)

// Transition applies a requested status change to a position. Guards:
//
//	pending -> approved          manager only
//	approved -> order_placed
//	order_placed | partial_fills_received -> fills_received | partial_fills_received
//	any -> pending               manager-only reset, clears forward timestamps
//
// Timestamps are stamped the first time a status is reached and stay sticky
// until an admin reset. The position is left unmodified on error.
func Transition(p *domain.Position, target domain.PositionStatus, actor domain.Actor, now time.Time) error {
	switch target {
	case domain.StatusApproved:
		if !actor.IsManager {
			return &domain.PermissionError{Action: "approve position"}
		}
		if p.Status != domain.StatusPending {
			return &domain.InvalidTransitionError{From: string(p.Status), To: string(target)}
		}
		p.Status = domain.StatusApproved
		p.ApprovedBy = actor.ID
		if p.ApprovedAt == nil {
			p.ApprovedAt = &now
		}

	case domain.StatusOrderPlaced:
		if p.Status != domain.StatusApproved {
			return &domain.InvalidTransitionError{From: string(p.Status), To: string(target)}
		}
		p.Status = domain.StatusOrderPlaced
		if p.OrderPlacedAt == nil {
			p.OrderPlacedAt = &now
		}

	case domain.StatusFillsReceived, domain.StatusPartialFillsReceived:
		if p.Status != domain.StatusOrderPlaced && p.Status != domain.StatusPartialFillsReceived {
			return &domain.InvalidTransitionError{From: string(p.Status), To: string(target)}
		}
		p.Status = target
		if p.FillsReceivedAt == nil {
			p.FillsReceivedAt = &now
		}

	case domain.StatusPending:
		if !actor.IsManager {
			return &domain.PermissionError{Action: "reset position to pending"}
		}
		p.Status = domain.StatusPending
		p.ApprovedBy = ""
		p.ApprovedAt = nil
		p.OrderPlacedAt = nil
		p.FillsReceivedAt = nil

	default:
		return domain.Validationf("status", "unknown status %q", target)
	}
	return nil
}

// CanRecordFill reports whether fill updates are accepted in the position's
// current status.
func CanRecordFill(p *domain.Position) bool {
	switch p.Status {
	case domain.StatusApproved, domain.StatusOrderPlaced, domain.StatusPartialFillsReceived:
		return true
	}
	return false
}

// AdvanceFromFills derives the fill status after the entries changed. Only
// positions that already placed their order advance: partial when some lots
// filled, fills_received when every requested lot filled. The
// fills_received_at stamp is sticky; fill-update cycles never re-stamp it.
func AdvanceFromFills(p *domain.Position, now time.Time) {
	if p.Status != domain.StatusOrderPlaced && p.Status != domain.StatusPartialFillsReceived {
		return
	}

	requested := ledger.RequestedLots(p.Entries)
	switch {
	case p.TotalFilledLots == 0:
		// No fills yet; stay put.
	case p.TotalFilledLots < requested:
		p.Status = domain.StatusPartialFillsReceived
		if p.FillsReceivedAt == nil {
			p.FillsReceivedAt = &now
		}
	default:
		p.Status = domain.StatusFillsReceived
		if p.FillsReceivedAt == nil {
			p.FillsReceivedAt = &now
		}
	}
}

// DemoteOnAppend knocks a fully-filled position back to partial when new
// entries are appended, since the new lots are by definition unfilled.
func DemoteOnAppend(p *domain.Position) {
	if p.Status == domain.StatusFillsReceived {
		p.Status = domain.StatusPartialFillsReceived
	}
}

// RequestClose records a trader's close request. It can be made once.
func RequestClose(p *domain.Position, actor domain.Actor, now time.Time) error {
	if p.TraderID != actor.ID {
		return &domain.PermissionError{Action: "close another trader's position"}
	}
	if p.IsClosed {
		return domain.Validationf("is_closed", "close request already sent")
	}
	p.IsClosed = true
	p.CloseRequestedAt = &now
	return nil
}

// AcceptClose records a manager accepting a pending close request.
func AcceptClose(p *domain.Position, actor domain.Actor) error {
	if !actor.IsManager {
		return &domain.PermissionError{Action: "accept close request"}
	}
	if !p.IsClosed || p.CloseAccepted {
		return domain.Validationf("close_accepted", "no pending close request")
	}
	p.CloseAccepted = true
	return nil
}
