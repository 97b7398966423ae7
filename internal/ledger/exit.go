package ledger

import (
	"time"

	"github.com/openfloor/tradedesk/internal/domain"
)

// DeriveExitStatus is the pure status table over received vs requested lots.
// A fill that drops back to zero returns to order_placed when the exit had
// already seen fills, otherwise to pending.
func DeriveExitStatus(received, requested int, prev domain.ExitStatus) domain.ExitStatus {
	switch {
	case received == requested && received > 0:
		return domain.ExitFilled
	case received > 0 && received < requested:
		return domain.ExitPartialFilled
	default:
		if prev == domain.ExitFilled || prev == domain.ExitPartialFilled {
			return domain.ExitOrderPlaced
		}
		return domain.ExitPending
	}
}

// ProfitLoss computes the realized P/L for received lots at the exit price
// against the position's current average entry price.
func ProfitLoss(exitPrice, avgPrice float64, receivedLots int) float64 {
	return (exitPrice - avgPrice) * float64(receivedLots)
}

// ApplyFill records a fill against an exit: validates the received lots,
// then re-derives profit/loss, closure, status, and the sticky filled_at
// timestamp. avgPrice is the position's average price at time of call, so a
// later correction to the position's fills repricing the exit is expected.
// The exit is left unmodified on error.
func ApplyFill(e *domain.Exit, avgPrice float64, receivedLots int, exitPrice *float64, now time.Time) error {
	if receivedLots < 0 {
		return domain.Validationf("received_lots", "must be a non-negative integer")
	}
	if receivedLots > e.RequestedExitLots {
		return domain.Validationf("received_lots", "cannot exceed requested exit lots (%d > %d)", receivedLots, e.RequestedExitLots)
	}

	e.ReceivedLots = receivedLots
	if exitPrice != nil {
		e.ExitPrice = exitPrice
	}
	if e.FilledAt == nil {
		e.FilledAt = &now
	}
	e.ExitStatus = DeriveExitStatus(e.ReceivedLots, e.RequestedExitLots, e.ExitStatus)
	e.IsClosed = e.ReceivedLots == e.RequestedExitLots && e.ReceivedLots > 0
	Reprice(e, avgPrice)
	return nil
}

// Reprice re-derives an exit's profit/loss against the given position
// average price. P/L exists only when an exit price is set and lots have
// been received. It returns true when the stored value changed.
func Reprice(e *domain.Exit, avgPrice float64) bool {
	if e.ExitPrice == nil || e.ReceivedLots <= 0 {
		if e.ProfitLoss != nil {
			e.ProfitLoss = nil
			return true
		}
		return false
	}
	pl := ProfitLoss(*e.ExitPrice, avgPrice, e.ReceivedLots)
	if e.ProfitLoss != nil && *e.ProfitLoss == pl {
		return false
	}
	e.ProfitLoss = &pl
	return true
}
