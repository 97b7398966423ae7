package lifecycle

import (
	"time"

	"github.com/openfloor/tradedesk/internal/domain"
)

// ExitTransition applies an explicit exit status change. Fill statuses
// (filled, partial_filled) are derived from received lots and cannot be set
// here; callers with fill data go through ledger.ApplyFill instead.
func ExitTransition(e *domain.Exit, target domain.ExitStatus, actor domain.Actor, now time.Time) error {
	switch target {
	case domain.ExitApproved:
		e.ExitStatus = domain.ExitApproved
		e.ApprovedBy = actor.ID
		if e.ApprovedAt == nil {
			e.ApprovedAt = &now
		}

	case domain.ExitOrderPlaced:
		e.ExitStatus = domain.ExitOrderPlaced
		if e.OrderPlacedAt == nil {
			e.OrderPlacedAt = &now
		}

	case domain.ExitRejected, domain.ExitCancelled:
		e.ExitStatus = target

	case domain.ExitFilled, domain.ExitPartialFilled:
		return domain.Validationf("received_lots", "required for fill updates")

	default:
		return domain.Validationf("exit_status", "unknown exit status %q", target)
	}
	return nil
}
