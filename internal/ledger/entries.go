// Package ledger holds the pure derivation rules for positions and exits:
// fill-entry validation, weighted average price, and the exit status /
// profit-loss tables. Nothing here touches storage; callers recompute inside
// their own transaction scope.
package ledger

import (
	"fmt"

	"github.com/openfloor/tradedesk/internal/domain"
)

// ValidateEntries checks a fill-entry collection at the ledger boundary.
// Entries arrive as client-supplied JSON, so every record is checked before
// any of them is accepted.
func ValidateEntries(entries []domain.FillEntry) error {
	if len(entries) == 0 {
		return domain.Validationf("entries", "at least one fill entry is required")
	}
	for i, e := range entries {
		field := func(name string) string { return fmt.Sprintf("entries[%d].%s", i, name) }
		if e.Lots <= 0 {
			return domain.Validationf(field("lots"), "must be a positive integer")
		}
		if e.Price <= 0 {
			return domain.Validationf(field("price"), "must be a positive number")
		}
		if e.FilledLots < 0 {
			return domain.Validationf(field("filled_lots"), "must be a non-negative integer")
		}
		if e.FilledLots > e.Lots {
			return domain.Validationf(field("filled_lots"), "cannot exceed lots (%d > %d)", e.FilledLots, e.Lots)
		}
		if e.RequestedAt.IsZero() {
			return domain.Validationf(field("requested_at"), "is required")
		}
	}
	return nil
}

// Totals folds the entry collection into the derived position fields: total
// filled lots and the fill-weighted average price. With no filled lots the
// average is 0, never a division by zero. The fold is idempotent; repeated
// calls over unchanged entries yield identical values.
func Totals(entries []domain.FillEntry) (totalFilledLots int, avgPrice float64) {
	var weighted float64
	for _, e := range entries {
		if e.FilledLots <= 0 {
			continue
		}
		totalFilledLots += e.FilledLots
		weighted += float64(e.FilledLots) * e.Price
	}
	if totalFilledLots == 0 {
		return 0, 0
	}
	return totalFilledLots, weighted / float64(totalFilledLots)
}

// RequestedLots sums the requested lots over all entries.
func RequestedLots(entries []domain.FillEntry) int {
	var total int
	for _, e := range entries {
		total += e.Lots
	}
	return total
}

// Recompute refreshes a position's derived fields from its entries.
func Recompute(p *domain.Position) {
	p.TotalFilledLots, p.AvgPrice = Totals(p.Entries)
}
