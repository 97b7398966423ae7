package domain

import "time"

// ExitStatus tracks an exit request. approved, order_placed, rejected and
// cancelled are explicit actions; partial_filled and filled are derived from
// received vs requested lots and cannot be set directly.
type ExitStatus string

const (
	ExitPending       ExitStatus = "pending"
	ExitApproved      ExitStatus = "approved"
	ExitOrderPlaced   ExitStatus = "order_placed"
	ExitPartialFilled ExitStatus = "partial_filled"
	ExitFilled        ExitStatus = "filled"
	ExitRejected      ExitStatus = "rejected"
	ExitCancelled     ExitStatus = "cancelled"
)

// Live reports whether the status still counts against the position's
// available lots. Rejected and cancelled exits release their claim.
func (s ExitStatus) Live() bool {
	return s != ExitRejected && s != ExitCancelled
}

// Exit is a partial or full close-out request against a position. Exits are
// never deleted; they form an immutable history of closes.
type Exit struct {
	ID         string `json:"id"`
	PositionID string `json:"position_id"`

	RequestedExitLots int      `json:"requested_exit_lots"`
	ReceivedLots      int      `json:"received_lots"`
	ExitPrice         *float64 `json:"exit_price,omitempty"`
	ProfitLoss        *float64 `json:"profit_loss,omitempty"`

	ExitStatus ExitStatus `json:"exit_status"`
	IsClosed   bool       `json:"is_closed"`

	InitiatedBy string `json:"initiated_by"`
	ApprovedBy  string `json:"approved_by,omitempty"`

	RequestedAt   time.Time  `json:"requested_at"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	OrderPlacedAt *time.Time `json:"order_placed_at,omitempty"`
	FilledAt      *time.Time `json:"filled_at,omitempty"`
}
