package domain

import "time"

// PositionKind distinguishes single-contract trades from multi-leg spreads.
// Both share the same lifecycle and ledger semantics.
type PositionKind string

const (
	KindTrade  PositionKind = "trade"
	KindSpread PositionKind = "spread"
)

// TradeType is the direction of a position.
type TradeType string

const (
	TradeTypeLong  TradeType = "long"
	TradeTypeShort TradeType = "short"
)

// SpreadType classifies multi-leg positions. A fly spread has exactly two
// legs; a custom spread has three or more.
type SpreadType string

const (
	SpreadTypeFly    SpreadType = "fly"
	SpreadTypeCustom SpreadType = "custom"
)

// PositionStatus tracks a position through its approval and fill lifecycle.
// Transitions only move forward, except the admin-only reset to pending and
// the order_placed/partial_fills_received/fills_received fill cycle.
type PositionStatus string

const (
	StatusPending              PositionStatus = "pending"
	StatusApproved             PositionStatus = "approved"
	StatusOrderPlaced          PositionStatus = "order_placed"
	StatusPartialFillsReceived PositionStatus = "partial_fills_received"
	StatusFillsReceived        PositionStatus = "fills_received"
)

// FillEntry is one fill-request line item in a position's order history.
// FilledLots never exceeds Lots.
type FillEntry struct {
	Leg         string    `json:"leg,omitempty"`
	Lots        int       `json:"lots"`
	Price       float64   `json:"price"`
	StopLoss    float64   `json:"stop_loss"`
	FilledLots  int       `json:"filled_lots"`
	RequestedAt time.Time `json:"requested_at"`
}

// Position is a trade or spread aggregating fill requests against a
// commodity contract. TotalFilledLots and AvgPrice are derived from Entries
// and must never be written directly.
type Position struct {
	ID         string       `json:"id"`
	Kind       PositionKind `json:"kind"`
	TradeType  TradeType    `json:"trade_type"`
	SpreadType SpreadType   `json:"spread_type,omitempty"`
	Symbol     string       `json:"symbol"`
	TraderID   string       `json:"trader_id"`
	ApprovedBy string       `json:"approved_by,omitempty"`

	Entries         []FillEntry `json:"entries"`
	TotalFilledLots int         `json:"total_filled_lots"`
	AvgPrice        float64     `json:"avg_price"`

	Status          PositionStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	OrderPlacedAt   *time.Time     `json:"order_placed_at,omitempty"`
	FillsReceivedAt *time.Time     `json:"fills_received_at,omitempty"`

	CloseRequestedAt *time.Time `json:"close_requested_at,omitempty"`
	IsClosed         bool       `json:"is_closed"`
	CloseAccepted    bool       `json:"close_accepted"`
}

// LegLabels returns the distinct leg labels in entry order. Trades have a
// single empty label.
func (p *Position) LegLabels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, e := range p.Entries {
		if !seen[e.Leg] {
			seen[e.Leg] = true
			labels = append(labels, e.Leg)
		}
	}
	return labels
}
