package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// PositionStore persists positions. GetForUpdate must be called inside a
// transaction; it takes a row lock so concurrent read-modify-write cycles on
// the same position serialize.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	GetForUpdate(ctx context.Context, id string) (Position, error)
	Update(ctx context.Context, p Position) error
	List(ctx context.Context, opts ListOpts) ([]Position, error)
	ListByTrader(ctx context.Context, traderID string, opts ListOpts) ([]Position, error)
	ListOpen(ctx context.Context, traderID string) ([]Position, error)
	ListCloseRequests(ctx context.Context) ([]Position, error)
	ListClosed(ctx context.Context, opts ListOpts) ([]Position, error)
}

// ExitStore persists exit requests.
type ExitStore interface {
	Create(ctx context.Context, e Exit) error
	GetByID(ctx context.Context, id string) (Exit, error)
	GetForUpdate(ctx context.Context, id string) (Exit, error)
	Update(ctx context.Context, e Exit) error
	ListByPosition(ctx context.Context, positionID string) ([]Exit, error)
	// LiveLots sums requested and received lots over the position's
	// non-rejected, non-cancelled exits.
	LiveLots(ctx context.Context, positionID string) (requested, received int, err error)
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// Stores bundles the entity stores participating in one transaction scope.
type Stores struct {
	Positions PositionStore
	Exits     ExitStore
	Audit     AuditStore
}

// TxRunner executes fn inside a single database transaction. All store
// access through the provided Stores shares that transaction; if fn returns
// an error the transaction rolls back and no partial writes survive.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(Stores) error) error
}
