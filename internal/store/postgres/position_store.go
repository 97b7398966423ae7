package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openfloor/tradedesk/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Fill
// entries live in a JSONB column; the derived totals are stored alongside so
// list queries never unpack the entries.
type PositionStore struct {
	db DBTX
}

// NewPositionStore creates a PositionStore over the given pool or transaction.
func NewPositionStore(db DBTX) *PositionStore {
	return &PositionStore{db: db}
}

const positionSelectCols = `id, kind, trade_type, spread_type, symbol, trader_id, approved_by,
	entries, total_filled_lots, avg_price, status, created_at, approved_at,
	order_placed_at, fills_received_at, close_requested_at, is_closed, close_accepted`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var kind, tradeType, spreadType, status string
	var entries []byte

	err := row.Scan(
		&p.ID, &kind, &tradeType, &spreadType, &p.Symbol, &p.TraderID, &p.ApprovedBy,
		&entries, &p.TotalFilledLots, &p.AvgPrice,
		&status, &p.CreatedAt, &p.ApprovedAt,
		&p.OrderPlacedAt, &p.FillsReceivedAt, &p.CloseRequestedAt,
		&p.IsClosed, &p.CloseAccepted,
	)
	if err != nil {
		return domain.Position{}, err
	}
	if err := json.Unmarshal(entries, &p.Entries); err != nil {
		return domain.Position{}, fmt.Errorf("unmarshal entries for %s: %w", p.ID, err)
	}
	p.Kind = domain.PositionKind(kind)
	p.TradeType = domain.TradeType(tradeType)
	p.SpreadType = domain.SpreadType(spreadType)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	entries, err := json.Marshal(p.Entries)
	if err != nil {
		return fmt.Errorf("postgres: marshal entries for %s: %w", p.ID, err)
	}

	const query = `
		INSERT INTO positions (
			id, kind, trade_type, spread_type, symbol, trader_id, approved_by,
			entries, total_filled_lots, avg_price, status, created_at, approved_at,
			order_placed_at, fills_received_at, close_requested_at, is_closed,
			close_accepted, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, NOW()
		)`

	_, err = s.db.Exec(ctx, query,
		p.ID, string(p.Kind), string(p.TradeType), string(p.SpreadType),
		p.Symbol, p.TraderID, p.ApprovedBy,
		entries, p.TotalFilledLots, p.AvgPrice,
		string(p.Status), p.CreatedAt, p.ApprovedAt,
		p.OrderPlacedAt, p.FillsReceivedAt, p.CloseRequestedAt,
		p.IsClosed, p.CloseAccepted,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetForUpdate retrieves a position and takes a row lock for the duration of
// the enclosing transaction.
func (s *PositionStore) GetForUpdate(ctx context.Context, id string) (domain.Position, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1 FOR UPDATE`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: lock position %s: %w", id, err)
	}
	return p, nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	entries, err := json.Marshal(p.Entries)
	if err != nil {
		return fmt.Errorf("postgres: marshal entries for %s: %w", p.ID, err)
	}

	const query = `
		UPDATE positions SET
			approved_by        = $2,
			entries            = $3,
			total_filled_lots  = $4,
			avg_price          = $5,
			status             = $6,
			approved_at        = $7,
			order_placed_at    = $8,
			fills_received_at  = $9,
			close_requested_at = $10,
			is_closed          = $11,
			close_accepted     = $12,
			updated_at         = NOW()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		p.ID, p.ApprovedBy,
		entries, p.TotalFilledLots, p.AvgPrice,
		string(p.Status), p.ApprovedAt,
		p.OrderPlacedAt, p.FillsReceivedAt, p.CloseRequestedAt,
		p.IsClosed, p.CloseAccepted,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns all positions, newest first.
func (s *PositionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions ORDER BY created_at DESC`
	query, args := paginate(query, nil, opts)
	return s.queryPositions(ctx, "list positions", query, args...)
}

// ListByTrader returns the given trader's positions, newest first.
func (s *PositionStore) ListByTrader(ctx context.Context, traderID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE trader_id = $1 ORDER BY created_at DESC`
	query, args := paginate(query, []any{traderID}, opts)
	return s.queryPositions(ctx, "list trader positions", query, args...)
}

// ListOpen returns open positions, optionally scoped to one trader.
func (s *PositionStore) ListOpen(ctx context.Context, traderID string) ([]domain.Position, error) {
	if traderID == "" {
		return s.queryPositions(ctx, "list open positions",
			`SELECT `+positionSelectCols+` FROM positions
			 WHERE is_closed = FALSE ORDER BY created_at DESC`)
	}
	return s.queryPositions(ctx, "list open positions",
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE is_closed = FALSE AND trader_id = $1 ORDER BY created_at DESC`, traderID)
}

// ListCloseRequests returns positions whose close was requested but not yet
// accepted, oldest request first.
func (s *PositionStore) ListCloseRequests(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx, "list close requests",
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE is_closed = TRUE AND close_accepted = FALSE
		 ORDER BY close_requested_at ASC`)
}

// ListClosed returns fully closed positions, newest first.
func (s *PositionStore) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE is_closed = TRUE AND close_accepted = TRUE
		ORDER BY close_requested_at DESC`
	query, args := paginate(query, nil, opts)
	return s.queryPositions(ctx, "list closed positions", query, args...)
}

func (s *PositionStore) queryPositions(ctx context.Context, op, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %s: %w", op, err)
	}
	return positions, nil
}

func paginate(query string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
