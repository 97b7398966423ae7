package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openfloor/tradedesk/internal/domain"
)

// ExitStore implements domain.ExitStore using PostgreSQL.
type ExitStore struct {
	db DBTX
}

// NewExitStore creates an ExitStore over the given pool or transaction.
func NewExitStore(db DBTX) *ExitStore {
	return &ExitStore{db: db}
}

const exitSelectCols = `id, position_id, requested_exit_lots, received_lots,
	exit_price, profit_loss, exit_status, is_closed, initiated_by, approved_by,
	requested_at, approved_at, order_placed_at, filled_at`

func scanExitRow(row pgx.Row) (domain.Exit, error) {
	var e domain.Exit
	var status string

	err := row.Scan(
		&e.ID, &e.PositionID, &e.RequestedExitLots, &e.ReceivedLots,
		&e.ExitPrice, &e.ProfitLoss, &status, &e.IsClosed,
		&e.InitiatedBy, &e.ApprovedBy,
		&e.RequestedAt, &e.ApprovedAt, &e.OrderPlacedAt, &e.FilledAt,
	)
	if err != nil {
		return domain.Exit{}, err
	}
	e.ExitStatus = domain.ExitStatus(status)
	return e, nil
}

// Create inserts a new exit request.
func (s *ExitStore) Create(ctx context.Context, e domain.Exit) error {
	const query = `
		INSERT INTO exits (
			id, position_id, requested_exit_lots, received_lots,
			exit_price, profit_loss, exit_status, is_closed, initiated_by,
			approved_by, requested_at, approved_at, order_placed_at, filled_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, NOW()
		)`

	_, err := s.db.Exec(ctx, query,
		e.ID, e.PositionID, e.RequestedExitLots, e.ReceivedLots,
		e.ExitPrice, e.ProfitLoss, string(e.ExitStatus), e.IsClosed, e.InitiatedBy,
		e.ApprovedBy, e.RequestedAt, e.ApprovedAt, e.OrderPlacedAt, e.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create exit %s: %w", e.ID, err)
	}
	return nil
}

// GetByID retrieves a single exit by its ID.
func (s *ExitStore) GetByID(ctx context.Context, id string) (domain.Exit, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+exitSelectCols+` FROM exits WHERE id = $1`, id)

	e, err := scanExitRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Exit{}, domain.ErrNotFound
		}
		return domain.Exit{}, fmt.Errorf("postgres: get exit %s: %w", id, err)
	}
	return e, nil
}

// GetForUpdate retrieves an exit and takes a row lock for the duration of
// the enclosing transaction.
func (s *ExitStore) GetForUpdate(ctx context.Context, id string) (domain.Exit, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+exitSelectCols+` FROM exits WHERE id = $1 FOR UPDATE`, id)

	e, err := scanExitRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Exit{}, domain.ErrNotFound
		}
		return domain.Exit{}, fmt.Errorf("postgres: lock exit %s: %w", id, err)
	}
	return e, nil
}

// Update replaces all mutable fields of an exit.
func (s *ExitStore) Update(ctx context.Context, e domain.Exit) error {
	const query = `
		UPDATE exits SET
			received_lots   = $2,
			exit_price      = $3,
			profit_loss     = $4,
			exit_status     = $5,
			is_closed       = $6,
			approved_by     = $7,
			approved_at     = $8,
			order_placed_at = $9,
			filled_at       = $10,
			updated_at      = NOW()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		e.ID, e.ReceivedLots,
		e.ExitPrice, e.ProfitLoss,
		string(e.ExitStatus), e.IsClosed,
		e.ApprovedBy, e.ApprovedAt, e.OrderPlacedAt, e.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update exit %s: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByPosition returns a position's exits, oldest first.
func (s *ExitStore) ListByPosition(ctx context.Context, positionID string) ([]domain.Exit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+exitSelectCols+` FROM exits
		 WHERE position_id = $1 ORDER BY requested_at ASC, id ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exits for %s: %w", positionID, err)
	}
	defer rows.Close()

	var exits []domain.Exit
	for rows.Next() {
		e, err := scanExitRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan exits for %s: %w", positionID, err)
		}
		exits = append(exits, e)
	}
	return exits, rows.Err()
}

// LiveLots sums requested and received lots over the position's live exits.
func (s *ExitStore) LiveLots(ctx context.Context, positionID string) (requested, received int, err error) {
	err = s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(requested_exit_lots), 0), COALESCE(SUM(received_lots), 0)
		 FROM exits
		 WHERE position_id = $1 AND exit_status NOT IN ('rejected', 'cancelled')`,
		positionID,
	).Scan(&requested, &received)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: live lots for %s: %w", positionID, err)
	}
	return requested, received, nil
}
