package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openfloor/tradedesk/internal/domain"
)

// AuditStore appends to the audit_log table.
type AuditStore struct {
	db DBTX
}

// NewAuditStore creates an AuditStore over the given pool or transaction.
func NewAuditStore(db DBTX) *AuditStore {
	return &AuditStore{db: db}
}

var _ domain.AuditStore = (*AuditStore)(nil)

// Log records one audit event. Events commit with the mutation they
// describe, so a rolled-back change leaves no audit trace.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}
	if _, err := s.db.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, payload,
	); err != nil {
		return fmt.Errorf("postgres: log audit event %q: %w", event, err)
	}
	return nil
}
