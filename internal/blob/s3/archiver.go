package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openfloor/tradedesk/internal/domain"
)

// Archiver writes closed-position snapshots to blob storage so the trading
// database can stay lean while the full history remains queryable offline.
type Archiver struct {
	writer *Writer
	prefix string
}

// NewArchiver creates an Archiver that stores snapshots under the given key
// prefix (for example "archive").
func NewArchiver(w *Writer, prefix string) *Archiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &Archiver{writer: w, prefix: prefix}
}

// snapshot is the stored shape of an archived position.
type snapshot struct {
	ArchivedAt time.Time       `json:"archived_at"`
	Position   domain.Position `json:"position"`
	Exits      []domain.Exit   `json:"exits"`
}

// ArchivePosition uploads one position and its exit history as a JSON object
// keyed by close date and position ID.
func (a *Archiver) ArchivePosition(ctx context.Context, p domain.Position, exits []domain.Exit) error {
	now := time.Now().UTC()
	snap := snapshot{ArchivedAt: now, Position: p, Exits: exits}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot %s: %w", p.ID, err)
	}

	key := fmt.Sprintf("%s/%s/%s.json", a.prefix, now.Format("2006/01"), p.ID)
	if err := a.writer.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive position %s: %w", p.ID, err)
	}
	return nil
}

// ExportClosed uploads a bulk export of closed positions as newline-delimited
// JSON using a multipart upload, since a full book export can run large.
// It returns the object key it wrote.
func (a *Archiver) ExportClosed(ctx context.Context, positions []domain.Position) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range positions {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("s3blob: encode position %s: %w", p.ID, err)
		}
	}

	key := fmt.Sprintf("%s/exports/%s.ndjson", a.prefix, time.Now().UTC().Format("20060102T150405Z"))
	if err := a.writer.PutMultipart(ctx, key, &buf, 0); err != nil {
		return "", fmt.Errorf("s3blob: export closed positions: %w", err)
	}
	return key, nil
}
