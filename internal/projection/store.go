package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/contentpipe/search-projector/internal/content"
	"github.com/contentpipe/search-projector/pkg/postgres"
	"github.com/lib/pq"
)

// RecordStore is the durable key-value store behind projection records.
// Load never errors on missing keys; they are simply absent from the
// result. Save replaces whole records. Clear wipes everything for a full
// reindex.
type RecordStore interface {
	Load(ctx context.Context, keys []content.ItemKey) (map[content.ItemKey]*Record, error)
	Save(ctx context.Context, records []*Record) error
	Clear(ctx context.Context) error
}

// PostgresStore persists projection records in PostgreSQL, one row per
// content item keyed by the composite item key.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore creates a store backed by the given client.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "record-store"),
	}
}

// EnsureSchema creates the projection_records table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS projection_records (
			key           TEXT PRIMARY KEY,
			app_id        TEXT NOT NULL,
			content_id    TEXT NOT NULL,
			doc_current   TEXT NOT NULL,
			doc_draft     TEXT NOT NULL DEFAULT '',
			doc_published TEXT NOT NULL DEFAULT '',
			revision      BIGINT NOT NULL DEFAULT 0,
			deleted       BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating projection_records table: %w", err)
	}
	return nil
}

// Load fetches the records for the given keys. Missing keys are absent
// from the returned map.
func (s *PostgresStore) Load(ctx context.Context, keys []content.ItemKey) (map[content.ItemKey]*Record, error) {
	result := make(map[content.ItemKey]*Record, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	raw := make([]string, 0, len(keys))
	for _, key := range keys {
		raw = append(raw, string(key))
	}
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT key, app_id, content_id, doc_current, doc_draft, doc_published, revision, deleted
		FROM projection_records
		WHERE key = ANY($1)`,
		pq.Array(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("loading projection records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.Key, &rec.AppID, &rec.ContentID,
			&rec.DocCurrent, &rec.DocDraft, &rec.DocPublished,
			&rec.Revision, &rec.Deleted,
		); err != nil {
			return nil, fmt.Errorf("scanning projection record: %w", err)
		}
		result[rec.Key] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projection records: %w", err)
	}
	return result, nil
}

// Save upserts all records in a single transaction so a batch's updates
// land atomically.
func (s *PostgresStore) Save(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO projection_records
					(key, app_id, content_id, doc_current, doc_draft, doc_published, revision, deleted, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (key) DO UPDATE SET
					doc_current = EXCLUDED.doc_current,
					doc_draft = EXCLUDED.doc_draft,
					doc_published = EXCLUDED.doc_published,
					revision = EXCLUDED.revision,
					deleted = EXCLUDED.deleted,
					updated_at = EXCLUDED.updated_at`,
				rec.Key, rec.AppID, rec.ContentID,
				rec.DocCurrent, rec.DocDraft, rec.DocPublished,
				rec.Revision, rec.Deleted, time.Now().UTC(),
			)
			if err != nil {
				return fmt.Errorf("upserting record %s: %w", rec.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving projection records: %w", err)
	}
	s.logger.Debug("records saved", "count", len(records))
	return nil
}

// Clear wipes all projection records.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, `TRUNCATE projection_records`); err != nil {
		return fmt.Errorf("clearing projection records: %w", err)
	}
	s.logger.Info("projection records cleared")
	return nil
}
