package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trellis/api/internal/session"
)

type PostgresStore struct {
	db *sql.DB

	// SessionTTL is the idle lifetime applied to draft sessions when this
	// store serves as the session backend. Zero means session.DefaultTTL.
	SessionTTL time.Duration
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveDraftSession upserts the session for a module/owner pair and pushes
// its expiry out. Matches the Redis backend: one live session per pair,
// a save restarts the idle clock.
func (s *PostgresStore) SaveDraftSession(ctx context.Context, rec session.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	ttl := s.SessionTTL
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	expiresAt := time.Now().Add(ttl)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO draft_sessions (module_id, owner_name, session_id, payload, expires_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (module_id, owner_name)
		DO UPDATE SET session_id=EXCLUDED.session_id, payload=EXCLUDED.payload, expires_at=EXCLUDED.expires_at, updated_at=NOW()
	`, rec.ModuleID, rec.Owner, rec.ID, string(payload), expiresAt)
	if err != nil {
		return fmt.Errorf("save draft session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupDraftSession(ctx context.Context, moduleID, owner string) (session.Record, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload
		FROM draft_sessions
		WHERE module_id=$1 AND owner_name=$2 AND expires_at > NOW()
	`, moduleID, owner).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, session.ErrNotFound
	}
	if err != nil {
		return session.Record{}, fmt.Errorf("lookup draft session: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return session.Record{}, fmt.Errorf("unmarshal session record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) RevokeDraftSession(ctx context.Context, moduleID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM draft_sessions WHERE module_id=$1 AND owner_name=$2
	`, moduleID, owner)
	if err != nil {
		return fmt.Errorf("revoke draft session: %w", err)
	}
	return nil
}

// DeleteExpiredDraftSessions removes sessions past their expiry. Redis
// expires keys on its own; the Postgres backend needs this swept
// periodically.
func (s *PostgresStore) DeleteExpiredDraftSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM draft_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired draft sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired draft sessions rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) InsertSaveLog(ctx context.Context, entry SaveLogEntry) error {
	encodedChanges, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshal save changes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO save_log (save_id, module_id, session_id, owner_name, status, slt_hash, changes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7::jsonb)
	`, entry.SaveID, entry.ModuleID, entry.SessionID, entry.Owner, entry.Status, entry.SLTHash, string(encodedChanges))
	if err != nil {
		return fmt.Errorf("insert save log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSaveLog(ctx context.Context, moduleID string, limit int) ([]SaveLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, save_id, module_id, session_id, owner_name, status, COALESCE(slt_hash, ''), changes, created_at
		FROM save_log
		WHERE module_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, moduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list save log: %w", err)
	}
	defer rows.Close()

	items := make([]SaveLogEntry, 0)
	for rows.Next() {
		var item SaveLogEntry
		var changesRaw []byte
		if err := rows.Scan(
			&item.ID,
			&item.SaveID,
			&item.ModuleID,
			&item.SessionID,
			&item.Owner,
			&item.Status,
			&item.SLTHash,
			&changesRaw,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan save log: %w", err)
		}
		_ = json.Unmarshal(changesRaw, &item.Changes)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate save log: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertCatalogEntry(ctx context.Context, entry CatalogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_entries (id, kind, source, status, title, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, id)
		DO UPDATE SET source=EXCLUDED.source, status=EXCLUDED.status, title=EXCLUDED.title, description=EXCLUDED.description, updated_at=NOW()
	`, entry.ID, entry.Kind, entry.Source, entry.Status, entry.Title, entry.Description)
	if err != nil {
		return fmt.Errorf("upsert catalog entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCatalogEntries(ctx context.Context, kind string) ([]CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, source, status, title, description, updated_at
		FROM catalog_entries
		WHERE ($1='' OR kind=$1)
		ORDER BY updated_at DESC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	defer rows.Close()

	items := make([]CatalogEntry, 0)
	for rows.Next() {
		var item CatalogEntry
		if err := rows.Scan(&item.ID, &item.Kind, &item.Source, &item.Status, &item.Title, &item.Description, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CatalogCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)::int
		FROM catalog_entries
		GROUP BY kind
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan catalog count: %w", err)
		}
		counts[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) PendingApprovalCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM catalog_entries WHERE status='PENDING_APPROVAL'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending approvals: %w", err)
	}
	return count, nil
}

// Ping reports whether Postgres still answers. The health endpoint is its
// only caller.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
