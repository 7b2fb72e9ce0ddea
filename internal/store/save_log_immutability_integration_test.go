package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// openIntegrationDB connects to the designated test database and brings the
// schema up to date. Tests using it skip unless TEST_DATABASE_URL is set.
func openIntegrationDB(ctx context.Context, t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

// insertSaveEntry seeds one audit row. The immutability trigger blocks
// DELETE, so cleanup truncates instead.
func insertSaveEntry(ctx context.Context, t *testing.T, db *sql.DB, saveID string) {
	t.Helper()
	_, err := db.ExecContext(ctx, `
		INSERT INTO save_log (save_id, module_id, session_id, owner_name, status, changes)
		VALUES ($1, 'mod_test', 'drs_test', 'Avery', 'DRAFTING', '{}'::jsonb)
	`, saveID)
	if err != nil {
		t.Fatalf("insert save entry: %v", err)
	}
	t.Cleanup(func() { _, _ = db.ExecContext(context.Background(), `TRUNCATE save_log`) })
}

// requireImmutableViolation asserts the audit trigger rejected the statement
// with its designated error code and message.
func requireImmutableViolation(t *testing.T, err error, op string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s on save_log succeeded, want trigger rejection", op)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("err = %v, want *pgconn.PgError", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("sqlstate = %s, want 55000", pgErr.SQLState())
	}
	want := "save_log is immutable; " + op + " is not allowed"
	if pgErr.Message != want {
		t.Fatalf("message = %q, want %q", pgErr.Message, want)
	}
}

func TestSaveLogRejectsUpdate(t *testing.T) {
	ctx := context.Background()
	db := openIntegrationDB(ctx, t)

	insertSaveEntry(ctx, t, db, "sav_upd")
	_, err := db.ExecContext(ctx, `UPDATE save_log SET status = 'APPROVED' WHERE save_id = 'sav_upd'`)
	requireImmutableViolation(t, err, "UPDATE")
}

func TestSaveLogRejectsDelete(t *testing.T) {
	ctx := context.Background()
	db := openIntegrationDB(ctx, t)

	insertSaveEntry(ctx, t, db, "sav_del")
	_, err := db.ExecContext(ctx, `DELETE FROM save_log WHERE save_id = 'sav_del'`)
	requireImmutableViolation(t, err, "DELETE")
}

func TestSaveLogAcceptsInsert(t *testing.T) {
	ctx := context.Background()
	db := openIntegrationDB(ctx, t)

	insertSaveEntry(ctx, t, db, "sav_ins")

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM save_log WHERE save_id = 'sav_ins'`).Scan(&count); err != nil {
		t.Fatalf("count save entries: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
