package store

import (
	"time"

	"trellis/api/internal/contentdb"
)

// SaveLogEntry is one row of the append-only save audit log. A row is
// written once per successful draft save and never changes; the database
// enforces that with blocking triggers.
type SaveLogEntry struct {
	ID        int64
	SaveID    string
	ModuleID  string
	SessionID string
	Owner     string
	Status    string
	SLTHash   string
	Changes   contentdb.ChangeCounts
	CreatedAt time.Time
}

// CatalogEntry is the local projection of one reconciled entity. The
// catalog feeds search seeding and the stats view; the upstream stores
// remain the source of truth.
type CatalogEntry struct {
	ID          string
	Kind        string
	Source      string
	Status      string
	Title       string
	Description string
	UpdatedAt   time.Time
}
