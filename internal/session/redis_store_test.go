package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"trellis/api/internal/draft"
	"trellis/api/internal/entity"

	"github.com/alicebob/miniredis/v2"
)

// newTestStore starts a miniredis and a store pointed at it. Both are torn
// down with the test; the miniredis handle is returned for FastForward.
func newTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func testRecord(moduleID, owner string) Record {
	m := entity.Module{
		ID:     moduleID,
		Source: entity.SourceMerged,
		Title:  "Intro to X",
		SLTs:   []entity.SLT{{Index: 0, Text: "explain the rules"}},
	}
	return Record{
		ID:        "drs_" + moduleID + owner,
		ModuleID:  moduleID,
		Owner:     owner,
		Draft:     draft.FromModule(m, false),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestNewRedisStoreDefaults(t *testing.T) {
	store, _ := newTestStore(t, 0)

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if store.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want DefaultTTL", store.ttl)
	}
}

func TestSaveAndLookupDraftSession(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()
	rec := testRecord("mod_1", "author-1")

	if err := store.SaveDraftSession(ctx, rec); err != nil {
		t.Fatalf("SaveDraftSession: %v", err)
	}

	got, err := store.LookupDraftSession(ctx, "mod_1", "author-1")
	if err != nil {
		t.Fatalf("LookupDraftSession: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("session ID = %s, want %s", got.ID, rec.ID)
	}
	if got.Draft.Title != "Intro to X" {
		t.Errorf("draft title did not survive storage: %q", got.Draft.Title)
	}
}

func TestDraftEditsSurviveStorage(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()
	rec := testRecord("mod_1", "author-1")

	// Mutate the draft the way an editing session would
	rec.Draft.AddSLT("apply the rules")
	if err := rec.Draft.RemoveSLT(0); err != nil {
		t.Fatalf("RemoveSLT: %v", err)
	}

	if err := store.SaveDraftSession(ctx, rec); err != nil {
		t.Fatalf("SaveDraftSession: %v", err)
	}
	got, err := store.LookupDraftSession(ctx, "mod_1", "author-1")
	if err != nil {
		t.Fatalf("LookupDraftSession: %v", err)
	}

	// Record states must round-trip, not just text
	if len(got.Draft.SLTs) != 2 {
		t.Fatalf("slt records = %d, want 2", len(got.Draft.SLTs))
	}
	if got.Draft.SLTs[0].State() != draft.StateDeleted {
		t.Errorf("deleted marker did not survive, got %s", got.Draft.SLTs[0].State())
	}
	if got.Draft.SLTs[1].State() != draft.StateNew {
		t.Errorf("new record did not survive, got %s", got.Draft.SLTs[1].State())
	}
	if got.Draft.SLTs[1].Text() != "apply the rules" {
		t.Errorf("new record text = %q", got.Draft.SLTs[1].Text())
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.SaveDraftSession(ctx, testRecord("mod_1", "author-1")); err != nil {
		t.Fatalf("SaveDraftSession: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := store.LookupDraftSession(ctx, "mod_1", "author-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session: err = %v, want ErrNotFound", err)
	}
}

func TestSaveRestartsExpiry(t *testing.T) {
	store, s := newTestStore(t, time.Minute)
	ctx := context.Background()
	rec := testRecord("mod_1", "author-1")

	if err := store.SaveDraftSession(ctx, rec); err != nil {
		t.Fatalf("SaveDraftSession: %v", err)
	}

	// Half the TTL passes, then the author edits again
	s.FastForward(30 * time.Second)
	if err := store.SaveDraftSession(ctx, rec); err != nil {
		t.Fatalf("SaveDraftSession: %v", err)
	}

	// Past the original deadline the session must still be live
	s.FastForward(45 * time.Second)
	if _, err := store.LookupDraftSession(ctx, "mod_1", "author-1"); err != nil {
		t.Errorf("session should survive a refreshed expiry, got %v", err)
	}
}

func TestLookupUnknownOwner(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	if _, err := store.LookupDraftSession(context.Background(), "mod_1", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRevokeDraftSession(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.SaveDraftSession(ctx, testRecord("mod_1", "author-1")); err != nil {
		t.Fatalf("SaveDraftSession: %v", err)
	}
	if _, err := store.LookupDraftSession(ctx, "mod_1", "author-1"); err != nil {
		t.Fatalf("lookup before revoke: %v", err)
	}

	if err := store.RevokeDraftSession(ctx, "mod_1", "author-1"); err != nil {
		t.Fatalf("RevokeDraftSession: %v", err)
	}

	if _, err := store.LookupDraftSession(ctx, "mod_1", "author-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoked session: err = %v, want ErrNotFound", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	// Revoking a session that was never opened should not error
	if err := store.RevokeDraftSession(context.Background(), "mod_1", "nobody"); err != nil {
		t.Errorf("RevokeDraftSession without a session: %v", err)
	}
}

func TestSessionScoping(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	// Two authors editing two different modules
	if err := store.SaveDraftSession(ctx, testRecord("mod_1", "author-1")); err != nil {
		t.Fatalf("SaveDraftSession mod_1: %v", err)
	}
	if err := store.SaveDraftSession(ctx, testRecord("mod_2", "author-2")); err != nil {
		t.Fatalf("SaveDraftSession mod_2: %v", err)
	}

	// Same module, different owner: distinct sessions
	if _, err := store.LookupDraftSession(ctx, "mod_1", "author-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("author-2 on mod_1: err = %v, want ErrNotFound", err)
	}

	// Revoking one pair must not touch the other
	if err := store.RevokeDraftSession(ctx, "mod_1", "author-1"); err != nil {
		t.Fatalf("revoke mod_1: %v", err)
	}
	if _, err := store.LookupDraftSession(ctx, "mod_1", "author-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoked session: err = %v, want ErrNotFound", err)
	}
	got, err := store.LookupDraftSession(ctx, "mod_2", "author-2")
	if err != nil {
		t.Fatalf("lookup mod_2 after revoke: %v", err)
	}
	if got.Owner != "author-2" {
		t.Errorf("owner = %s, want author-2", got.Owner)
	}
}
