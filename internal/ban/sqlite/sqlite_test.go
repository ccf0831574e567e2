package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/ban"
)

func newTestPersister(t *testing.T) *Persister {
	t.Helper()
	p, err := New(filepath.Join(t.TempDir(), "bans.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSaveLoadDelete(t *testing.T) {
	p := newTestPersister(t)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	rec := ban.Record{IP: "10.0.0.1", Expiry: expiry, Reason: "spam"}
	if err := p.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	recs, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.IP != rec.IP || got.Reason != rec.Reason || !got.Expiry.Equal(expiry) {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	if err := p.Delete("10.0.0.1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := p.Delete("10.0.0.1"); err != nil {
		t.Fatalf("redundant Delete: %v", err)
	}
	recs, err = p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records after delete, want 0", len(recs))
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	p := newTestPersister(t)

	first := ban.Record{IP: "10.0.0.1", Expiry: time.Now().Add(time.Hour), Reason: "first"}
	second := ban.Record{IP: "10.0.0.1", Expiry: time.Now().Add(2 * time.Hour), Reason: "second"}
	if err := p.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := p.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	recs, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(recs) != 1 || recs[0].Reason != "second" {
		t.Fatalf("upsert did not replace: %+v", recs)
	}
}

func TestStoreFiltersExpiredOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.db")
	p, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	live := ban.Record{IP: "10.0.0.1", Expiry: now.Add(time.Hour), Reason: "live"}
	stale := ban.Record{IP: "10.0.0.2", Expiry: now.Add(-time.Hour), Reason: "stale"}
	if err := p.Save(live); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := p.Save(stale); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p.Close()

	// Reopen the way the server does on restart and feed it to the store.
	p2, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()

	logger := zerolog.Nop()
	store, err := ban.NewStore(&logger, p2, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if !store.IsBanned("10.0.0.1") {
		t.Fatal("live ban lost across restart")
	}
	if store.IsBanned("10.0.0.2") {
		t.Fatal("stale ban survived restart")
	}

	// The store also scrubbed the stale row from disk.
	recs, err := p2.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(recs) != 1 || recs[0].IP != "10.0.0.1" {
		t.Fatalf("disk state after restart: %+v", recs)
	}
}
