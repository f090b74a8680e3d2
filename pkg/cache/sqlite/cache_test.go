package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/supportdesk/pkg/cache"
	"github.com/pario-ai/supportdesk/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadEmpty(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Cache) != 0 || snap.Stats.Hits != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	qc := cache.New(10, time.Hour)
	qc.Set("How do I reset my password?", models.QueryResponse{
		Answer:     "Use the forgot password link.",
		Confidence: 0.8,
		Documents:  []models.Document{{Content: "reset steps", Source: "account.md", ChunkIndex: 2}},
	})
	qc.Set("billing cycle", models.QueryResponse{Answer: "Monthly", Confidence: 0.7})
	qc.Get("how do i reset my password")
	qc.Get("unknown")

	if err := s.Save(ctx, qc.Snapshot()); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Cache) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap.Cache))
	}
	if snap.Stats.Hits != 1 || snap.Stats.Misses != 1 {
		t.Errorf("expected 1 hit 1 miss, got %+v", snap.Stats)
	}

	restored := cache.New(10, time.Hour)
	if err := restored.Restore(snap); err != nil {
		t.Fatal(err)
	}
	got, ok := restored.Get("HOW do I reset my password")
	if !ok {
		t.Fatal("expected hit after restore from sqlite")
	}
	if len(got.Documents) != 1 || got.Documents[0].Source != "account.md" {
		t.Errorf("documents not preserved: %+v", got.Documents)
	}
	for key, e := range qc.Snapshot().Cache {
		if snap.Cache[key].Seq != e.Seq {
			t.Errorf("seq for %s = %d, want %d", e.Query, snap.Cache[key].Seq, e.Seq)
		}
	}

	// A second save replaces rather than appends.
	qc.Clear()
	if err := s.Save(ctx, qc.Snapshot()); err != nil {
		t.Fatal(err)
	}
	snap, err = s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Cache) != 0 {
		t.Errorf("expected empty snapshot after saving cleared cache, got %d", len(snap.Cache))
	}
}

func TestLoadCorruptResponse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.db.Exec(
		`INSERT INTO cache_entries (query_key, query, response, cached_at, last_accessed, hit_count)
		 VALUES ('k', 'q', 'not json', ?, ?, 0)`, time.Now().UTC(), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(ctx); !errors.Is(err, cache.ErrCorruptSnapshot) {
		t.Errorf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	qc := cache.New(10, time.Hour)
	qc.Set("q", models.QueryResponse{Answer: "a"})
	if err := s.Save(ctx, qc.Snapshot()); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Cache) != 0 {
		t.Errorf("expected no entries after clear, got %d", len(snap.Cache))
	}
}
