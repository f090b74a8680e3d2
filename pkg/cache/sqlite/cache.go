// Package sqlite persists query cache snapshots in a SQLite database so a
// restarted server keeps its warm cache.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/supportdesk/pkg/cache"
	"github.com/pario-ai/supportdesk/pkg/models"
)

// Store saves and loads cache.Snapshot values.
type Store struct {
	db *sql.DB
}

const createCacheTables = `
CREATE TABLE IF NOT EXISTS cache_entries (
	query_key TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	response BLOB NOT NULL,
	cached_at DATETIME NOT NULL,
	last_accessed DATETIME NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 0,
	seq INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS cache_stats (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	hits INTEGER NOT NULL,
	misses INTEGER NOT NULL,
	saved_at DATETIME NOT NULL
);
`

// New opens (or creates) the snapshot database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db}, nil
}

// Save replaces the stored snapshot with snap.
func (s *Store) Save(ctx context.Context, snap cache.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("truncate cache entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (query_key, query, response, cached_at, last_accessed, hit_count, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for key, e := range snap.Cache {
		resp, err := json.Marshal(e.Response)
		if err != nil {
			return fmt.Errorf("encode response for %s: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, key, e.Query, resp,
			e.CachedAt.UTC(), e.LastAccessed.UTC(), e.HitCount, int64(e.Seq)); err != nil {
			return fmt.Errorf("cache put: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_stats (id, hits, misses, saved_at) VALUES (1, ?, ?, ?)`,
		snap.Stats.Hits, snap.Stats.Misses, time.Now().UTC()); err != nil {
		return fmt.Errorf("save cache stats: %w", err)
	}

	return tx.Commit()
}

// Load returns the stored snapshot. An empty database yields an empty snapshot.
// Undecodable rows fail with cache.ErrCorruptSnapshot.
func (s *Store) Load(ctx context.Context) (cache.Snapshot, error) {
	snap := cache.Snapshot{Cache: make(map[string]cache.SnapshotEntry)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT query_key, query, response, cached_at, last_accessed, hit_count, seq FROM cache_entries`)
	if err != nil {
		return snap, fmt.Errorf("query cache entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key  string
			e    cache.SnapshotEntry
			resp []byte
			seq  int64
		)
		if err := rows.Scan(&key, &e.Query, &resp, &e.CachedAt, &e.LastAccessed, &e.HitCount, &seq); err != nil {
			return cache.Snapshot{}, fmt.Errorf("%w: scan row: %v", cache.ErrCorruptSnapshot, err)
		}
		var r models.QueryResponse
		if err := json.Unmarshal(resp, &r); err != nil {
			return cache.Snapshot{}, fmt.Errorf("%w: response for %s: %v", cache.ErrCorruptSnapshot, key, err)
		}
		e.Response = r
		e.Seq = uint64(seq)
		snap.Cache[key] = e
	}
	if err := rows.Err(); err != nil {
		return cache.Snapshot{}, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT hits, misses FROM cache_stats WHERE id = 1`).
		Scan(&snap.Stats.Hits, &snap.Stats.Misses)
	if err != nil && err != sql.ErrNoRows {
		return cache.Snapshot{}, fmt.Errorf("query cache stats: %w", err)
	}
	return snap, nil
}

// Clear removes the stored snapshot.
func (s *Store) Clear(ctx context.Context) error {
	for _, q := range []string{`DELETE FROM cache_entries`, `DELETE FROM cache_stats`} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("cache clear: %w", err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
