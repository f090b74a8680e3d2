package cache

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pario-ai/supportdesk/pkg/models"
)

// ErrCorruptSnapshot is returned when a snapshot cannot be decoded or holds
// invalid entries. The cache is left empty.
var ErrCorruptSnapshot = errors.New("corrupt cache snapshot")

// Snapshot is the persisted form of a QueryCache.
type Snapshot struct {
	Cache map[string]SnapshotEntry `json:"cache"`
	Stats SnapshotStats            `json:"stats"`
}

// SnapshotEntry is one persisted cache entry.
type SnapshotEntry struct {
	Query        string               `json:"query"`
	Response     models.QueryResponse `json:"response"`
	CachedAt     time.Time            `json:"cached_at"`
	LastAccessed time.Time            `json:"last_accessed"`
	HitCount     int                  `json:"hit_count"`
	Seq          uint64               `json:"seq,omitempty"` // insertion order
}

// SnapshotStats carries the hit and miss counters.
type SnapshotStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Snapshot captures every stored entry and the counters.
func (c *QueryCache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Cache: make(map[string]SnapshotEntry, len(c.items)),
		Stats: SnapshotStats{Hits: c.hits.Load(), Misses: c.misses.Load()},
	}
	for key, el := range c.items {
		e := el.Value.(*entry)
		snap.Cache[key] = SnapshotEntry{
			Query:        e.query,
			Response:     e.response,
			CachedAt:     e.cachedAt,
			LastAccessed: e.lastAccessed,
			HitCount:     e.hitCount,
			Seq:          e.seq,
		}
	}
	return snap
}

// Restore replaces the cache contents with snap. Entries already past their
// TTL are dropped. Counters are restored as saved.
func (c *QueryCache) Restore(snap Snapshot) error {
	for key, se := range snap.Cache {
		if se.Query == "" || se.CachedAt.IsZero() || se.HitCount < 0 {
			c.Clear()
			return fmt.Errorf("%w: invalid entry %q", ErrCorruptSnapshot, key)
		}
	}

	now := c.now()
	live := make([]SnapshotEntry, 0, len(snap.Cache))
	for _, se := range snap.Cache {
		if now.Sub(se.CachedAt) < c.ttl {
			live = append(live, se)
		}
	}
	// Oldest access first so the most recent ends up at the LRU front.
	sort.Slice(live, func(i, j int) bool {
		if !live[i].LastAccessed.Equal(live[j].LastAccessed) {
			return live[i].LastAccessed.Before(live[j].LastAccessed)
		}
		return live[i].Query < live[j].Query
	})
	if len(live) > c.maxSize {
		live = live[len(live)-c.maxSize:]
	}

	seqs := restoreSeqs(live)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, len(live))
	c.order.Init()
	c.seq = 0
	for i, se := range live {
		e := &entry{
			key:          Key(se.Query),
			query:        se.Query,
			response:     se.Response,
			cachedAt:     se.CachedAt,
			lastAccessed: se.LastAccessed,
			hitCount:     se.HitCount,
			seq:          seqs[i],
		}
		if e.seq > c.seq {
			c.seq = e.seq
		}
		if old, ok := c.items[e.key]; ok {
			c.order.Remove(old)
		}
		c.items[e.key] = c.order.PushFront(e)
	}
	c.hits.Store(snap.Stats.Hits)
	c.misses.Store(snap.Stats.Misses)
	return nil
}

// restoreSeqs returns the insertion sequence for each entry of live. Saved
// sequence numbers are kept; entries from snapshots that predate them are
// numbered after the rest, oldest CachedAt first.
func restoreSeqs(live []SnapshotEntry) []uint64 {
	seqs := make([]uint64, len(live))
	var top uint64
	var missing []int
	for i, se := range live {
		if se.Seq == 0 {
			missing = append(missing, i)
			continue
		}
		seqs[i] = se.Seq
		if se.Seq > top {
			top = se.Seq
		}
	}
	sort.SliceStable(missing, func(a, b int) bool {
		x, y := live[missing[a]], live[missing[b]]
		if !x.CachedAt.Equal(y.CachedAt) {
			return x.CachedAt.Before(y.CachedAt)
		}
		return x.Query < y.Query
	})
	for _, i := range missing {
		top++
		seqs[i] = top
	}
	return seqs
}

// WriteSnapshot encodes the cache as JSON to w.
func (c *QueryCache) WriteSnapshot(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.Snapshot()); err != nil {
		return fmt.Errorf("encode cache snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a JSON snapshot from r and restores it.
func (c *QueryCache) ReadSnapshot(r io.Reader) error {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		c.Clear()
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return c.Restore(snap)
}

// SaveFile writes a JSON snapshot to path, replacing it atomically.
func (c *QueryCache) SaveFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := c.WriteSnapshot(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadFile restores a JSON snapshot from path. A missing file is not an error.
func (c *QueryCache) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	return c.ReadSnapshot(f)
}
