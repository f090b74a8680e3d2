// Package cache implements the in-memory query cache: exact match on a
// normalized query, bounded by TTL and size, evicting least recently used.
package cache

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pario-ai/supportdesk/pkg/models"
)

// stripped are removed from normalized queries.
var stripped = strings.NewReplacer("?", "", "!", "", ".", "", ",", "")

// Normalize canonicalizes a query: lowercase, trim, collapse whitespace,
// then drop ? ! . and , characters.
func Normalize(query string) string {
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return stripped.Replace(q)
}

// Key returns the hex md5 digest of the normalized query.
func Key(query string) string {
	sum := md5.Sum([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	key          string
	query        string
	response     models.QueryResponse
	cachedAt     time.Time
	lastAccessed time.Time
	hitCount     int
	seq          uint64
}

// Option configures a QueryCache.
type Option func(*QueryCache)

// WithClock overrides the time source. Used by tests to step past the TTL.
func WithClock(now func() time.Time) Option {
	return func(c *QueryCache) { c.now = now }
}

// QueryCache is safe for concurrent use.
type QueryCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	seq     uint64
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a QueryCache holding at most maxSize entries for ttl each.
func New(maxSize int, ttl time.Duration, opts ...Option) *QueryCache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &QueryCache{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *QueryCache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.cachedAt) >= c.ttl
}

// Get returns the cached response for query. A hit bumps the entry's hit
// count and recency; an expired entry is dropped and reported as a miss.
func (c *QueryCache) Get(query string) (models.QueryResponse, bool) {
	key := Key(query)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return models.QueryResponse{}, false
	}
	e := el.Value.(*entry)
	if c.expired(e, now) {
		c.removeElement(el)
		c.misses.Add(1)
		return models.QueryResponse{}, false
	}

	e.hitCount++
	e.lastAccessed = now
	c.order.MoveToFront(el)
	c.hits.Add(1)
	return e.response, true
}

// Set stores response under query, replacing any existing entry for the same
// normalized key. Inserting a new key into a full cache evicts one entry.
func (c *QueryCache) Set(query string, response models.QueryResponse) {
	key := Key(query)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.query = query
		e.response = response
		e.cachedAt = now
		e.lastAccessed = now
		e.hitCount = 0
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.maxSize {
		c.evict(now)
	}

	c.seq++
	e := &entry{
		key:          key,
		query:        query,
		response:     response,
		cachedAt:     now,
		lastAccessed: now,
		seq:          c.seq,
	}
	c.items[key] = c.order.PushFront(e)
}

// evict frees exactly one slot. An expired entry goes first, otherwise the
// least recently used one. Caller holds mu.
func (c *QueryCache) evict(now time.Time) {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		if c.expired(el.Value.(*entry), now) {
			c.removeElement(el)
			return
		}
	}
	if back := c.order.Back(); back != nil {
		c.removeElement(back)
	}
}

func (c *QueryCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

// Invalidate removes the entry for query. It reports whether one existed.
func (c *QueryCache) Invalidate(query string) bool {
	key := Key(query)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// InvalidateMatching removes every entry whose original query contains
// substr, ignoring case, and returns how many were removed.
func (c *QueryCache) InvalidateMatching(substr string) int {
	needle := strings.ToLower(substr)
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if strings.Contains(strings.ToLower(el.Value.(*entry).query), needle) {
			c.removeElement(el)
			n++
		}
		el = next
	}
	return n
}

// Clear drops all entries and zeroes the hit and miss counters.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Len returns the number of stored entries, including ones not yet found expired.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns current size and hit accounting.
func (c *QueryCache) Stats() models.CacheStats {
	c.mu.Lock()
	size := len(c.items)
	hits, misses := c.hits.Load(), c.misses.Load()
	c.mu.Unlock()

	total := hits + misses
	var rate float64
	if total > 0 {
		rate = round2(float64(hits) / float64(total) * 100)
	}
	return models.CacheStats{
		Size:           size,
		MaxSize:        c.maxSize,
		Hits:           hits,
		Misses:         misses,
		TotalRequests:  total,
		HitRatePercent: rate,
		TTLMinutes:     c.ttl.Minutes(),
	}
}

// Popular returns up to n unexpired entries ordered by hit count, highest
// first. Equal counts keep insertion order.
func (c *QueryCache) Popular(n int) []models.PopularQuery {
	if n <= 0 {
		return nil
	}
	now := c.now()

	c.mu.Lock()
	entries := make([]*entry, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !c.expired(e, now) {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].hitCount != entries[j].hitCount {
			return entries[i].hitCount > entries[j].hitCount
		}
		return entries[i].seq < entries[j].seq
	})
	if len(entries) > n {
		entries = entries[:n]
	}

	out := make([]models.PopularQuery, len(entries))
	for i, e := range entries {
		out[i] = models.PopularQuery{Query: e.query, HitCount: e.hitCount}
	}
	return out
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
