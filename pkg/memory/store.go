package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrSessionNotFound is returned for session ids that were never created,
// were deleted, or went idle.
var ErrSessionNotFound = errors.New("session not found")

// Store holds conversations by session id.
type Store interface {
	// Get returns an existing conversation or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Conversation, error)
	// GetOrCreate returns the conversation for id, creating it if needed.
	// created reports whether a new one was made.
	GetOrCreate(ctx context.Context, id string) (conv *Conversation, created bool, err error)
	// Save persists changes made to conv. Stores that hand out shared
	// pointers may treat this as a no-op.
	Save(ctx context.Context, conv *Conversation) error
	// Delete removes id. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// InMemoryStore keeps conversations in process memory. Sessions idle longer
// than the idle timeout are treated as gone and swept by Evict.
type InMemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Conversation
	maxMessages int
	idleTimeout time.Duration
	now         func() time.Time

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewInMemoryStore creates a store. idleTimeout of zero keeps sessions forever.
func NewInMemoryStore(maxMessages int, idleTimeout time.Duration) *InMemoryStore {
	return &InMemoryStore{
		sessions:    make(map[string]*Conversation),
		maxMessages: maxMessages,
		idleTimeout: idleTimeout,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

func (s *InMemoryStore) idle(c *Conversation, now time.Time) bool {
	return s.idleTimeout > 0 && now.Sub(c.LastActive()) > s.idleTimeout
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	c, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.idle(c, s.now()) {
		s.mu.Lock()
		if cur, ok := s.sessions[id]; ok && cur == c {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// GetOrCreate implements Store.
func (s *InMemoryStore) GetOrCreate(_ context.Context, id string) (*Conversation, bool, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.sessions[id]; ok && !s.idle(c, now) {
		return c, false, nil
	}
	c := newConversation(id, s.maxMessages, s.now)
	s.sessions[id] = c
	return c, true, nil
}

// Save implements Store. Conversations are shared pointers, so nothing to do.
func (s *InMemoryStore) Save(context.Context, *Conversation) error { return nil }

// Delete implements Store.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked sessions, idle ones included until swept.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs lists tracked session ids in sorted order.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Evict removes every idle session and returns how many were dropped.
func (s *InMemoryStore) Evict() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.sessions {
		if s.idle(c, now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// StartJanitor runs Evict every interval until Close is called.
func (s *InMemoryStore) StartJanitor(interval time.Duration) {
	if s.idleTimeout <= 0 || interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.Evict()
			}
		}
	}()
}

// Close stops the janitor.
func (s *InMemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}
