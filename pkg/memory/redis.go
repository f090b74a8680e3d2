package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pario-ai/supportdesk/pkg/models"
)

// RedisStore persists conversations as JSON records in Redis. The idle
// timeout becomes the key expiry, refreshed on every Save.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	maxMessages int
	idleTimeout time.Duration
}

// NewRedisStore wraps client. Keys are prefix + "session:" + id.
func NewRedisStore(client *redis.Client, prefix string, maxMessages int, idleTimeout time.Duration) *RedisStore {
	return &RedisStore{
		client:      client,
		prefix:      prefix,
		maxMessages: maxMessages,
		idleTimeout: idleTimeout,
	}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + "session:" + id
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, id string) (*Conversation, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get session %s: %w", id, err)
	}
	var rec models.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return FromRecord(rec, r.maxMessages), nil
}

// GetOrCreate implements Store. A new conversation is written immediately.
func (r *RedisStore) GetOrCreate(ctx context.Context, id string) (*Conversation, bool, error) {
	c, err := r.Get(ctx, id)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, false, err
	}
	c = NewConversation(id, r.maxMessages)
	if err := r.Save(ctx, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, c *Conversation) error {
	data, err := json.Marshal(c.ToRecord())
	if err != nil {
		return fmt.Errorf("encode session %s: %w", c.ID(), err)
	}
	if err := r.client.Set(ctx, r.key(c.ID()), data, r.idleTimeout).Err(); err != nil {
		return fmt.Errorf("redis set session %s: %w", c.ID(), err)
	}
	return nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", id, err)
	}
	return nil
}
