package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrIdempotencyConflict = errors.New("idempotency key reused with a different payload")

// StoredResponse is the first successful answer to an idempotent call.
type StoredResponse struct {
	RequestHash string          `json:"hash"`
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
}

// Idempotency remembers responses per (scope, key) for ttl. It uses redis
// when a client is given and a process-local map otherwise.
type Idempotency struct {
	client redis.UniversalClient
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]localEntry
	now   func() time.Time
}

type localEntry struct {
	resp    StoredResponse
	expires time.Time
}

func NewIdempotency(client redis.UniversalClient, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{client: client, ttl: ttl, local: map[string]localEntry{}, now: time.Now}
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("neon:idem:%s:%s", scope, key)
}

// Check returns the stored response for key, nil when none, or
// ErrIdempotencyConflict when the key was used with another payload.
func (c *Idempotency) Check(ctx context.Context, scope, key, requestHash string) (*StoredResponse, error) {
	var stored StoredResponse
	if c.client == nil {
		c.mu.Lock()
		entry, ok := c.local[idempotencyKey(scope, key)]
		c.mu.Unlock()
		if !ok || c.now().After(entry.expires) {
			return nil, nil
		}
		stored = entry.resp
	} else {
		raw, err := c.client.Get(ctx, idempotencyKey(scope, key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redis get idempotency key: %w", err)
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("decode idempotency entry: %w", err)
		}
	}
	if stored.RequestHash != requestHash {
		return nil, ErrIdempotencyConflict
	}
	return &stored, nil
}

// Save records resp unless another response already holds the key.
func (c *Idempotency) Save(ctx context.Context, scope, key string, resp StoredResponse) error {
	fullKey := idempotencyKey(scope, key)
	if c.client == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		now := c.now()
		if entry, ok := c.local[fullKey]; ok && now.Before(entry.expires) {
			if entry.resp.RequestHash != resp.RequestHash {
				return ErrIdempotencyConflict
			}
			return nil
		}
		c.local[fullKey] = localEntry{resp: resp, expires: now.Add(c.ttl)}
		return nil
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	ok, err := c.client.SetNX(ctx, fullKey, payload, c.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx idempotency key: %w", err)
	}
	if !ok {
		existing, err := c.Check(ctx, scope, key, resp.RequestHash)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrIdempotencyConflict
		}
	}
	return nil
}
