package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"neon/internal/platform/config"
)

var ErrCacheMiss = errors.New("cache miss")

// NewRedis returns a connected client, or an error when the server does not
// answer a ping.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Observer is told about every lookup so hit ratios can be exported.
type Observer interface {
	RecordCacheLookup(hit bool)
}

// PendingCounts caches the approval badge per tenant and user. Keys carry a
// per-tenant version that invalidation bumps, so a count computed against an
// older version lands under a key nobody reads. A nil client turns every call
// into a miss or no-op.
type PendingCounts struct {
	client   redis.UniversalClient
	ttl      time.Duration
	observer Observer
}

func NewPendingCounts(client redis.UniversalClient, ttl time.Duration, observer Observer) *PendingCounts {
	return &PendingCounts{client: client, ttl: ttl, observer: observer}
}

func versionKey(tenantID string) string {
	return "neon:pending-version:" + tenantID
}

func pendingKey(tenantID, userID string, version int64) string {
	return fmt.Sprintf("neon:pending:%s:v%d:%s", tenantID, version, userID)
}

// Version returns the tenant's current cache version; 0 until the first
// invalidation.
func (c *PendingCounts) Version(ctx context.Context, tenantID string) (int64, error) {
	if c.client == nil {
		return 0, nil
	}
	v, err := c.client.Get(ctx, versionKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get pending version: %w", err)
	}
	return v, nil
}

func (c *PendingCounts) Get(ctx context.Context, tenantID, userID string, version int64) (int, error) {
	if c.client == nil {
		return 0, ErrCacheMiss
	}
	raw, err := c.client.Get(ctx, pendingKey(tenantID, userID, version)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	if err != nil {
		return 0, fmt.Errorf("redis get pending count: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("decode pending count %q: %w", raw, err)
	}
	return n, nil
}

// GetPendingCount reports a miss on any failure so callers recompute. The
// returned version is what SetPendingCount must be given.
func (c *PendingCounts) GetPendingCount(ctx context.Context, tenantID, userID string) (int, int64, bool) {
	version, err := c.Version(ctx, tenantID)
	n := 0
	if err == nil {
		n, err = c.Get(ctx, tenantID, userID, version)
	} else {
		// An unknown version must never let a write through.
		version = -1
	}
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		zap.L().Warn("pending count cache read failed", zap.Error(err))
	}
	hit := err == nil
	if c.observer != nil {
		c.observer.RecordCacheLookup(hit)
	}
	return n, version, hit
}

func (c *PendingCounts) SetPendingCount(ctx context.Context, tenantID, userID string, version int64, n int) {
	if c.client == nil || version < 0 {
		return
	}
	if err := c.client.Set(ctx, pendingKey(tenantID, userID, version), n, c.ttl).Err(); err != nil {
		zap.L().Warn("pending count cache write failed", zap.Error(err))
	}
}

// InvalidatePendingCounts retires every cached badge of the tenant by bumping
// its version, then sweeps the old keys.
func (c *PendingCounts) InvalidatePendingCounts(ctx context.Context, tenantID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, versionKey(tenantID)).Err(); err != nil {
		zap.L().Warn("pending count version bump failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	if err := c.deleteByPattern(ctx, fmt.Sprintf("neon:pending:%s:*", tenantID)); err != nil {
		zap.L().Warn("pending count cache invalidation failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

func (c *PendingCounts) deleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	return nil
}
