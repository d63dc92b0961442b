package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisReadCache drops cached read views when a payout settles. The balance
// and recent-transactions views are owned by read-side services; this cache
// only guarantees their keys are gone so the next read refetches.
type RedisReadCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisReadCache creates a read cache invalidator with the given key prefix.
func NewRedisReadCache(client redis.UniversalClient, prefix string) *RedisReadCache {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "treegar:views"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisReadCache{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (r *RedisReadCache) InvalidateBalance(ctx context.Context, userID uuid.UUID) error {
	return r.drop(ctx, fmt.Sprintf("%s:balance:%s", r.prefix, userID))
}

func (r *RedisReadCache) InvalidateRecentTransactions(ctx context.Context, userID uuid.UUID) error {
	return r.drop(ctx, fmt.Sprintf("%s:recent_transactions:%s", r.prefix, userID))
}

func (r *RedisReadCache) drop(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}

// NoopReadCache is used when Redis is unavailable at startup; reads fall back
// to their own TTLs.
type NoopReadCache struct{}

func (NoopReadCache) InvalidateBalance(ctx context.Context, userID uuid.UUID) error {
	log.Printf("level=warn component=read_cache mode=fallback msg=\"balance invalidation skipped\" user_id=%s", userID)
	return nil
}

func (NoopReadCache) InvalidateRecentTransactions(ctx context.Context, userID uuid.UUID) error {
	log.Printf("level=warn component=read_cache mode=fallback msg=\"recent transactions invalidation skipped\" user_id=%s", userID)
	return nil
}
