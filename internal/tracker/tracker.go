// Package tracker remembers which page versions were already processed,
// so a sync cycle can skip pages that did not change since the last run.
package tracker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fingerprint identifies one processed page version.
type Fingerprint struct {
	ContentHash string `json:"content_hash"`
	Timestamp   int64  `json:"timestamp"`
	ProcessedAt int64  `json:"processed_at"`
}

// Hash returns the content fingerprint hash.
func Hash(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// RedisTracker stores fingerprints in Redis with a TTL. An unreachable
// tracker degrades to "process everything": the sync pipeline is
// idempotent, skipping is only an optimization.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(redisURL string, ttl time.Duration) (*RedisTracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisTrackerWithClient(client, ttl), nil
}

// NewRedisTrackerWithClient wraps an existing Redis client.
func NewRedisTrackerWithClient(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisTracker{
		client: client,
		prefix: "page:",
		ttl:    ttl,
	}
}

func (t *RedisTracker) key(pageID int) string {
	return fmt.Sprintf("%s%d", t.prefix, pageID)
}

// MarkProcessed records the fingerprint of a processed page version.
func (t *RedisTracker) MarkProcessed(ctx context.Context, pageID int, content string, timestamp int64) error {
	fp := Fingerprint{
		ContentHash: Hash(content),
		Timestamp:   timestamp,
		ProcessedAt: time.Now().Unix(),
	}

	data, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}

	if err := t.client.Set(ctx, t.key(pageID), data, t.ttl).Err(); err != nil {
		return fmt.Errorf("save fingerprint for page %d: %w", pageID, err)
	}
	return nil
}

// Unchanged reports whether the page version was already processed.
// Any tracker error reads as "changed" so the page is processed again.
func (t *RedisTracker) Unchanged(ctx context.Context, pageID int, content string, timestamp int64) bool {
	data, err := t.client.Get(ctx, t.key(pageID)).Result()
	if err != nil {
		return false
	}

	var fp Fingerprint
	if err := json.Unmarshal([]byte(data), &fp); err != nil {
		return false
	}
	return fp.ContentHash == Hash(content) && fp.Timestamp == timestamp
}

// Forget drops the fingerprint, forcing a re-process on the next cycle.
func (t *RedisTracker) Forget(ctx context.Context, pageID int) error {
	if err := t.client.Del(ctx, t.key(pageID)).Err(); err != nil {
		return fmt.Errorf("forget page %d: %w", pageID, err)
	}
	return nil
}

// Ping checks whether Redis is reachable.
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
