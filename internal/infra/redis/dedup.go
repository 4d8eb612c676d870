package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultDedupTTL = 24 * time.Hour
	dedupKeyPrefix  = "simplesla:notified:"
)

// DedupGuard records which build completions already produced a ticket, so a
// redelivered completion event does not post the same build twice.
type DedupGuard struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewDedupGuard(client *goredis.Client, ttl time.Duration) (*DedupGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	return &DedupGuard{
		client: client,
		ttl:    ttl,
	}, nil
}

// FirstDelivery reports true exactly once per key within the TTL.
func (g *DedupGuard) FirstDelivery(ctx context.Context, key string) (bool, error) {
	if g == nil || g.client == nil {
		return false, fmt.Errorf("dedup guard is not initialized")
	}

	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return false, fmt.Errorf("dedup key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ok, err := g.client.SetNX(ctx, redisKey(trimmed), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record delivery: %w", err)
	}

	return ok, nil
}

// Keys may carry job names with arbitrary characters; hash them.
func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return dedupKeyPrefix + hex.EncodeToString(sum[:])
}
