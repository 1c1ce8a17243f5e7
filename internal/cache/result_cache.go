package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thestrul/sacks/internal/config"
	"github.com/thestrul/sacks/internal/orchestrator"
)

const resultKeyPrefix = "sacks:result"
const scanBatchSize = 100

// ResultCache caches ProcessingResult by the absolute file path it came
// from, per SPEC_FULL.md's "Result caching" supplement.
type ResultCache interface {
	Get(ctx context.Context, path string) (*orchestrator.ProcessingResult, bool, error)
	Set(ctx context.Context, path string, result *orchestrator.ProcessingResult) error
	InvalidateAll(ctx context.Context) error
}

type redisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopResultCache struct{}

// NewResultCache returns a redis-backed cache when cfg.Enabled, a no-op
// cache otherwise, mirroring the teacher's NewDashboardCache fallback.
func NewResultCache(cfg config.CacheConfig) (ResultCache, error) {
	if !cfg.Enabled {
		return &noopResultCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisResultCache{client: client, ttl: ttl}, nil
}

// NewNoopResultCache returns a cache that never stores anything, used as a
// fallback when redis is unreachable at startup.
func NewNoopResultCache() ResultCache {
	return &noopResultCache{}
}

func (c *redisResultCache) Get(ctx context.Context, path string) (*orchestrator.ProcessingResult, bool, error) {
	payload, err := c.client.Get(ctx, resultKey(path)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var result orchestrator.ProcessingResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("decode processing result cache: %w", err)
	}
	return &result, true, nil
}

func (c *redisResultCache) Set(ctx context.Context, path string, result *orchestrator.ProcessingResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode processing result cache: %w", err)
	}
	if err := c.client.Set(ctx, resultKey(path), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisResultCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, resultKeyPrefix, scanBatchSize)
}

func resultKey(path string) string {
	sum := sha1.Sum([]byte(path))
	return fmt.Sprintf("%s:%s", resultKeyPrefix, hex.EncodeToString(sum[:]))
}

func (n *noopResultCache) Get(ctx context.Context, path string) (*orchestrator.ProcessingResult, bool, error) {
	return nil, false, nil
}

func (n *noopResultCache) Set(ctx context.Context, path string, result *orchestrator.ProcessingResult) error {
	return nil
}

func (n *noopResultCache) InvalidateAll(ctx context.Context) error { return nil }
