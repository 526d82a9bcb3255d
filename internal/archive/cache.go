package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"concord/api/internal/store"
)

// RedisCache shares decompressed blobs across instances. Failures are
// treated as cache misses; the archive store never depends on Redis
// being up.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
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

	return NewRedisCacheWithClient(client), nil
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "archive:",
		ttl:    12 * time.Hour,
	}
}

func (c *RedisCache) key(archiveID string) string {
	return c.prefix + archiveID
}

func (c *RedisCache) Get(ctx context.Context, archiveID string) ([]store.VersionEntry, bool) {
	data, err := c.client.Get(ctx, c.key(archiveID)).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []store.VersionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (c *RedisCache) Set(ctx context.Context, archiveID string, entries []store.VersionEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(archiveID), data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache is the in-process fallback when Redis is not configured.
type MemoryCache struct {
	entries *lru.Cache[string, []store.VersionEntry]
}

func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, []store.VersionEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create archive cache: %w", err)
	}
	return &MemoryCache{entries: cache}, nil
}

func (c *MemoryCache) Get(_ context.Context, archiveID string) ([]store.VersionEntry, bool) {
	return c.entries.Get(archiveID)
}

func (c *MemoryCache) Set(_ context.Context, archiveID string, entries []store.VersionEntry) {
	c.entries.Add(archiveID, entries)
}
