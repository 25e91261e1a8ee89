// Package cache keeps the taxonomy catalog close to the handlers. With a
// Redis address configured the entries live there under a per-entity-type
// key; without one a process-local TTL map serves the same role.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"agente-digital/config"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

type CatalogCache struct {
	cfg    config.CacheConfig
	rdb    *redis.Client
	logger *utils.Logger

	mu    sync.RWMutex
	local map[string]localEntry
}

type localEntry struct {
	entries   []store.CatalogEntry
	expiresAt time.Time
}

func NewCatalogCache(cfg config.CacheConfig, logger *utils.Logger) *CatalogCache {
	c := &CatalogCache{cfg: cfg, logger: logger, local: map[string]localEntry{}}
	if cfg.RedisEnabled() {
		c.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return c
}

func (c *CatalogCache) ttl() time.Duration {
	if c.cfg.TTL > 0 {
		return c.cfg.TTL
	}
	return 5 * time.Minute
}

func key(entityType string) string {
	if entityType == "" {
		entityType = "todas"
	}
	return "taxonomia:catalogo:" + entityType
}

// Get returns the cached catalog for the entity type, or nil on a miss.
// Redis errors degrade to a miss so the database query still answers.
func (c *CatalogCache) Get(ctx context.Context, entityType string) []store.CatalogEntry {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, key(entityType)).Bytes()
		if err == nil {
			var out []store.CatalogEntry
			if json.Unmarshal(raw, &out) == nil {
				return out
			}
		} else if err != redis.Nil {
			c.logger.Warnf("cache redis: %v", err)
		}
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.local[key(entityType)]
	if !ok || time.Now().After(e.expiresAt) {
		return nil
	}
	return e.entries
}

func (c *CatalogCache) Set(ctx context.Context, entityType string, entries []store.CatalogEntry) {
	if c.rdb != nil {
		raw, err := json.Marshal(entries)
		if err != nil {
			return
		}
		if err := c.rdb.Set(ctx, key(entityType), raw, c.ttl()).Err(); err != nil {
			c.logger.Warnf("cache redis: %v", err)
		}
		return
	}
	c.mu.Lock()
	c.local[key(entityType)] = localEntry{entries: entries, expiresAt: time.Now().Add(c.ttl())}
	c.mu.Unlock()
}

// Invalidate drops every cached variant. Called after catalog edits.
func (c *CatalogCache) Invalidate(ctx context.Context) {
	if c.rdb != nil {
		iter := c.rdb.Scan(ctx, 0, "taxonomia:catalogo:*", 100).Iterator()
		for iter.Next(ctx) {
			c.rdb.Del(ctx, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.logger.Warnf("cache redis: %v", err)
		}
		return
	}
	c.mu.Lock()
	c.local = map[string]localEntry{}
	c.mu.Unlock()
}

func (c *CatalogCache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
