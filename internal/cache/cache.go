// Package cache is the two-level TTL response cache: an in-memory LRU in
// front of a persistent key-value store. Entries expire lazily; an expired
// entry is reported absent by Get but stays readable through Stale until it
// is overwritten.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/observability"
	"github.com/couchcryptid/storm-risk-service/internal/store"
	"github.com/jonboulle/clockwork"
)

// envelope is the persisted form of an entry. Times are Unix milliseconds.
type envelope struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt int64           `json:"stored_at"`
	TTL      int64           `json:"ttl_ms"`
}

func (e envelope) fresh(nowMs int64) bool {
	return nowMs-e.StoredAt < e.TTL
}

// Cache is safe for concurrent use.
type Cache struct {
	kv      store.KV
	l1      *lruCache
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New builds a cache over kv holding at most l1Size decoded entries in memory.
func New(kv store.KV, l1Size int, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Cache {
	return &Cache{
		kv:      kv,
		l1:      newLRUCache(l1Size),
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Get decodes the entry for key into dest and reports whether a fresh entry
// existed. Missing, expired and corrupt entries and store errors all read as
// absent.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	_, ok := c.GetAt(ctx, key, dest)
	return ok
}

// GetAt is Get that also returns when the fresh entry was stored.
func (c *Cache) GetAt(ctx context.Context, key string, dest any) (time.Time, bool) {
	env, ok := c.lookup(ctx, key)
	if !ok || !env.fresh(c.clock.Now().UnixMilli()) {
		c.observe(key, "miss")
		return time.Time{}, false
	}
	if err := json.Unmarshal(env.Payload, dest); err != nil {
		c.logger.Warn("cache payload corrupt", "key", key, "error", err)
		c.observe(key, "miss")
		return time.Time{}, false
	}
	c.observe(key, "hit")
	return time.UnixMilli(env.StoredAt).UTC(), true
}

// Stale decodes the entry for key regardless of age and returns when it was
// stored. It is the degraded fallback when a refresh cannot reach upstream.
func (c *Cache) Stale(ctx context.Context, key string, dest any) (time.Time, bool) {
	env, ok := c.lookup(ctx, key)
	if !ok {
		c.observe(key, "miss")
		return time.Time{}, false
	}
	if err := json.Unmarshal(env.Payload, dest); err != nil {
		c.logger.Warn("cache payload corrupt", "key", key, "error", err)
		c.observe(key, "miss")
		return time.Time{}, false
	}
	c.observe(key, "stale")
	return time.UnixMilli(env.StoredAt).UTC(), true
}

// Set overwrites the entry for key. The in-memory layer is updated even when
// the persistent write fails, so the error only means the entry will not
// survive a restart.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %q: %w", key, err)
	}
	env := envelope{
		Payload:  payload,
		StoredAt: c.clock.Now().UnixMilli(),
		TTL:      ttl.Milliseconds(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode cache envelope %q: %w", key, err)
	}

	c.l1.put(key, env)
	if err := c.kv.Write(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("persist cache entry %q: %w", key, err)
	}
	return nil
}

func (c *Cache) lookup(ctx context.Context, key string) (envelope, bool) {
	if env, ok := c.l1.get(key); ok {
		return env, true
	}

	raw, ok, err := c.kv.Read(ctx, key)
	if err != nil {
		c.logger.Warn("cache store read failed", "key", key, "error", err)
		return envelope{}, false
	}
	if !ok {
		return envelope{}, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Payload == nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		return envelope{}, false
	}
	c.l1.put(key, env)
	return env, true
}

func (c *Cache) observe(key, result string) {
	c.metrics.CacheLookups.WithLabelValues(namespaceOf(key), result).Inc()
}

// namespaceOf returns the key prefix before the first colon.
func namespaceOf(key string) string {
	ns, _, _ := strings.Cut(key, ":")
	return ns
}
