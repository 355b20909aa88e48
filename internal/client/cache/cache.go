// Package cache is a two-tier TTL cache for slowly changing lookups such as
// weather or tide data. Entries live in memory and in the durable KV under
// Prefix; the memory tier keeps serving when durable writes fail.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/client/storage"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
	"golang.org/x/sync/singleflight"
)

// Prefix namespaces cache entries in the durable KV.
const Prefix = "cache:"

type Cache struct {
	kv     storage.KV
	clock  timex.Clock
	logger logging.Logger

	mu  sync.Mutex
	mem map[string]models.CacheEntry
	// writeMu orders writes and evictions of a key across both tiers.
	writeMu sync.Mutex
	group   singleflight.Group
}

func New(kv storage.KV, clock timex.Clock, logger logging.Logger) *Cache {
	return &Cache{
		kv:     kv,
		clock:  clock,
		logger: logger.With("module", "cache"),
		mem:    make(map[string]models.CacheEntry),
	}
}

// Get returns the raw JSON value for key. Expired entries are evicted from
// both tiers and reported as a miss; a durable hit is promoted to memory.
// Durable read failures are logged and count as a miss.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.mem[key]
	c.mu.Unlock()
	if ok {
		if !e.Expired(now) {
			return e.Value, true
		}
		c.evict(ctx, key)
		return nil, false
	}

	raw, ok, err := c.kv.Get(ctx, Prefix+key)
	if err != nil {
		c.logger.Warn(ctx, "cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	e, err = decodeEntry(raw)
	if err != nil {
		c.logger.Warn(ctx, "dropping unreadable cache entry", "key", key, "error", err)
		c.evict(ctx, key)
		return nil, false
	}
	if e.Expired(now) {
		c.evict(ctx, key)
		return nil, false
	}

	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()
	return e.Value, true
}

// GetJSON decodes a hit into out.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

func decodeEntry(raw string) (models.CacheEntry, error) {
	var e models.CacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return e, err
	}
	if e.Version != models.SchemaVersion {
		return e, fmt.Errorf("unsupported cache entry version %d", e.Version)
	}
	return e, nil
}

// Set stores value in both tiers until now+ttl. A ttl <= 0 stores nothing
// and drops any existing entry. Only an unencodable value is an error; a
// failed durable write is logged.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if ttl <= 0 {
		c.mu.Lock()
		delete(c.mem, key)
		c.mu.Unlock()
		if err := c.kv.Remove(ctx, Prefix+key); err != nil {
			c.logger.Warn(ctx, "cache evict failed", "key", key, "error", err)
		}
		return nil
	}

	e := models.CacheEntry{
		Version:   models.SchemaVersion,
		Value:     b,
		ExpiresAt: c.clock.Now().Add(ttl),
	}

	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, Prefix+key, string(raw)); err != nil {
		c.logger.Warn(ctx, "cache write failed, serving from memory only", "key", key, "error", err)
	}
	return nil
}

// evict drops an expired or unreadable entry from both tiers. An entry that
// a concurrent Set has made fresh again is kept.
func (c *Cache) evict(ctx context.Context, key string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	now := c.clock.Now()

	c.mu.Lock()
	if e, ok := c.mem[key]; ok && !e.Expired(now) {
		c.mu.Unlock()
		return
	}
	delete(c.mem, key)
	c.mu.Unlock()

	if raw, ok, err := c.kv.Get(ctx, Prefix+key); err == nil && ok {
		if e, err := decodeEntry(raw); err == nil && !e.Expired(now) {
			return
		}
	}
	if err := c.kv.Remove(ctx, Prefix+key); err != nil {
		c.logger.Warn(ctx, "cache evict failed", "key", key, "error", err)
	}
}

// Invalidate drops key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()
	return c.kv.Remove(ctx, Prefix+key)
}

// ClearAll drops every cache entry. Keys outside Prefix are untouched.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	c.mem = make(map[string]models.CacheEntry)
	c.mu.Unlock()

	keys, err := c.kv.Keys(ctx, Prefix)
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}
	for _, k := range keys {
		if err := c.kv.Remove(ctx, k); err != nil {
			return fmt.Errorf("remove %s: %w", k, err)
		}
	}
	return nil
}

// Fetch is a read-through lookup: on a miss it calls load once per key,
// however many callers are waiting, and caches the result for ttl.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var out T
	if ok, err := c.GetJSON(ctx, key, &out); err == nil && ok {
		return out, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, v, ttl); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// GeoKey builds a cache key from rounded coordinates so nearby lookups
// share an entry, e.g. GeoKey("weather", 40.7128, -74.006, 2) is
// "weather_40.71_-74.01".
func GeoKey(prefix string, lat, lon float64, precision int) string {
	return prefix + "_" + roundCoord(lat, precision) + "_" + roundCoord(lon, precision)
}

func roundCoord(v float64, precision int) string {
	p := math.Pow10(precision)
	r := math.Round(v*p) / p
	if r == 0 {
		r = 0 // avoid "-0.00"
	}
	return strconv.FormatFloat(r, 'f', precision, 64)
}
