// Package idcache maps "author/permlink" pairs to post ids. It is a bounded
// LRU in front of an authoritative lookup, optionally backed by a shared
// Redis tier so several processes can reuse each other's lookups.
package idcache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/cache"
	"github.com/steemit/hivemind-indexer/pkg/telemetry"
)

// DefaultSize is the default number of cached ids
const DefaultSize = 2000000

const logEvery = 100000

// Lookup resolves a post id from the authoritative store. It returns 0 when
// no live post exists for the pair.
type Lookup interface {
	PostID(ctx context.Context, author, permlink string) (int64, error)
}

// LookupFunc adapts a function to Lookup
type LookupFunc func(ctx context.Context, author, permlink string) (int64, error)

// PostID calls f
func (f LookupFunc) PostID(ctx context.Context, author, permlink string) (int64, error) {
	return f(ctx, author, permlink)
}

// Ref is one known id, used for bulk seeding
type Ref struct {
	Author   string
	Permlink string
	ID       int64
}

// Stats are cumulative counters since construction or the last Reset
type Stats struct {
	Hits      int64
	Misses    int64
	SharedHit int64
	Size      int
}

// Option configures a Cache
type Option func(*Cache)

// WithShared enables the Redis tier
func WithShared(c *cache.Cache, ttl time.Duration) Option {
	return func(ic *Cache) {
		ic.shared = c
		ic.sharedTTL = ttl
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(ic *Cache) {
		ic.logger = logger
	}
}

// Cache is the id cache. It is used by a single writer.
type Cache struct {
	ids       *lru.Cache[string, int64]
	size      int
	lookup    Lookup
	shared    *cache.Cache
	sharedTTL time.Duration
	logger    *zap.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	sharedHit atomic.Int64

	lookups metric.Int64Counter
}

// New creates a cache holding up to size ids
func New(size int, lookup Lookup, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}

	ids, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create id cache: %w", err)
	}

	c := &Cache{
		ids:     ids,
		size:    size,
		lookup:  lookup,
		logger:  zap.NewNop(),
		lookups: telemetry.Int64Counter("hivemind.idcache.lookups", "post id cache lookups by result"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key builds the cache key of a pair
func Key(author, permlink string) string {
	return author + "/" + permlink
}

// sharedKey bounds the Redis key length; permlinks run to 256 bytes.
func sharedKey(key string) string {
	return "id:" + cache.HashKey(key)
}

// Resolve returns the id of author/permlink. A hit promotes the entry; a miss
// consults the shared tier and then the store, caching what it finds. Posts
// that do not exist are not cached.
func (c *Cache) Resolve(ctx context.Context, author, permlink string) (int64, bool, error) {
	key := Key(author, permlink)

	if id, ok := c.ids.Get(key); ok {
		c.count(ctx, "hit")
		return id, true, nil
	}

	if id, ok := c.sharedGet(ctx, key); ok {
		c.ids.Add(key, id)
		c.sharedHit.Add(1)
		c.count(ctx, "shared")
		return id, true, nil
	}

	c.count(ctx, "miss")
	id, err := c.lookup.PostID(ctx, author, permlink)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up post id of %s: %w", key, err)
	}
	if id == 0 {
		return 0, false, nil
	}

	c.ids.Add(key, id)
	c.sharedSet(ctx, map[string]int64{key: id})
	return id, true, nil
}

// Seed caches a freshly assigned id. An existing entry is left untouched.
func (c *Cache) Seed(ctx context.Context, author, permlink string, id int64) {
	key := Key(author, permlink)
	if found, _ := c.ids.ContainsOrAdd(key, id); found {
		return
	}
	c.sharedSet(ctx, map[string]int64{key: id})
}

// Forget drops the id of a deleted post so that a later post re-created
// under the same author/permlink resolves to its own id.
func (c *Cache) Forget(ctx context.Context, author, permlink string) {
	key := Key(author, permlink)
	c.ids.Remove(key)
	if c.shared == nil {
		return
	}
	if err := c.shared.Delete(ctx, sharedKey(key)); err != nil {
		c.logger.Warn("shared id delete failed", zap.String("key", key), zap.Error(err))
	}
}

// SeedFromRefs caches ids discovered by other queries
func (c *Cache) SeedFromRefs(ctx context.Context, refs []Ref) {
	added := make(map[string]int64, len(refs))
	for _, r := range refs {
		key := Key(r.Author, r.Permlink)
		if found, _ := c.ids.ContainsOrAdd(key, r.ID); !found {
			added[key] = r.ID
		}
	}
	c.sharedSet(ctx, added)
}

// Missing returns the refs whose ids are not cached locally, without
// touching recency
func (c *Cache) Missing(refs []Ref) []Ref {
	var out []Ref
	for _, r := range refs {
		if !c.ids.Contains(Key(r.Author, r.Permlink)) {
			out = append(out, r)
		}
	}
	return out
}

// Reset drops every cached id and zeroes the counters. The shared tier is
// left alone.
func (c *Cache) Reset() {
	c.ids.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
	c.sharedHit.Store(0)
}

// Len returns the number of cached ids
func (c *Cache) Len() int {
	return c.ids.Len()
}

// Stats returns the cumulative counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		SharedHit: c.sharedHit.Load(),
		Size:      c.ids.Len(),
	}
}

func (c *Cache) count(ctx context.Context, result string) {
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))

	var hits, misses int64
	if result == "hit" {
		hits = c.hits.Add(1)
		misses = c.misses.Load()
	} else {
		misses = c.misses.Add(1)
		hits = c.hits.Load()
	}

	if total := hits + misses; total%logEvery == 0 {
		c.logger.Info("post id cache stats",
			zap.Int64("lookups", total),
			zap.Int64("hits", hits),
			zap.Float64("hit_ratio", float64(hits)/float64(total)),
			zap.Int("size", c.ids.Len()),
			zap.Int("capacity", c.size),
		)
	}
}

func (c *Cache) sharedGet(ctx context.Context, key string) (int64, bool) {
	if c.shared == nil {
		return 0, false
	}
	id, ok, err := c.shared.GetID(ctx, sharedKey(key))
	if err != nil {
		c.logger.Warn("shared id lookup failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	return id, ok
}

func (c *Cache) sharedSet(ctx context.Context, ids map[string]int64) {
	if c.shared == nil || len(ids) == 0 {
		return
	}
	keyed := make(map[string]int64, len(ids))
	for k, v := range ids {
		keyed[sharedKey(k)] = v
	}
	if err := c.shared.SetIDs(ctx, keyed, c.sharedTTL); err != nil {
		c.logger.Warn("shared id write failed", zap.Int("count", len(ids)), zap.Error(err))
	}
}
