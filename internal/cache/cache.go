// Package cache provides the bounded, persisted recency cache that sits in
// front of the remote model. Entries are kept in a single ordered map with
// move-to-front on access and are written through to a kvstore.Store as two
// records: the payload map and the recency list.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/jsonx"
	"github.com/trust-ai-analyzer/internal/kvstore"
)

const (
	// MaxSize is the default number of analyses kept.
	MaxSize = 10
	// DefaultKeyPrefix namespaces the two persisted records.
	DefaultKeyPrefix = "trust_ai_"
)

// Options configures a Cache.
type Options struct {
	Capacity  int    // Maximum entries (default: MaxSize)
	KeyPrefix string // Prefix for the persisted keys (default: DefaultKeyPrefix)
}

// Metrics tracks cache performance.
type Metrics struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Corrupt   int64 `json:"corrupt"`
}

// Cache is a least-recently-used map from cache key to analysis result.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  *simplelru.LRU[string, json.RawMessage]
	store    kvstore.Store
	dataKey  string
	lruKey   string
	capacity int
	logger   *zap.Logger
	metrics  Metrics
}

// New creates a cache backed by store and restores any persisted entries.
// Unreadable or corrupt persisted data yields an empty cache.
func New(ctx context.Context, store kvstore.Store, opts Options, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = MaxSize
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}

	c := &Cache{
		store:    store,
		dataKey:  opts.KeyPrefix + "cache_data",
		lruKey:   opts.KeyPrefix + "cache_lru",
		capacity: opts.Capacity,
		logger:   logger.Named("cache"),
	}
	c.entries = c.newLRU()
	c.load(ctx)

	c.logger.Info("Analysis cache initialized",
		zap.Int("capacity", c.capacity),
		zap.Int("restored", c.entries.Len()))
	return c
}

func (c *Cache) newLRU() *simplelru.LRU[string, json.RawMessage] {
	l, err := simplelru.NewLRU[string, json.RawMessage](c.capacity, c.onEvict)
	if err != nil {
		// Only possible for a non-positive size, which New rules out.
		panic(fmt.Sprintf("cache: %v", err))
	}
	return l
}

func (c *Cache) onEvict(key string, _ json.RawMessage) {
	c.metrics.Evictions++
	c.logger.Debug("Cache eviction", zap.String("key", key))
}

// Get returns a copy of the stored result with FromCache set, refreshing the
// key's recency. A miss leaves the cache untouched.
func (c *Cache) Get(ctx context.Context, key string) (*analysis.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.entries.Get(key)
	if !ok {
		c.metrics.Misses++
		c.logger.Debug("Cache MISS", zap.String("key", key))
		return nil, false
	}

	var result analysis.Result
	if err := jsonx.Unmarshal(raw, &result); err != nil {
		c.metrics.Corrupt++
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.entries.Remove(key)
		c.persist(ctx)
		c.metrics.Misses++
		return nil, false
	}

	c.metrics.Hits++
	c.logger.Debug("Cache HIT", zap.String("key", key))
	c.persist(ctx)

	result.FromCache = true
	return &result, true
}

// Put stores result under key as the most recently used entry, evicting the
// least recently used entry when the cache is full. FromCache is never stored.
func (c *Cache) Put(ctx context.Context, key string, result *analysis.Result) error {
	stored := *result
	stored.FromCache = false
	raw, err := jsonx.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(key, raw)
	return c.persist(ctx)
}

// Contains reports whether key is cached without refreshing its recency.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Contains(key)
}

// Keys returns the cached keys, most recently used first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recencyList()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Clear drops every entry and removes both persisted records.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = c.newLRU()
	if err := c.store.Remove(ctx, c.dataKey, c.lruKey); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.logger.Info("Analysis cache cleared")
	return nil
}

// Stats returns a snapshot of the cache metrics.
func (c *Cache) Stats() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// recencyList returns keys most recently used first. Caller holds mu.
func (c *Cache) recencyList() []string {
	oldestFirst := c.entries.Keys()
	out := make([]string, len(oldestFirst))
	for i, k := range oldestFirst {
		out[len(oldestFirst)-1-i] = k
	}
	return out
}

// persist writes the payload map and recency list in one atomic store call.
// Caller holds mu.
func (c *Cache) persist(ctx context.Context) error {
	keys := c.recencyList()
	data := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		v, _ := c.entries.Peek(k)
		data[k] = v
	}

	dataStr, err := jsonx.MarshalToString(data)
	if err != nil {
		return fmt.Errorf("encode cache data: %w", err)
	}
	lruStr, err := jsonx.MarshalToString(keys)
	if err != nil {
		return fmt.Errorf("encode cache recency list: %w", err)
	}

	if err := c.store.SetStrings(ctx, map[string]string{c.dataKey: dataStr, c.lruKey: lruStr}); err != nil {
		c.logger.Warn("Failed to persist cache", zap.Error(err))
		return fmt.Errorf("persist cache: %w", err)
	}
	return nil
}

// load restores persisted entries. Caller must not share c yet.
func (c *Cache) load(ctx context.Context) {
	dataStr, ok, err := c.store.GetString(ctx, c.dataKey)
	if err != nil {
		c.logger.Warn("Failed to read persisted cache, starting empty", zap.Error(err))
		return
	}
	if !ok || dataStr == "" {
		return
	}

	var data map[string]json.RawMessage
	if err := jsonx.UnmarshalFromString(dataStr, &data); err != nil {
		c.metrics.Corrupt++
		c.logger.Warn("Persisted cache data is corrupt, starting empty", zap.Error(err))
		return
	}

	var recency []string
	lruStr, ok, err := c.store.GetString(ctx, c.lruKey)
	if err != nil {
		c.logger.Warn("Failed to read persisted recency list, starting empty", zap.Error(err))
		return
	}
	if ok && lruStr != "" {
		if err := jsonx.UnmarshalFromString(lruStr, &recency); err != nil {
			c.metrics.Corrupt++
			c.logger.Warn("Persisted recency list is corrupt, starting empty", zap.Error(err))
			return
		}
	}

	ordered := reconcile(data, recency)
	if len(ordered) > c.capacity {
		ordered = ordered[:c.capacity]
	}
	// Insert oldest first so the most recent key ends up at the front.
	for i := len(ordered) - 1; i >= 0; i-- {
		c.entries.Add(ordered[i], data[ordered[i]])
	}
}

// reconcile orders the keys of data most recent first: keys named by the
// recency list keep their order, keys missing from it are treated as oldest.
func reconcile(data map[string]json.RawMessage, recency []string) []string {
	ordered := make([]string, 0, len(data))
	seen := make(map[string]bool, len(data))
	for _, k := range recency {
		if _, ok := data[k]; ok && !seen[k] {
			seen[k] = true
			ordered = append(ordered, k)
		}
	}

	var orphans []string
	for k := range data {
		if !seen[k] {
			orphans = append(orphans, k)
		}
	}
	sort.Strings(orphans)
	return append(ordered, orphans...)
}
