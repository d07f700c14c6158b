package projection

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/contentpipe/search-projector/internal/content"
	"github.com/contentpipe/search-projector/pkg/config"
	"github.com/contentpipe/search-projector/pkg/metrics"
	pkgredis "github.com/contentpipe/search-projector/pkg/redis"
)

const cacheKeyPrefix = "projrec:"

// CachedStore fronts a RecordStore with a Redis read-through/write-through
// cache. Cache failures degrade to the underlying store; they never fail a
// batch.
type CachedStore struct {
	inner   RecordStore
	client  *pkgredis.Client
	cfg     config.RedisConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCachedStore wraps inner with a Redis cache. metrics may be nil.
func NewCachedStore(inner RecordStore, client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *CachedStore {
	return &CachedStore{
		inner:   inner,
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "record-cache"),
	}
}

// Load serves as many records as possible from Redis and falls through to
// the underlying store for the rest, back-filling the cache.
func (c *CachedStore) Load(ctx context.Context, keys []content.ItemKey) (map[content.ItemKey]*Record, error) {
	result := make(map[content.ItemKey]*Record, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	missing := keys
	cacheKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		cacheKeys = append(cacheKeys, cacheKeyPrefix+string(key))
	}
	values, err := c.client.MGet(ctx, cacheKeys...)
	if err != nil {
		c.logger.Error("cache mget failed, falling through", "error", err)
	} else {
		missing = missing[:0:0]
		for i, value := range values {
			data, ok := value.(string)
			if !ok {
				missing = append(missing, keys[i])
				c.countMiss()
				continue
			}
			var rec Record
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				c.logger.Warn("dropping corrupt cache entry", "key", keys[i], "error", err)
				missing = append(missing, keys[i])
				c.countMiss()
				continue
			}
			result[rec.Key] = &rec
			c.countHit()
		}
	}

	if len(missing) == 0 {
		return result, nil
	}
	loaded, err := c.inner.Load(ctx, missing)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, loaded)
	for key, rec := range loaded {
		result[key] = rec
	}
	return result, nil
}

// Save writes through: the durable store first, then the cache.
func (c *CachedStore) Save(ctx context.Context, records []*Record) error {
	if err := c.inner.Save(ctx, records); err != nil {
		return err
	}
	byKey := make(map[content.ItemKey]*Record, len(records))
	for _, rec := range records {
		byKey[rec.Key] = rec
	}
	c.fill(ctx, byKey)
	return nil
}

// Clear wipes the durable store and flushes all cached records.
func (c *CachedStore) Clear(ctx context.Context) error {
	if err := c.inner.Clear(ctx); err != nil {
		return err
	}
	if _, err := c.client.FlushByPattern(ctx, cacheKeyPrefix+"*"); err != nil {
		c.logger.Error("cache flush failed", "error", err)
	}
	return nil
}

func (c *CachedStore) fill(ctx context.Context, records map[content.ItemKey]*Record) {
	if len(records) == 0 {
		return
	}
	pairs := make(map[string]interface{}, len(records))
	for key, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			c.logger.Error("cache marshal failed", "key", key, "error", err)
			continue
		}
		pairs[cacheKeyPrefix+string(key)] = data
	}
	if err := c.client.SetMany(ctx, pairs, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache fill failed", "count", len(pairs), "error", err)
	}
}

func (c *CachedStore) countHit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *CachedStore) countMiss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
