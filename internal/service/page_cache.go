package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/registree/pkg/errors"
)

// CacheRepository is the key/value backend behind PageCache.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// PageCache holds rendered audit pages. Backend failures degrade to misses;
// the audit table stays the source of truth.
type PageCache struct {
	backend CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	on      bool
}

// NewPageCache wires a page cache over backend. A disabled cache answers
// every lookup with a miss and drops writes.
func NewPageCache(backend CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *PageCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PageCache{backend: backend, metrics: metrics, ttl: ttl, logger: logger, on: enabled && backend != nil}
}

func (c *PageCache) Enabled() bool {
	return c != nil && c.on
}

// Get loads key into dest and reports whether it was present.
func (c *PageCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	began := time.Now()
	err := c.backend.Get(ctx, key, dest)
	c.metrics.RecordCacheOperation(err == nil, time.Since(began))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		c.logger.Warn("page cache read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value under key; ttl <= 0 uses the cache default.
func (c *PageCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	began := time.Now()
	err := c.backend.Set(ctx, key, value, ttl)
	c.metrics.ObserveCacheWrite(time.Since(began))
	if err != nil {
		c.logger.Warn("page cache write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate drops every key matching the glob pattern.
func (c *PageCache) Invalidate(ctx context.Context, pattern string) error {
	if !c.Enabled() {
		return nil
	}
	n, err := c.backend.DeleteByPattern(ctx, pattern)
	if err != nil {
		c.logger.Warn("page cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	c.logger.Debug("page cache invalidated", zap.String("pattern", pattern), zap.Int("removed", n))
	return nil
}
