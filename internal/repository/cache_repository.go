package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/registree/pkg/errors"
)

// scanBatch bounds both the SCAN hint and the UNLINK batch size.
const scanBatch = 100

// CacheRepository keeps JSON documents in Redis. Without a client it behaves
// as an always-empty cache.
type CacheRepository struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewCacheRepository wraps client, which may be nil.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{rdb: client, logger: logger}
}

// Get decodes the document stored at key into dest. A missing key yields
// ErrCacheMiss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.rdb == nil {
		return appErrors.ErrCacheMiss
	}
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return appErrors.ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// a document we can no longer decode is as good as absent
		r.rdb.Unlink(ctx, key)
		return fmt.Errorf("cache decode %q: %w", key, err)
	}
	return nil
}

func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.rdb == nil {
		return nil
	}
	doc, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %q: %w", key, err)
	}
	return r.rdb.Set(ctx, key, doc, ttl).Err()
}

// DeleteByPattern unlinks keys matching pattern in batches and returns the
// number removed.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if r.rdb == nil {
		return 0, nil
	}
	var (
		removed int
		batch   = make([]string, 0, scanBatch)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.rdb.Unlink(ctx, batch...).Result()
		removed += int(n)
		batch = batch[:0]
		return err
	}

	iter := r.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("cache unlink %q: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache scan %q: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("cache unlink %q: %w", pattern, err)
	}
	return removed, nil
}

// PingContext reports whether Redis answers. No client means nothing to check.
func (r *CacheRepository) PingContext(ctx context.Context) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Ping(ctx).Err()
}

func (r *CacheRepository) Close() error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
