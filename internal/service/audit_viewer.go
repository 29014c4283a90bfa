package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

const auditCachePrefix = "audit:page:"

// Authorizer decides whether an actor may read the audit log.
type Authorizer interface {
	IsAuthorized(ctx context.Context, actor string) bool
}

type auditReader interface {
	Query(filter models.AuditFilter) *AuditCursor
	Page(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error)
	HighWater(ctx context.Context) (int64, error)
}

type auditPageCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// AuditPage is one materialised page of the audit log.
type AuditPage struct {
	Entries      []models.AuditLogEntry `json:"entries"`
	NextAfterSeq int64                  `json:"next_after_seq"`
	HasMore      bool                   `json:"has_more"`
}

// AuditViewer is the read-only, access-gated surface over the change log.
type AuditViewer struct {
	reader   auditReader
	auth     Authorizer
	cache    auditPageCache
	cacheTTL time.Duration
	pageSize int
	logger   *zap.Logger
}

// AuditViewerOption configures the viewer.
type AuditViewerOption func(*AuditViewer)

// WithAuditPageCache enables read-through caching of pages.
func WithAuditPageCache(cache auditPageCache, ttl time.Duration) AuditViewerOption {
	return func(v *AuditViewer) {
		v.cache = cache
		v.cacheTTL = ttl
	}
}

// WithAuditPageSize sets the page size used when a filter has no limit.
func WithAuditPageSize(size int) AuditViewerOption {
	return func(v *AuditViewer) {
		if size > 0 {
			v.pageSize = size
		}
	}
}

// NewAuditViewer constructs the viewer.
func NewAuditViewer(reader auditReader, auth Authorizer, logger *zap.Logger, opts ...AuditViewerOption) *AuditViewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &AuditViewer{reader: reader, auth: auth, logger: logger, pageSize: defaultAuditPageSize}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func (v *AuditViewer) authorize(ctx context.Context) error {
	actor := ActorFromContext(ctx)
	if v.auth == nil || !v.auth.IsAuthorized(ctx, actor) {
		v.logger.Info("audit log access denied", zap.String("actor", actor))
		return appErrors.Clone(appErrors.ErrUnauthorized, "not authorized to view the audit log")
	}
	return nil
}

// Query returns a lazy cursor over matching entries. No query runs when the
// current actor is not authorized.
func (v *AuditViewer) Query(ctx context.Context, filter models.AuditFilter) (*AuditCursor, error) {
	if err := v.authorize(ctx); err != nil {
		return nil, err
	}
	return v.reader.Query(filter), nil
}

// Page returns one page of matching entries after filter.AfterSeq.
func (v *AuditViewer) Page(ctx context.Context, filter models.AuditFilter) (*AuditPage, error) {
	if err := v.authorize(ctx); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = v.pageSize
	}
	if filter.Limit > models.MaxAuditPageSize {
		filter.Limit = models.MaxAuditPageSize
	}

	var key string
	if v.cache != nil && v.cache.Enabled() {
		// an append moves the high-water mark, so older keys are never read again
		highWater, err := v.reader.HighWater(ctx)
		if err == nil {
			key = pageCacheKey(highWater, filter)
			var cached AuditPage
			if hit, _ := v.cache.Get(ctx, key, &cached); hit {
				return &cached, nil
			}
		} else {
			v.logger.Warn("audit high-water lookup failed", zap.Error(err))
		}
	}

	entries, hasMore, err := v.fetch(ctx, filter)
	if err != nil {
		return nil, err
	}
	page := &AuditPage{Entries: entries, NextAfterSeq: filter.AfterSeq, HasMore: hasMore}
	if n := len(page.Entries); n > 0 {
		page.NextAfterSeq = page.Entries[n-1].Seq
	}

	if key != "" {
		_ = v.cache.Set(ctx, key, page, v.cacheTTL)
	}
	return page, nil
}

// fetch reads one page and reports whether more entries follow. Below the
// read cap a single over-fetch of one row answers that; a full-size page
// needs a second one-row read.
func (v *AuditViewer) fetch(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, bool, error) {
	if filter.Limit < models.MaxAuditPageSize {
		probe := filter
		probe.Limit = filter.Limit + 1
		entries, err := v.reader.Page(ctx, probe)
		if err != nil {
			return nil, false, err
		}
		if len(entries) > filter.Limit {
			return entries[:filter.Limit], true, nil
		}
		return entries, false, nil
	}

	entries, err := v.reader.Page(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	if len(entries) < filter.Limit {
		return entries, false, nil
	}
	next := filter
	next.AfterSeq = entries[len(entries)-1].Seq
	next.Limit = 1
	more, err := v.reader.Page(ctx, next)
	if err != nil {
		return nil, false, err
	}
	return entries, len(more) > 0, nil
}

// PurgeCache drops every cached page.
func (v *AuditViewer) PurgeCache(ctx context.Context) error {
	if v.cache == nil || !v.cache.Enabled() {
		return nil
	}
	return v.cache.Invalidate(ctx, auditCachePrefix+"*")
}

func pageCacheKey(highWater int64, filter models.AuditFilter) string {
	values := url.Values{}
	values.Set("type", string(filter.EntityType))
	values.Set("id", filter.EntityID)
	values.Set("actor", filter.Actor)
	if filter.From != nil {
		values.Set("from", filter.From.UTC().Format(time.RFC3339Nano))
	}
	if filter.To != nil {
		values.Set("to", filter.To.UTC().Format(time.RFC3339Nano))
	}
	values.Set("after", strconv.FormatInt(filter.AfterSeq, 10))
	values.Set("limit", strconv.Itoa(filter.Limit))
	return fmt.Sprintf("%s%d:%s", auditCachePrefix, highWater, values.Encode())
}
