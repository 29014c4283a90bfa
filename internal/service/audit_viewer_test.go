package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

type pageCacheStub struct {
	pages       map[string]AuditPage
	sets        int
	invalidated []string
}

func newPageCacheStub() *pageCacheStub {
	return &pageCacheStub{pages: make(map[string]AuditPage)}
}

func (c *pageCacheStub) Enabled() bool { return true }

func (c *pageCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	page, ok := c.pages[key]
	if !ok {
		return false, nil
	}
	*dest.(*AuditPage) = page
	return true, nil
}

func (c *pageCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	c.pages[key] = *value.(*AuditPage)
	return nil
}

func (c *pageCacheStub) Invalidate(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	return nil
}

func TestAuditViewerDeniesUnauthorizedActor(t *testing.T) {
	sink := &memorySink{}
	recorder := NewChangeRecorder(sink, 10, nil)
	seedAudit(t, recorder, 3)
	sink.lists = 0
	viewer := NewAuditViewer(recorder, allowAll(false), nil)
	ctx := WithActor(context.Background(), "clerk")

	cursor, err := viewer.Query(ctx, models.AuditFilter{})
	assert.Nil(t, cursor)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	page, err := viewer.Page(ctx, models.AuditFilter{})
	assert.Nil(t, page)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
	assert.Zero(t, sink.lists)
}

func TestAuditViewerNilAuthorizerDenies(t *testing.T) {
	viewer := NewAuditViewer(NewChangeRecorder(&memorySink{}, 10, nil), nil, nil)

	_, err := viewer.Query(context.Background(), models.AuditFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuditViewerPagesBySequence(t *testing.T) {
	sink := &memorySink{}
	recorder := NewChangeRecorder(sink, 10, nil)
	seedAudit(t, recorder, 5)
	viewer := NewAuditViewer(recorder, allowAll(true), nil, WithAuditPageSize(2))
	ctx := context.Background()

	page, err := viewer.Page(ctx, models.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(2), page.NextAfterSeq)

	page, err = viewer.Page(ctx, models.AuditFilter{AfterSeq: 4})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, int64(5), page.NextAfterSeq)

	page, err = viewer.Page(ctx, models.AuditFilter{AfterSeq: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Equal(t, int64(5), page.NextAfterSeq)

	cursor, err := viewer.Query(ctx, models.AuditFilter{Actor: "registrar"})
	require.NoError(t, err)
	entries, err := cursor.Collect(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestAuditViewerServesCachedPages(t *testing.T) {
	sink := &memorySink{}
	recorder := NewChangeRecorder(sink, 10, nil)
	seedAudit(t, recorder, 3)
	cache := newPageCacheStub()
	viewer := NewAuditViewer(recorder, allowAll(true), nil, WithAuditPageCache(cache, time.Minute))
	ctx := context.Background()
	sink.lists = 0

	first, err := viewer.Page(ctx, models.AuditFilter{})
	require.NoError(t, err)
	second, err := viewer.Page(ctx, models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, 1, sink.lists)
	assert.Equal(t, 1, cache.sets)

	// a new entry moves the high-water mark and bypasses the old key
	seedAudit(t, recorder, 1)
	third, err := viewer.Page(ctx, models.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, third.Entries, 4)
	assert.Equal(t, 2, sink.lists)

	require.NoError(t, viewer.PurgeCache(ctx))
	require.Len(t, cache.invalidated, 1)
	assert.True(t, strings.HasPrefix(cache.invalidated[0], "audit:page:"))
}

func TestAuditViewerFullSizePageReportsMore(t *testing.T) {
	sink := &memorySink{}
	recorder := NewChangeRecorder(sink, 10, nil)
	seedAudit(t, recorder, models.MaxAuditPageSize+5)
	viewer := NewAuditViewer(recorder, allowAll(true), nil)
	ctx := context.Background()

	page, err := viewer.Page(ctx, models.AuditFilter{Limit: models.MaxAuditPageSize})
	require.NoError(t, err)
	assert.Len(t, page.Entries, models.MaxAuditPageSize)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(models.MaxAuditPageSize), page.NextAfterSeq)

	rest, err := viewer.Page(ctx, models.AuditFilter{Limit: models.MaxAuditPageSize * 3, AfterSeq: page.NextAfterSeq})
	require.NoError(t, err)
	assert.Len(t, rest.Entries, 5)
	assert.False(t, rest.HasMore)
}

func TestAuditViewerExactFullPageHasNoMore(t *testing.T) {
	sink := &memorySink{}
	recorder := NewChangeRecorder(sink, 10, nil)
	seedAudit(t, recorder, models.MaxAuditPageSize)
	viewer := NewAuditViewer(recorder, allowAll(true), nil)

	page, err := viewer.Page(context.Background(), models.AuditFilter{Limit: models.MaxAuditPageSize})
	require.NoError(t, err)
	assert.Len(t, page.Entries, models.MaxAuditPageSize)
	assert.False(t, page.HasMore)
}
