package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

type auditSink interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error)
	MaxSeq(ctx context.Context) (int64, error)
}

const defaultAuditPageSize = 100

// ChangeRecorder appends audit log entries and serves lazy queries over
// them. Entries are never updated or deleted.
type ChangeRecorder struct {
	sink     auditSink
	logger   *zap.Logger
	pageSize int
}

// NewChangeRecorder constructs a recorder. pageSize bounds each fetch made by
// cursors that do not set their own limit.
func NewChangeRecorder(sink auditSink, pageSize int, logger *zap.Logger) *ChangeRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = defaultAuditPageSize
	}
	if pageSize > models.MaxAuditPageSize {
		pageSize = models.MaxAuditPageSize
	}
	return &ChangeRecorder{sink: sink, logger: logger, pageSize: pageSize}
}

// Record appends entry. The sink assigns entry.Seq.
func (r *ChangeRecorder) Record(ctx context.Context, entry *models.AuditLogEntry) error {
	if err := r.sink.Append(ctx, entry); err != nil {
		r.logger.Warn("audit append failed",
			zap.String("command_id", entry.CommandID),
			zap.String("origin", string(entry.Origin)),
			zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrStorageFailure, err, "")
	}
	r.logger.Debug("audit entry recorded",
		zap.Int64("seq", entry.Seq),
		zap.String("action", string(entry.Action)),
		zap.String("entity_type", string(entry.EntityType)),
		zap.String("entity_id", entry.EntityID),
		zap.String("origin", string(entry.Origin)))
	return nil
}

// Query returns a cursor over matching entries in sequence order. Nothing is
// read until the cursor is advanced.
func (r *ChangeRecorder) Query(filter models.AuditFilter) *AuditCursor {
	filter.Limit = r.limit(filter.Limit)
	return &AuditCursor{sink: r.sink, filter: filter}
}

// Page fetches a single page of matching entries.
func (r *ChangeRecorder) Page(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	filter.Limit = r.limit(filter.Limit)
	entries, err := r.sink.List(ctx, filter)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorageFailure, err, "failed to read audit log")
	}
	return entries, nil
}

// limit resolves a requested page size against the default and the sink's
// cap. A cursor treats a short page as the end, so it must never ask for more
// than one read can return.
func (r *ChangeRecorder) limit(requested int) int {
	switch {
	case requested <= 0:
		return r.pageSize
	case requested > models.MaxAuditPageSize:
		return models.MaxAuditPageSize
	default:
		return requested
	}
}

// HighWater returns the latest assigned sequence number.
func (r *ChangeRecorder) HighWater(ctx context.Context) (int64, error) {
	seq, err := r.sink.MaxSeq(ctx)
	if err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrStorageFailure, err, "failed to read audit log")
	}
	return seq, nil
}

// AuditCursor walks a filtered audit log one page at a time, keyed by seq.
// It is not safe for concurrent use.
type AuditCursor struct {
	sink    auditSink
	filter  models.AuditFilter
	page    []models.AuditLogEntry
	pos     int
	current models.AuditLogEntry
	done    bool
	err     error
}

// Next advances to the next entry, fetching a page when needed.
func (c *AuditCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.pos >= len(c.page) {
		if c.done {
			return false
		}
		page, err := c.sink.List(ctx, c.filter)
		if err != nil {
			c.err = appErrors.WrapAs(appErrors.ErrStorageFailure, err, "failed to read audit log")
			return false
		}
		c.page = page
		c.pos = 0
		if len(page) < c.filter.Limit {
			c.done = true
		}
		if len(page) == 0 {
			return false
		}
		c.filter.AfterSeq = page[len(page)-1].Seq
	}
	c.current = c.page[c.pos]
	c.pos++
	return true
}

// Entry returns the entry at the cursor position.
func (c *AuditCursor) Entry() models.AuditLogEntry {
	return c.current
}

// Err returns the failure that stopped iteration, if any.
func (c *AuditCursor) Err() error {
	return c.err
}

// Collect drains up to max entries (all when max <= 0).
func (c *AuditCursor) Collect(ctx context.Context, max int) ([]models.AuditLogEntry, error) {
	entries := make([]models.AuditLogEntry, 0)
	for (max <= 0 || len(entries) < max) && c.Next(ctx) {
		entries = append(entries, c.Entry())
	}
	return entries, c.Err()
}
