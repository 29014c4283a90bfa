package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/registree/internal/models"
)

const defaultAuditLimit = 100

const auditColumns = `seq, command_id, timestamp, actor, action, entity_type, entity_id, before_snapshot, after_snapshot, origin`

// AuditRepository is the append-only sink for audit log entries.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append assigns the next sequence number and inserts the entry. Allocation
// and insert share a transaction so numbers stay gap-free.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditLogEntry) (err error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var last int64
	if err = tx.GetContext(ctx, &last, `SELECT COALESCE(MAX(seq), 0) FROM audit_log_entries`); err != nil {
		return fmt.Errorf("allocate audit seq: %w", err)
	}
	entry.Seq = last + 1

	const query = `INSERT INTO audit_log_entries (` + auditColumns + `)
	VALUES (:seq, :command_id, :timestamp, :actor, :action, :entity_type, :entity_id, :before_snapshot, :after_snapshot, :origin)`
	if _, err = tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit audit entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter with seq > filter.AfterSeq,
// ascending by seq.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT " + auditColumns + " FROM audit_log_entries")

	conditions := []string{"seq > ?"}
	args := []interface{}{filter.AfterSeq}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.Actor != "" {
		conditions = append(conditions, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.From != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.To.UTC())
	}
	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > models.MaxAuditPageSize {
		limit = models.MaxAuditPageSize
	}
	builder.WriteString(fmt.Sprintf(" ORDER BY seq ASC LIMIT %d", limit))

	entries := make([]models.AuditLogEntry, 0)
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(builder.String()), args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// MaxSeq returns the highest assigned sequence number, 0 when empty.
func (r *AuditRepository) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM audit_log_entries`); err != nil {
		return 0, fmt.Errorf("audit max seq: %w", err)
	}
	return seq, nil
}
