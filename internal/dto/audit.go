package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

// AuditLogQuery mirrors the audit log filters accepted over HTTP. Times
// are RFC 3339 or plain dates.
type AuditLogQuery struct {
	EntityType string `form:"entity_type" json:"entity_type"`
	EntityID   string `form:"entity_id" json:"entity_id"`
	Actor      string `form:"actor" json:"actor"`
	From       string `form:"from" json:"from"`
	To         string `form:"to" json:"to"`
	AfterSeq   int64  `form:"after_seq" json:"after_seq" binding:"min=0"`
	Limit      int    `form:"limit" json:"limit" binding:"min=0,max=1000"`
}

// ExportRequest queues a file export.
type ExportRequest struct {
	Format models.ExportFormat `json:"format" binding:"required"`
	AuditLogQuery
}

// Filter converts the query to a repository filter.
func (q AuditLogQuery) Filter() (models.AuditFilter, error) {
	filter := models.AuditFilter{
		EntityID: strings.TrimSpace(q.EntityID),
		Actor:    strings.TrimSpace(q.Actor),
		AfterSeq: q.AfterSeq,
		Limit:    q.Limit,
	}
	if raw := strings.TrimSpace(q.EntityType); raw != "" {
		t, ok := models.ParseEntityType(raw)
		if !ok {
			return filter, appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("unsupported entity type %q", raw))
		}
		filter.EntityType = t
	}
	var err error
	if filter.From, err = parseTime("from", q.From); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime("to", q.To); err != nil {
		return filter, err
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "from must be before to")
	}
	return filter, nil
}

func parseTime(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be RFC 3339 or YYYY-MM-DD", name))
}
