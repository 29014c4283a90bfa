package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// AuditOrigin distinguishes entries written for an original mutation from
// those written while undoing or redoing one.
type AuditOrigin string

const (
	OriginOriginal AuditOrigin = "ORIGINAL"
	OriginUndo     AuditOrigin = "UNDO"
	OriginRedo     AuditOrigin = "REDO"
)

// IsReversal reports whether the entry was produced by undo or redo.
func (o AuditOrigin) IsReversal() bool {
	return o == OriginUndo || o == OriginRedo
}

// RawSnapshot holds canonical snapshot JSON as stored in the audit table.
// A nil value means the record did not exist.
type RawSnapshot []byte

// Scan implements sql.Scanner.
func (r *RawSnapshot) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = nil
	case []byte:
		*r = append(RawSnapshot(nil), v...)
	case string:
		*r = RawSnapshot(v)
	default:
		return fmt.Errorf("scan snapshot: unsupported type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (r RawSnapshot) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return string(r), nil
}

// MarshalJSON embeds the snapshot document as-is.
func (r RawSnapshot) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// UnmarshalJSON keeps the raw document.
func (r *RawSnapshot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = nil
		return nil
	}
	*r = append(RawSnapshot(nil), data...)
	return nil
}

// AuditLogEntry is one immutable row of the change log.
type AuditLogEntry struct {
	Seq        int64       `db:"seq" json:"seq"`
	CommandID  string      `db:"command_id" json:"command_id"`
	Timestamp  time.Time   `db:"timestamp" json:"timestamp"`
	Actor      string      `db:"actor" json:"actor"`
	Action     ActionKind  `db:"action" json:"action"`
	EntityType EntityType  `db:"entity_type" json:"entity_type"`
	EntityID   string      `db:"entity_id" json:"entity_id"`
	Before     RawSnapshot `db:"before_snapshot" json:"before"`
	After      RawSnapshot `db:"after_snapshot" json:"after"`
	Origin     AuditOrigin `db:"origin" json:"origin"`
}

// IsReversal reports whether the entry came from undo or redo.
func (e *AuditLogEntry) IsReversal() bool {
	return e.Origin.IsReversal()
}

// AuditFilter narrows an audit log query. Zero values mean "any".
// From is inclusive and To exclusive.
// MaxAuditPageSize is the most entries a single audit read returns.
const MaxAuditPageSize = 1000

type AuditFilter struct {
	EntityType EntityType
	EntityID   string
	Actor      string
	From       *time.Time
	To         *time.Time
	AfterSeq   int64
	Limit      int
}
