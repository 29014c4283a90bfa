package snapshot

import (
	"fmt"
	"time"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

// Mapping converts one entity type to and from snapshots.
type Mapping struct {
	Capture func(models.Record) (Snapshot, bool)
	Restore func(*Reader) models.Record
}

// Codec dispatches captures and restores by entity type.
type Codec struct {
	mappings map[models.EntityType]Mapping
}

// NewCodec returns a codec with every tracked entity type registered.
func NewCodec() *Codec {
	c := &Codec{mappings: make(map[models.EntityType]Mapping, len(models.EntityTypes))}
	for t, m := range entityMappings {
		c.mappings[t] = m
	}
	return c
}

// Supports reports whether the type has a mapping.
func (c *Codec) Supports(t models.EntityType) bool {
	_, ok := c.mappings[t]
	return ok
}

// Capture records every field of rec. The record's dynamic type must match t.
func (c *Codec) Capture(t models.EntityType, rec models.Record) (Snapshot, error) {
	m, ok := c.mappings[t]
	if !ok {
		return Snapshot{}, appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("unsupported entity type %q", t))
	}
	if rec == nil || rec.EntityType() != t {
		return Snapshot{}, appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("record is not a %s", t))
	}
	snap, ok := m.Capture(rec)
	if !ok {
		return Snapshot{}, appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("record is not a %s", t))
	}
	return snap, nil
}

// Restore rebuilds a record from a snapshot captured for t.
func (c *Codec) Restore(t models.EntityType, snap Snapshot) (models.Record, error) {
	m, ok := c.mappings[t]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("unsupported entity type %q", t))
	}
	r := NewReader(snap)
	rec := m.Restore(r)
	if err := r.Err(); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrMalformedSnapshot, err, fmt.Sprintf("malformed %s snapshot", t))
	}
	return rec, nil
}

// Normalize returns the record as a capture and restore would leave it:
// dates at UTC midnight of their calendar day, timestamps in UTC. rec is
// not modified.
func (c *Codec) Normalize(t models.EntityType, rec models.Record) (models.Record, error) {
	snap, err := c.Capture(t, rec)
	if err != nil {
		return nil, err
	}
	return c.Restore(t, snap)
}

// Reader pulls typed fields out of a snapshot, keeping the first failure.
type Reader struct {
	snap   Snapshot
	prefix string
	err    error
}

// NewReader wraps a snapshot.
func NewReader(s Snapshot) *Reader {
	return &Reader{snap: s}
}

// Err returns the first missing or mistyped field.
func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(name, format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf("field %s%s: %s", r.prefix, name, fmt.Sprintf(format, args...))
	}
}

func (r *Reader) lookup(name string) (Value, bool) {
	v, ok := r.snap.Get(name)
	if !ok {
		r.fail(name, "missing")
	}
	return v, ok
}

func (r *Reader) String(name string) string {
	v, ok := r.lookup(name)
	if !ok {
		return ""
	}
	s, ok := v.AsString()
	if !ok {
		r.fail(name, "expected string, got %s", v.Kind())
	}
	return s
}

func (r *Reader) OptString(name string) *string {
	v, ok := r.lookup(name)
	if !ok || v.IsNull() {
		return nil
	}
	s, ok := v.AsString()
	if !ok {
		r.fail(name, "expected string, got %s", v.Kind())
		return nil
	}
	return &s
}

func (r *Reader) Date(name string) time.Time {
	v, ok := r.lookup(name)
	if !ok {
		return time.Time{}
	}
	d, ok := v.AsDate()
	if !ok {
		r.fail(name, "expected date, got %s", v.Kind())
	}
	return d
}

func (r *Reader) OptDate(name string) *time.Time {
	v, ok := r.lookup(name)
	if !ok || v.IsNull() {
		return nil
	}
	d, ok := v.AsDate()
	if !ok {
		r.fail(name, "expected date, got %s", v.Kind())
		return nil
	}
	return &d
}

func (r *Reader) Timestamp(name string) time.Time {
	v, ok := r.lookup(name)
	if !ok {
		return time.Time{}
	}
	ts, ok := v.AsTimestamp()
	if !ok {
		r.fail(name, "expected timestamp, got %s", v.Kind())
	}
	return ts
}

// Nested returns a reader over a nested snapshot field. A missing or
// mistyped field yields an empty reader sharing the failure.
func (r *Reader) Nested(name string) *Reader {
	child := &Reader{prefix: r.prefix + name + "."}
	v, ok := r.lookup(name)
	if ok {
		nested, isNested := v.AsNested()
		if !isNested {
			r.fail(name, "expected nested, got %s", v.Kind())
		}
		child.snap = nested
	}
	child.err = r.err
	return child
}

// Merge propagates a nested reader's failure to its parent.
func (r *Reader) Merge(child *Reader) {
	if r.err == nil {
		r.err = child.err
	}
}
