// Package snapshot captures tracked records as immutable field/value maps
// and restores records from them.
package snapshot

import (
	"sort"
	"time"
)

// Kind tags the representation held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBool
	KindDate
	KindTimestamp
	KindNested
)

var kindNames = map[Kind]string{
	KindNull:      "null",
	KindString:    "string",
	KindInt:       "int",
	KindBool:      "bool",
	KindDate:      "date",
	KindTimestamp: "timestamp",
	KindNested:    "nested",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func kindFromName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindNull, false
}

// Value is a single tagged field value. The zero Value is null.
type Value struct {
	kind   Kind
	str    string
	num    int64
	flag   bool
	at     time.Time
	nested *Snapshot
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// OptString wraps an optional string, mapping nil to null.
func OptString(s *string) Value {
	if s == nil {
		return Null()
	}
	return String(*s)
}

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, num: i} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Date wraps a calendar date. The time of day is dropped.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: KindDate, at: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// OptDate wraps an optional date, mapping nil to null.
func OptDate(t *time.Time) Value {
	if t == nil {
		return Null()
	}
	return Date(*t)
}

// Timestamp wraps an instant, normalised to UTC.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, at: t.UTC()} }

// Nested wraps a sub-snapshot.
func Nested(s Snapshot) Value { return Value{kind: KindNested, nested: &s} }

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsInt() (int64, bool) { return v.num, v.kind == KindInt }

func (v Value) AsBool() (bool, bool) { return v.flag, v.kind == KindBool }

func (v Value) AsDate() (time.Time, bool) { return v.at, v.kind == KindDate }

func (v Value) AsTimestamp() (time.Time, bool) { return v.at, v.kind == KindTimestamp }

// AsNested returns the sub-snapshot of a nested value.
func (v Value) AsNested() (Snapshot, bool) {
	if v.kind != KindNested || v.nested == nil {
		return Snapshot{}, false
	}
	return *v.nested, true
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindInt:
		return v.num == o.num
	case KindBool:
		return v.flag == o.flag
	case KindDate, KindTimestamp:
		return v.at.Equal(o.at)
	case KindNested:
		a, _ := v.AsNested()
		b, _ := o.AsNested()
		return a.Equal(b)
	default:
		return false
	}
}

// Field is a named value inside a snapshot.
type Field struct {
	Name  string
	Value Value
}

// Snapshot is an immutable set of named values kept sorted by name, so two
// snapshots with the same content are equal regardless of build order.
type Snapshot struct {
	fields []Field
}

// New builds a snapshot from a map of values.
func New(values map[string]Value) Snapshot {
	fields := make([]Field, 0, len(values))
	for name, value := range values {
		fields = append(fields, Field{Name: name, Value: value})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return Snapshot{fields: fields}
}

// Len returns the number of fields.
func (s Snapshot) Len() int { return len(s.fields) }

// Fields returns a copy of the fields in name order.
func (s Snapshot) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Get looks a field up by name.
func (s Snapshot) Get(name string) (Value, bool) {
	i := sort.Search(len(s.fields), func(i int) bool { return s.fields[i].Name >= name })
	if i < len(s.fields) && s.fields[i].Name == name {
		return s.fields[i].Value, true
	}
	return Value{}, false
}

// Equal reports whether both snapshots hold the same fields and values.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i].Name != o.fields[i].Name || !s.fields[i].Value.Equal(o.fields[i].Value) {
			return false
		}
	}
	return true
}

// Diff lists the fields whose values differ between two snapshots. Nested
// fields are reported as "parent.child". A nil side counts as empty.
func Diff(before, after *Snapshot) []string {
	var b, a Snapshot
	if before != nil {
		b = *before
	}
	if after != nil {
		a = *after
	}
	return diff("", b, a)
}

func diff(prefix string, before, after Snapshot) []string {
	names := make(map[string]struct{}, before.Len()+after.Len())
	for _, f := range before.fields {
		names[f.Name] = struct{}{}
	}
	for _, f := range after.fields {
		names[f.Name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var changed []string
	for _, name := range sorted {
		bv, bok := before.Get(name)
		av, aok := after.Get(name)
		if bok && aok && bv.Equal(av) {
			continue
		}
		bn, bNested := bv.AsNested()
		an, aNested := av.AsNested()
		if bNested && aNested {
			changed = append(changed, diff(prefix+name+".", bn, an)...)
			continue
		}
		changed = append(changed, prefix+name)
	}
	return changed
}
