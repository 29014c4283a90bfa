package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON writes the canonical form: keys in name order, each value as
// {"type": ..., "value": ...}. Unchanged records encode byte-identically.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s Snapshot) writeJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return err
		}
		buf.Write(name)
		buf.WriteString(`:{"type":`)
		buf.WriteString(`"` + f.Value.kind.String() + `"`)
		if f.Value.kind != KindNull {
			buf.WriteString(`,"value":`)
			if err := f.Value.writeJSON(buf); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	var (
		raw []byte
		err error
	)
	switch v.kind {
	case KindString:
		raw, err = json.Marshal(v.str)
	case KindInt:
		raw, err = json.Marshal(v.num)
	case KindBool:
		raw, err = json.Marshal(v.flag)
	case KindDate:
		raw, err = json.Marshal(v.at.Format(dateLayout))
	case KindTimestamp:
		raw, err = json.Marshal(v.at.Format(time.RFC3339Nano))
	case KindNested:
		nested, _ := v.AsNested()
		return nested.writeJSON(buf)
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}

// UnmarshalJSON decodes the canonical form.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Parse decodes a snapshot written by MarshalJSON.
func Parse(data []byte) (Snapshot, error) {
	var wire map[string]wireValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if wire == nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: not an object")
	}
	values := make(map[string]Value, len(wire))
	for name, w := range wire {
		v, err := decodeValue(w)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot field %s: %w", name, err)
		}
		values[name] = v
	}
	return New(values), nil
}

func decodeValue(w wireValue) (Value, error) {
	kind, ok := kindFromName(w.Type)
	if !ok {
		return Value{}, fmt.Errorf("unknown type %q", w.Type)
	}
	if kind == KindNull {
		return Null(), nil
	}
	if len(w.Value) == 0 {
		return Value{}, fmt.Errorf("missing value for type %s", w.Type)
	}
	switch kind {
	case KindString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Value{}, err
		}
		return String(s), nil
	case KindInt:
		var i int64
		if err := json.Unmarshal(w.Value, &i); err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case KindDate, KindTimestamp:
		var raw string
		if err := json.Unmarshal(w.Value, &raw); err != nil {
			return Value{}, err
		}
		if kind == KindDate {
			t, err := time.Parse(dateLayout, raw)
			if err != nil {
				return Value{}, err
			}
			return Date(t), nil
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Value{}, err
		}
		return Timestamp(t), nil
	default:
		nested, err := Parse(w.Value)
		if err != nil {
			return Value{}, err
		}
		return Nested(nested), nil
	}
}
