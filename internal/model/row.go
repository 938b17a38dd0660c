package model

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Row is a record flattened to column -> canonical value.
// Canonical values: string, int64, float64, bool, time.Time (UTC), uuid.UUID, []string, nil.
type Row map[string]any

// Clone returns a shallow copy with list values copied.
func (r Row) Clone() Row {
	out := maps.Clone(r)
	for k, v := range out {
		if l, ok := v.([]string); ok {
			out[k] = slices.Clone(l)
		}
	}
	return out
}

// Merge overlays patch onto a copy of r.
func (r Row) Merge(patch Row) Row {
	out := r.Clone()
	if out == nil {
		out = Row{}
	}
	for k, v := range patch.Clone() {
		out[k] = v
	}
	return out
}

// ID returns the id column or uuid.Nil.
func (r Row) ID() uuid.UUID { return r.UUID("id") }

func (r Row) Str(col string) string {
	s, _ := r[col].(string)
	return s
}

func (r Row) OptStr(col string) *string {
	s, ok := r[col].(string)
	if !ok {
		return nil
	}
	return &s
}

func (r Row) Int(col string) int64 {
	n, _ := r[col].(int64)
	return n
}

func (r Row) OptInt(col string) *int64 {
	n, ok := r[col].(int64)
	if !ok {
		return nil
	}
	return &n
}

func (r Row) OptReal(col string) *float64 {
	f, ok := r[col].(float64)
	if !ok {
		return nil
	}
	return &f
}

func (r Row) Bool(col string) bool {
	b, _ := r[col].(bool)
	return b
}

func (r Row) Time(col string) time.Time {
	t, _ := r[col].(time.Time)
	return t
}

func (r Row) OptTime(col string) *time.Time {
	t, ok := r[col].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func (r Row) UUID(col string) uuid.UUID {
	id, _ := r[col].(uuid.UUID)
	return id
}

func (r Row) OptUUID(col string) *uuid.UUID {
	id, ok := r[col].(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}

func (r Row) List(col string) []string {
	l, _ := r[col].([]string)
	return l
}

// Helpers for ToRow: nil pointers become SQL NULL.

func optStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func optReal(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func optTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func optUUID(p *uuid.UUID) any {
	if p == nil {
		return nil
	}
	return *p
}

func list(l []string) any {
	if l == nil {
		return nil
	}
	return slices.Clone(l)
}

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func canonical(t ColumnType, v any) bool {
	switch t {
	case ColText:
		_, ok := v.(string)
		return ok
	case ColInt:
		_, ok := v.(int64)
		return ok
	case ColReal:
		_, ok := v.(float64)
		return ok
	case ColBool:
		_, ok := v.(bool)
		return ok
	case ColTime:
		_, ok := v.(time.Time)
		return ok
	case ColUUID:
		_, ok := v.(uuid.UUID)
		return ok
	case ColTextList:
		_, ok := v.([]string)
		return ok
	}
	return false
}

// convert turns a driver value (sqlite, pgx, JSON) into the canonical value for t.
func convert(t ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case ColText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case ColInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case float64:
			if x == float64(int64(x)) {
				return int64(x), nil
			}
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case ColReal:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int:
			return float64(x), nil
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case ColBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		case string:
			return strconv.ParseBool(x)
		}
	case ColTime:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			return ParseTime(x)
		case []byte:
			return ParseTime(string(x))
		}
	case ColUUID:
		switch x := v.(type) {
		case uuid.UUID:
			return x, nil
		case [16]byte:
			return uuid.UUID(x), nil
		case string:
			return uuid.FromString(x)
		case []byte:
			if len(x) == uuid.Size {
				return uuid.FromBytes(x)
			}
			return uuid.FromString(string(x))
		}
	case ColTextList:
		switch x := v.(type) {
		case []string:
			if x == nil {
				return []string{}, nil
			}
			return slices.Clone(x), nil
		case []any:
			out := make([]string, 0, len(x))
			for i, e := range x {
				s, ok := e.(string)
				if !ok {
					return nil, fmt.Errorf("list element %d is %T", i, e)
				}
				out = append(out, s)
			}
			return out, nil
		case string:
			return DecodeList(x)
		case []byte:
			return DecodeList(string(x))
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t)
}

// TimeLayout is fixed width so cached timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// ParseTime accepts TimeLayout and RFC 3339 variants.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

// ParseValue parses textual input (CLI flags) into the canonical value of c.
// "null" yields nil for nullable columns.
func ParseValue(c Column, s string) (any, error) {
	if s == "null" && c.Nullable {
		return nil, nil
	}
	if c.Type == ColTextList && !strings.HasPrefix(strings.TrimSpace(s), "[") {
		if s == "" {
			return []string{}, nil
		}
		return strings.Split(s, ","), nil
	}
	return convert(c.Type, s)
}
