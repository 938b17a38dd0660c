package model

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/and161185/growing-together/internal/errs"
)

// ColumnType is the storage type of a column.
type ColumnType int

const (
	ColText ColumnType = iota
	ColInt
	ColReal
	ColBool
	ColTime
	ColUUID
	ColTextList // []string, flat JSON text in the cache, text[] remotely
)

func (t ColumnType) String() string {
	switch t {
	case ColText:
		return "text"
	case ColInt:
		return "int"
	case ColReal:
		return "real"
	case ColBool:
		return "bool"
	case ColTime:
		return "time"
	case ColUUID:
		return "uuid"
	case ColTextList:
		return "text_list"
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// Column describes one field of a kind.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Joined is a denormalized field only the remote join can supply.
// It is stored in the cache but never written remotely.
type Joined struct {
	Name        string // alias in rows, e.g. author_name
	Source      string // column of the target table, e.g. full_name
	Placeholder string // substituted on offline reads when still empty; "" leaves it null
}

// Join pulls display fields from another kind keyed by a local uuid column.
type Join struct {
	On     string // local column, e.g. user_id
	Target Kind   // kind whose id equals On
	Fields []Joined
}

// KindSpec is the registry entry for one entity kind.
type KindSpec struct {
	Kind         Kind
	RemoteTable  string
	CacheTable   string
	Columns      []Column // first column is always id
	Join         *Join
	DefaultOrder []Order
	StampCreated bool // created_at set on create
	StampUpdated bool // updated_at set on create and update
}

// Column returns the column named name.
func (s *KindSpec) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// JoinedField returns the joined field aliased as name.
func (s *KindSpec) JoinedField(name string) (Joined, bool) {
	if s.Join == nil {
		return Joined{}, false
	}
	for _, j := range s.Join.Fields {
		if j.Name == name {
			return j, true
		}
	}
	return Joined{}, false
}

// ColumnNames lists the writable column names in schema order.
func (s *KindSpec) ColumnNames() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

// JoinedNames lists joined aliases in declaration order.
func (s *KindSpec) JoinedNames() []string {
	if s.Join == nil {
		return nil
	}
	out := make([]string, 0, len(s.Join.Fields))
	for _, j := range s.Join.Fields {
		out = append(out, j.Name)
	}
	return out
}

// ListColumns lists the columns serialized as flat text in the cache.
func (s *KindSpec) ListColumns() []string {
	var out []string
	for _, c := range s.Columns {
		if c.Type == ColTextList {
			out = append(out, c.Name)
		}
	}
	return out
}

// Normalize converts raw driver values into canonical row values.
// Columns missing from raw stay missing; unknown keys fail.
func (s *KindSpec) Normalize(raw map[string]any) (Row, error) {
	out := make(Row, len(raw))
	for k, v := range raw {
		typ := ColText
		if c, ok := s.Column(k); ok {
			typ = c.Type
		} else if _, ok := s.JoinedField(k); !ok {
			if k == "sync_status" {
				continue
			}
			return nil, fmt.Errorf("%w: %s has no column %q", errs.ErrInvalid, s.Kind, k)
		}
		cv, err := convert(typ, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", errs.ErrInvalid, s.Kind, k, err)
		}
		out[k] = cv
	}
	return out, nil
}

// ValidateRow checks a full row (insert/cache image): every non-nullable
// column must be present and non-nil, and no unknown or joined keys written.
func (s *KindSpec) ValidateRow(r Row) error {
	if err := s.ValidatePatch(r); err != nil {
		return err
	}
	for _, c := range s.Columns {
		if c.Nullable {
			continue
		}
		if v, ok := r[c.Name]; !ok || v == nil {
			return fmt.Errorf("%w: %s.%s is required", errs.ErrInvalid, s.Kind, c.Name)
		}
	}
	return nil
}

// ValidatePatch checks a partial row: known columns only, canonical types,
// nulls only where nullable. Joined fields are allowed and ignored on remote writes.
func (s *KindSpec) ValidatePatch(r Row) error {
	for k, v := range r {
		if _, ok := s.JoinedField(k); ok {
			continue
		}
		c, ok := s.Column(k)
		if !ok {
			return fmt.Errorf("%w: %s has no column %q", errs.ErrInvalid, s.Kind, k)
		}
		if v == nil {
			if !c.Nullable {
				return fmt.Errorf("%w: %s.%s cannot be null", errs.ErrInvalid, s.Kind, k)
			}
			continue
		}
		if !canonical(c.Type, v) {
			return fmt.Errorf("%w: %s.%s: %T is not %s", errs.ErrInvalid, s.Kind, k, v, c.Type)
		}
		if !validText(v) {
			return fmt.Errorf("%w: %s.%s is not valid UTF-8", errs.ErrInvalid, s.Kind, k)
		}
	}
	return nil
}

// validText reports whether text values survive the JSON list and queue
// encodings unchanged; invalid UTF-8 would come back as U+FFFD.
func validText(v any) bool {
	switch x := v.(type) {
	case string:
		return utf8.ValidString(x)
	case []string:
		for _, e := range x {
			if !utf8.ValidString(e) {
				return false
			}
		}
	}
	return true
}

// Writable strips joined fields, leaving what the remote table accepts.
func (s *KindSpec) Writable(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		if _, ok := s.Column(k); ok {
			out[k] = v
		}
	}
	return out
}

// filterable reports whether a filter or order may reference name.
func (s *KindSpec) filterable(name string) error {
	c, ok := s.Column(name)
	if !ok {
		return fmt.Errorf("%w: %s cannot filter on %q", errs.ErrInvalid, s.Kind, name)
	}
	if c.Type == ColTextList {
		return fmt.Errorf("%w: %s.%s is a list column", errs.ErrInvalid, s.Kind, name)
	}
	return nil
}

func hasColumn(cols []Column, name string) bool {
	return slices.ContainsFunc(cols, func(c Column) bool { return c.Name == name })
}
