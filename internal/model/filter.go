package model

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/errs"
)

// Op is a comparison operator usable in filters.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Cond is a single column predicate.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

// Order sorts by one column.
type Order struct {
	Column string
	Desc   bool
}

// Filter selects rows of one kind; conditions are ANDed.
type Filter struct {
	Where   []Cond
	OrderBy []Order
	Limit   int
}

func Eq(col string, v any) Cond  { return Cond{Column: col, Op: OpEq, Value: v} }
func Neq(col string, v any) Cond { return Cond{Column: col, Op: OpNeq, Value: v} }
func Lt(col string, v any) Cond  { return Cond{Column: col, Op: OpLt, Value: v} }
func Gte(col string, v any) Cond { return Cond{Column: col, Op: OpGte, Value: v} }
func Gt(col string, v any) Cond  { return Cond{Column: col, Op: OpGt, Value: v} }
func IsNull(col string) Cond     { return Cond{Column: col, Op: OpIsNull} }

// Where builds a filter from conditions.
func Where(conds ...Cond) Filter { return Filter{Where: conds} }

// Validate checks columns and operand types against spec and canonicalizes values in place.
func (f *Filter) Validate(s *KindSpec) error {
	for i := range f.Where {
		c := &f.Where[i]
		if err := s.filterable(c.Column); err != nil {
			return err
		}
		switch c.Op {
		case OpIsNull, OpNotNull:
			c.Value = nil
			continue
		case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		default:
			return fmt.Errorf("%w: unknown operator %q", errs.ErrInvalid, c.Op)
		}
		col, _ := s.Column(c.Column)
		v, err := convert(col.Type, c.Value)
		if err != nil || v == nil {
			return fmt.Errorf("%w: filter %s.%s: bad operand %v", errs.ErrInvalid, s.Kind, c.Column, c.Value)
		}
		c.Value = v
	}
	for _, o := range f.OrderBy {
		if err := s.filterable(o.Column); err != nil {
			return err
		}
	}
	if f.Limit < 0 {
		return fmt.Errorf("%w: negative limit", errs.ErrInvalid)
	}
	return nil
}

// Match evaluates the conditions against a canonical row.
func (f Filter) Match(r Row) bool {
	for _, c := range f.Where {
		v := r[c.Column]
		switch c.Op {
		case OpIsNull:
			if v != nil {
				return false
			}
			continue
		case OpNotNull:
			if v == nil {
				return false
			}
			continue
		}
		if v == nil {
			return false
		}
		n, ok := compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpEq:
			ok = n == 0
		case OpNeq:
			ok = n != 0
		case OpLt:
			ok = n < 0
		case OpLte:
			ok = n <= 0
		case OpGt:
			ok = n > 0
		case OpGte:
			ok = n >= 0
		}
		if !ok {
			return false
		}
	}
	return true
}

// Apply filters, sorts (OrderBy, else fallback) and limits rows in memory.
func (f Filter) Apply(rows []Row, fallback []Order) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	order := f.OrderBy
	if len(order) == 0 {
		order = fallback
	}
	if len(order) > 0 {
		slices.SortStableFunc(out, func(a, b Row) int {
			for _, o := range order {
				n := compareNullable(a[o.Column], b[o.Column])
				if o.Desc {
					n = -n
				}
				if n != 0 {
					return n
				}
			}
			return 0
		})
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// compareNullable orders nulls last, like PostgreSQL ascending order.
func compareNullable(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	n, _ := compare(a, b)
	return n
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return cmp.Compare(x, y), ok
	case int64:
		y, ok := b.(int64)
		return cmp.Compare(x, y), ok
	case float64:
		y, ok := b.(float64)
		return cmp.Compare(x, y), ok
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case time.Time:
		y, ok := b.(time.Time)
		return x.Compare(y), ok
	case uuid.UUID:
		y, ok := b.(uuid.UUID)
		return bytes.Compare(x[:], y[:]), ok
	}
	return 0, false
}
