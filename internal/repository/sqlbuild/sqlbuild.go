// Package sqlbuild renders model filters as SQL for the SQLite cache and the PostgreSQL remote.
package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/model"
)

// Dialect selects placeholder style and value encoding.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

var ops = map[model.Op]string{
	model.OpEq:  "=",
	model.OpNeq: "<>",
	model.OpLt:  "<",
	model.OpLte: "<=",
	model.OpGt:  ">",
	model.OpGte: ">=",
}

// Query accumulates bound arguments for one statement.
type Query struct {
	Dialect Dialect
	Args    []any
}

// New starts a query for d.
func New(d Dialect) *Query { return &Query{Dialect: d} }

// Arg binds v and returns its placeholder.
func (q *Query) Arg(v any) string {
	q.Args = append(q.Args, Encode(q.Dialect, v))
	if q.Dialect == Postgres {
		return "$" + strconv.Itoa(len(q.Args))
	}
	return "?"
}

// Where renders f's conditions, prefixed with " WHERE ", or "" when empty.
// qual prefixes every column (e.g. "t.").
func (q *Query) Where(f model.Filter, qual string) (string, error) {
	if len(f.Where) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(f.Where))
	for _, c := range f.Where {
		col := qual + c.Column
		switch c.Op {
		case model.OpIsNull:
			parts = append(parts, col+" IS NULL")
		case model.OpNotNull:
			parts = append(parts, col+" IS NOT NULL")
		default:
			op, ok := ops[c.Op]
			if !ok {
				return "", fmt.Errorf("sqlbuild: unknown operator %q", c.Op)
			}
			parts = append(parts, col+" "+op+" "+q.Arg(c.Value))
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

// OrderBy renders orders with nulls last ascending and first descending,
// matching model.Filter.Apply. Returns "" when empty.
func OrderBy(orders []model.Order, qual string) string {
	if len(orders) == 0 {
		return ""
	}
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.Desc {
			parts = append(parts, qual+o.Column+" DESC NULLS FIRST")
		} else {
			parts = append(parts, qual+o.Column+" ASC NULLS LAST")
		}
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// Limit renders a LIMIT clause for n > 0.
func Limit(n int) string {
	if n <= 0 {
		return ""
	}
	return " LIMIT " + strconv.Itoa(n)
}

// Select renders the filtered, ordered, limited tail of a SELECT.
func (q *Query) Select(f model.Filter, fallback []model.Order, qual string) (string, error) {
	where, err := q.Where(f, qual)
	if err != nil {
		return "", err
	}
	order := f.OrderBy
	if len(order) == 0 {
		order = fallback
	}
	return where + OrderBy(order, qual) + Limit(f.Limit), nil
}

// Placeholders returns n placeholders starting after the already bound args.
func (q *Query) Placeholders(vals []any) string {
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = q.Arg(v)
	}
	return strings.Join(ph, ", ")
}

// Encode converts a canonical row value to what the dialect's driver stores.
// SQLite keeps uuids and timestamps as text and lists as JSON text.
// PostgreSQL takes them natively.
func Encode(d Dialect, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case uuid.UUID:
		if d == SQLite {
			return x.String()
		}
		return x
	case time.Time:
		if d == SQLite {
			return model.FormatTime(x)
		}
		return x.UTC()
	case []string:
		if d == SQLite {
			return model.EncodeList(x)
		}
		return x
	}
	return v
}
