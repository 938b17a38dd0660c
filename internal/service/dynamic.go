package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/gateway"
	"github.com/and161185/growing-together/internal/model"
)

// actorColumns are filled with the acting member on create when absent.
var actorColumns = []string{"user_id", "created_by", "uploaded_by"}

// Table returns the untyped gateway for a kind name.
func (c *Community) Table(kind string) (*gateway.Table, error) {
	spec, err := model.Lookup(model.Kind(kind))
	if err != nil {
		return nil, err
	}
	return c.tables[spec.Kind], nil
}

// DecodeRow parses a JSON object into a canonical row of kind.
func DecodeRow(spec *model.KindSpec, data []byte) (model.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s json: %v", errs.ErrInvalid, spec.Kind, err)
	}
	for k, v := range raw {
		if n, ok := v.(json.Number); ok {
			raw[k] = numberValue(spec, k, n)
		}
	}
	return spec.Normalize(raw)
}

func numberValue(spec *model.KindSpec, col string, n json.Number) any {
	if c, ok := spec.Column(col); ok && c.Type == model.ColInt {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return f
}

// ParseAssignments turns col=value pairs into a patch of kind.
func ParseAssignments(spec *model.KindSpec, pairs []string) (model.Row, error) {
	out := make(model.Row, len(pairs))
	for _, p := range pairs {
		name, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not col=value", errs.ErrInvalid, p)
		}
		col, ok := spec.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no column %q", errs.ErrInvalid, spec.Kind, name)
		}
		v, err := model.ParseValue(col, val)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", errs.ErrInvalid, spec.Kind, name, err)
		}
		out[name] = v
	}
	return out, nil
}

// ParseConditions turns col=value pairs into equality conditions.
func ParseConditions(spec *model.KindSpec, pairs []string) ([]model.Cond, error) {
	row, err := ParseAssignments(spec, pairs)
	if err != nil {
		return nil, err
	}
	conds := make([]model.Cond, 0, len(row))
	for k, v := range row {
		if v == nil {
			conds = append(conds, model.IsNull(k))
			continue
		}
		conds = append(conds, model.Eq(k, v))
	}
	return conds, nil
}

// CreateRow creates a record of kind from a canonical row, stamping the
// acting member into empty ownership columns.
func (c *Community) CreateRow(ctx context.Context, kind string, row model.Row) (model.Row, error) {
	t, err := c.Table(kind)
	if err != nil {
		return nil, err
	}
	row = row.Clone()
	if c.actor != uuid.Nil {
		for _, name := range actorColumns {
			if _, ok := t.Spec().Column(name); ok && row[name] == nil {
				row[name] = c.actor
			}
		}
	}
	return t.Create(ctx, row)
}

// UpdateRow applies patch to the record of kind with id.
func (c *Community) UpdateRow(ctx context.Context, kind string, id uuid.UUID, patch model.Row) (model.Row, error) {
	t, err := c.Table(kind)
	if err != nil {
		return nil, err
	}
	return t.Update(ctx, id, patch)
}
