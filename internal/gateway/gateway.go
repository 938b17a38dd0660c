package gateway

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
)

type validator interface{ Validate() error }

// Gateway is the typed face of a Table for entity type T.
type Gateway[T any, PT model.RecordPtr[T]] struct {
	t *Table
}

// New builds the gateway for the kind of T. When *T has a Validate method
// every create and update through the kind's Table is checked with it.
func New[T any, PT model.RecordPtr[T]](d Deps) *Gateway[T, PT] {
	var zero T
	g := &Gateway[T, PT]{t: NewTable(model.MustLookup(PT(&zero).Kind()), d)}
	if _, ok := any(PT(&zero)).(validator); ok {
		g.t.check = g.check
	}
	return g
}

// Table exposes the untyped gateway sharing the same dependencies.
func (g *Gateway[T, PT]) Table() *Table { return g.t }

func (g *Gateway[T, PT]) decode(r model.Row) (*T, error) {
	var v T
	if err := PT(&v).FromRow(r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", g.t.spec.Kind, err)
	}
	return &v, nil
}

// check validates r as a T and folds defaults set by Validate back in.
func (g *Gateway[T, PT]) check(r model.Row) (model.Row, error) {
	v, err := g.decode(r)
	if err != nil {
		return nil, err
	}
	if err := any(PT(v)).(validator).Validate(); err != nil {
		return nil, err
	}
	return r.Merge(PT(v).ToRow()), nil
}

// Read returns the records matching f.
func (g *Gateway[T, PT]) Read(ctx context.Context, f model.Filter) ([]T, error) {
	rows, err := g.t.Read(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := g.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Get returns one record by id.
func (g *Gateway[T, PT]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	r, err := g.t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.decode(r)
}

// Create writes v. A nil id is generated.
func (g *Gateway[T, PT]) Create(ctx context.Context, v *T) (*T, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil %s", errs.ErrInvalid, g.t.spec.Kind)
	}
	r, err := g.t.Create(ctx, PT(v).ToRow())
	if err != nil {
		return nil, err
	}
	return g.decode(r)
}

// Update applies patch to the record with id.
func (g *Gateway[T, PT]) Update(ctx context.Context, id uuid.UUID, patch model.Row) (*T, error) {
	r, err := g.t.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return g.decode(r)
}

// Delete removes the record with id.
func (g *Gateway[T, PT]) Delete(ctx context.Context, id uuid.UUID) error {
	return g.t.Delete(ctx, id)
}
