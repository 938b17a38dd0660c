package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
	"github.com/and161185/growing-together/internal/repository"
	"github.com/and161185/growing-together/internal/repository/sqlbuild"
)

var _ repository.RemoteDataSource = (*Remote)(nil)

// Remote implements RemoteDataSource using PostgreSQL.
type Remote struct{ db *DB }

// NewRemote constructs the remote data source.
func NewRemote(db *DB) *Remote { return &Remote{db: db} }

// Ping reports whether the backend answers.
func (r *Remote) Ping(ctx context.Context) error { return r.db.Ping(ctx) }

// projection renders the select list and FROM clause over src aliased t,
// joining the member table for denormalized fields.
func projection(spec *model.KindSpec, src string) string {
	cols := make([]string, 0, len(spec.Columns)+2)
	for _, c := range spec.Columns {
		cols = append(cols, "t."+c.Name)
	}
	from := " FROM " + src + " t"
	if j := spec.Join; j != nil {
		for _, f := range j.Fields {
			cols = append(cols, "j."+f.Source+" AS "+f.Name)
		}
		from += fmt.Sprintf(" LEFT JOIN %s j ON j.id = t.%s", model.MustLookup(j.Target).RemoteTable, j.On)
	}
	return "SELECT " + strings.Join(cols, ", ") + from
}

// collect reads every row as column -> canonical value and closes rows.
func collect(spec *model.KindSpec, rows pgx.Rows) ([]model.Row, error) {
	defer rows.Close()
	out := []model.Row{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		raw := make(map[string]any, len(vals))
		for i, fd := range rows.FieldDescriptions() {
			raw[fd.Name] = vals[i]
		}
		row, err := spec.Normalize(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Remote) one(ctx context.Context, spec *model.KindSpec, op, sql string, args ...any) (model.Row, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(op, spec.RemoteTable, err)
	}
	out, err := collect(spec, rows)
	switch {
	case errors.Is(err, errs.ErrInvalid):
		return nil, fmt.Errorf("%s %s: %w", op, spec.RemoteTable, err)
	case err != nil:
		return nil, classify(op, spec.RemoteTable, err)
	case len(out) == 0:
		return nil, errs.ErrNotFound
	}
	return out[0], nil
}

// Select returns rows matching f.
func (r *Remote) Select(ctx context.Context, spec *model.KindSpec, f model.Filter) ([]model.Row, error) {
	f.Where = slices.Clone(f.Where)
	if err := f.Validate(spec); err != nil {
		return nil, err
	}
	q := sqlbuild.New(sqlbuild.Postgres)
	tail, err := q.Select(f, spec.DefaultOrder, "t.")
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, projection(spec, spec.RemoteTable)+tail, q.Args...)
	if err != nil {
		return nil, classify("select", spec.RemoteTable, err)
	}
	out, err := collect(spec, rows)
	if errors.Is(err, errs.ErrInvalid) {
		return nil, fmt.Errorf("select %s: %w", spec.RemoteTable, err)
	}
	if err != nil {
		return nil, classify("select", spec.RemoteTable, err)
	}
	return out, nil
}

// Get returns one row by id.
func (r *Remote) Get(ctx context.Context, spec *model.KindSpec, id uuid.UUID) (model.Row, error) {
	return r.one(ctx, spec, "get", projection(spec, spec.RemoteTable)+" WHERE t.id = $1", id)
}

// present returns the columns of spec that row carries, in schema order.
func present(spec *model.KindSpec, row model.Row) []string {
	var cols []string
	for _, c := range spec.Columns {
		if _, ok := row[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// Insert upserts row by id, so replaying the same insert converges.
func (r *Remote) Insert(ctx context.Context, spec *model.KindSpec, row model.Row) (model.Row, error) {
	w := spec.Writable(row)
	if w.ID().IsNil() {
		return nil, fmt.Errorf("%w: insert %s without id", errs.ErrInvalid, spec.Kind)
	}
	if err := spec.ValidatePatch(w); err != nil {
		return nil, err
	}
	cols := present(spec, w)
	q := sqlbuild.New(sqlbuild.Postgres)
	vals := make([]any, len(cols))
	sets := make([]string, 0, len(cols))
	for i, c := range cols {
		vals[i] = w[c]
		if c != "id" {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
	}
	if len(sets) == 0 {
		sets = append(sets, "id = EXCLUDED.id")
	}
	sql := fmt.Sprintf("WITH w AS (INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s RETURNING *) ",
		spec.RemoteTable, strings.Join(cols, ", "), q.Placeholders(vals), strings.Join(sets, ", "))
	return r.one(ctx, spec, "insert", sql+projection(spec, "w"), q.Args...)
}

// Update applies patch to the row with id. A missing row is errs.ErrNotFound.
func (r *Remote) Update(ctx context.Context, spec *model.KindSpec, id uuid.UUID, patch model.Row) (model.Row, error) {
	w := spec.Writable(patch)
	delete(w, "id")
	if err := spec.ValidatePatch(w); err != nil {
		return nil, err
	}
	if len(w) == 0 {
		return r.Get(ctx, spec, id)
	}
	q := sqlbuild.New(sqlbuild.Postgres)
	q.Arg(id)
	cols := present(spec, w)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = " + q.Arg(w[c])
	}
	sql := fmt.Sprintf("WITH w AS (UPDATE %s SET %s WHERE id = $1 RETURNING *) ",
		spec.RemoteTable, strings.Join(sets, ", "))
	return r.one(ctx, spec, "update", sql+projection(spec, "w"), q.Args...)
}

// Delete removes the row with id. A missing row is errs.ErrNotFound.
func (r *Remote) Delete(ctx context.Context, spec *model.KindSpec, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM "+spec.RemoteTable+" WHERE id = $1", id)
	if err != nil {
		return classify("delete", spec.RemoteTable, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
