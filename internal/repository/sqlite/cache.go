package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
	"github.com/and161185/growing-together/internal/repository/sqlbuild"
)

// GetCache returns cached rows of spec's kind matching f.
func (s *Store) GetCache(ctx context.Context, spec *model.KindSpec, f model.Filter) ([]model.Row, error) {
	f.Where = slices.Clone(f.Where)
	if err := f.Validate(spec); err != nil {
		return nil, err
	}
	q := sqlbuild.New(sqlbuild.SQLite)
	tail, err := q.Select(f, spec.DefaultOrder, "")
	if err != nil {
		return nil, err
	}
	stmt := "SELECT " + strings.Join(cacheColumns(spec), ", ") + " FROM " + spec.CacheTable + tail
	rows, err := s.db.QueryContext(ctx, stmt, q.Args...)
	if err != nil {
		return nil, errs.Storage("get cache", err)
	}
	out, err := scanRows(spec, rows)
	if err != nil {
		return nil, errs.Storage("get cache", err)
	}
	return out, nil
}

// GetByID returns the cached row with id.
func (s *Store) GetByID(ctx context.Context, spec *model.KindSpec, id uuid.UUID) (model.Row, error) {
	return getByID(ctx, s.db, spec, id)
}

func getByID(ctx context.Context, q querier, spec *model.KindSpec, id uuid.UUID) (model.Row, error) {
	stmt := "SELECT " + strings.Join(cacheColumns(spec), ", ") + " FROM " + spec.CacheTable + " WHERE id = ?"
	rows, err := q.QueryContext(ctx, stmt, id.String())
	if err != nil {
		return nil, errs.Storage("get by id", err)
	}
	out, err := scanRows(spec, rows)
	if err != nil {
		return nil, errs.Storage("get by id", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s %s: %w", spec.Kind, id, errs.ErrNotFound)
	}
	return out[0], nil
}

// UpsertCache writes rows with status in a single transaction.
func (s *Store) UpsertCache(ctx context.Context, spec *model.KindSpec, rows []model.Row, status model.SyncStatus) error {
	if len(rows) == 0 {
		return nil
	}
	images := make([][]any, 0, len(rows))
	for _, r := range rows {
		img, err := cacheImage(spec, r, status)
		if err != nil {
			return err
		}
		images = append(images, img)
	}
	return s.inTx(ctx, "upsert cache", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL(spec))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, img := range images {
			if _, err := stmt.ExecContext(ctx, img...); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteCache removes the row with id, if any.
func (s *Store) DeleteCache(ctx context.Context, spec *model.KindSpec, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+spec.CacheTable+" WHERE id = ?", id.String())
	return errs.Storage("delete cache", err)
}

// ClearCache removes every row of the kind.
func (s *Store) ClearCache(ctx context.Context, spec *model.KindSpec) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+spec.CacheTable)
	return errs.Storage("clear cache", err)
}

// MarkSynced stores the last refresh time of kind.
func (s *Store) MarkSynced(ctx context.Context, kind model.Kind, at time.Time) error {
	const q = `INSERT INTO sync_state (kind, last_sync) VALUES (?, ?)
ON CONFLICT (kind) DO UPDATE SET last_sync = excluded.last_sync`
	_, err := s.db.ExecContext(ctx, q, string(kind), model.FormatTime(at))
	return errs.Storage("mark synced", err)
}

// LastSynced returns the last refresh time of kind, zero when never refreshed.
func (s *Store) LastSynced(ctx context.Context, kind model.Kind) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT last_sync FROM sync_state WHERE kind = ?`, string(kind)).Scan(&raw)
	if isNoRows(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errs.Storage("last synced", err)
	}
	t, err := model.ParseTime(raw)
	if err != nil {
		return time.Time{}, errs.Storage("last synced", err)
	}
	return t, nil
}
