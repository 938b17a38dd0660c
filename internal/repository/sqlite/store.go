// Package sqlite implements the local cache store and the mutation queue on one SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/migrate"
	"github.com/and161185/growing-together/internal/model"
	"github.com/and161185/growing-together/internal/repository"
	"github.com/and161185/growing-together/internal/repository/sqlbuild"
)

var _ repository.LocalStore = (*Store)(nil)

// Store owns the local database file.
type Store struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// Open creates or opens the database at path and applies pending migrations.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errs.Storage("open", err)
		}
	}
	// pragmas go in the DSN so every pooled connection gets them; immediate
	// transactions take the write lock before their first read
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, errs.Storage("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Storage("open", err)
	}
	if err := migrate.Local(ctx, db); err != nil {
		db.Close()
		return nil, errs.Storage("migrate", err)
	}
	// single writer; code inside a transaction must only use its tx
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log.Debug("local store opened", zap.String("path", path))
	return &Store{db: db, log: log, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = errs.Storage(op, e)
		}
	}()
	if err = fn(tx); err != nil {
		if errors.Is(err, errs.ErrStorage) || errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrInvalid) {
			return err
		}
		return errs.Storage(op, err)
	}
	return nil
}

// cacheColumns lists the cache table columns: schema columns, joined fields, sync_status.
func cacheColumns(spec *model.KindSpec) []string {
	cols := append(spec.ColumnNames(), spec.JoinedNames()...)
	return append(cols, "sync_status")
}

func scanRows(spec *model.KindSpec, rows *sql.Rows) ([]model.Row, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []model.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		raw := make(map[string]any, len(cols))
		for i, c := range cols {
			raw[c] = vals[i]
		}
		r, err := spec.Normalize(raw)
		if err != nil {
			return nil, err
		}
		status := model.StatusSynced
		if st, ok := raw["sync_status"].(string); ok && st != "" {
			status = model.SyncStatus(st)
		}
		r["sync_status"] = string(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// cacheImage validates row and renders the values of cacheColumns for it.
func cacheImage(spec *model.KindSpec, row model.Row, status model.SyncStatus) ([]any, error) {
	r := row.Clone()
	delete(r, "sync_status")
	if r.ID().IsNil() {
		return nil, fmt.Errorf("%w: %s row without id", errs.ErrInvalid, spec.Kind)
	}
	if err := spec.ValidatePatch(r); err != nil {
		return nil, err
	}
	cols := cacheColumns(spec)
	vals := make([]any, len(cols))
	for i, c := range cols[:len(cols)-1] {
		vals[i] = sqlbuild.Encode(sqlbuild.SQLite, r[c])
	}
	vals[len(cols)-1] = string(status)
	return vals, nil
}

func upsertSQL(spec *model.KindSpec) string {
	cols := cacheColumns(spec)
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, c+" = excluded."+c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		spec.CacheTable, strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		strings.Join(sets, ", "))
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
