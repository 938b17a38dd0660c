// Package migrate applies embedded SQL migrations to the local cache and the remote backend.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/growing-together/migrations"
)

// Local runs pending cache/queue migrations on an open SQLite handle.
func Local(ctx context.Context, db *sql.DB) error {
	return run(ctx, goose.DialectSQLite3, db, "local")
}

// Up runs all pending remote migrations against the PostgreSQL database at dsn.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return run(ctx, goose.DialectPostgres, db, "remote")
}

func run(ctx context.Context, dialect goose.Dialect, db *sql.DB, dir string) error {
	sub, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	return nil
}
