// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/model"
)

// CacheStore keeps one durable table of cached records per entity kind.
// Rows returned by it carry a "sync_status" key.
type CacheStore interface {
	// GetCache returns rows matching f, empty (not an error) when nothing matches.
	GetCache(ctx context.Context, spec *model.KindSpec, f model.Filter) ([]model.Row, error)
	// GetByID returns one cached row or errs.ErrNotFound.
	GetByID(ctx context.Context, spec *model.KindSpec, id uuid.UUID) (model.Row, error)
	// UpsertCache inserts or fully overwrites rows by id in one transaction.
	UpsertCache(ctx context.Context, spec *model.KindSpec, rows []model.Row, status model.SyncStatus) error
	// DeleteCache removes a row; a missing row is not an error.
	DeleteCache(ctx context.Context, spec *model.KindSpec, id uuid.UUID) error
	// ClearCache drops every row of the kind.
	ClearCache(ctx context.Context, spec *model.KindSpec) error
	// MarkSynced records when the kind was last refreshed from the remote.
	MarkSynced(ctx context.Context, kind model.Kind, at time.Time) error
	// LastSynced returns the last refresh time, zero if never.
	LastSynced(ctx context.Context, kind model.Kind) (time.Time, error)
}

// MutationQueue is the durable FIFO of write intents awaiting remote application.
type MutationQueue interface {
	// Add appends an entry and returns its queue id.
	Add(ctx context.Context, m model.QueuedMutation) (int64, error)
	// Drain returns every entry in global enqueue order without removing any.
	Drain(ctx context.Context) ([]model.QueuedMutation, error)
	// Remove deletes one applied entry.
	Remove(ctx context.Context, entryID int64) error
	// MarkFailed records a failed attempt and when the entry may be retried.
	MarkFailed(ctx context.Context, entryID int64, cause string, next time.Time) error
	// Stats reports queue length and its head entry.
	Stats(ctx context.Context) (model.QueueStats, error)
	// PendingIDs returns the record ids of kind that have queued entries.
	PendingIDs(ctx context.Context, kind model.Kind) (map[uuid.UUID]struct{}, error)
	// Count returns how many entries are queued for one record.
	Count(ctx context.Context, kind model.Kind, id uuid.UUID) (int, error)
}

// LocalStore is the cache and the queue sharing one database, so that the
// combined operations below are atomic.
type LocalStore interface {
	CacheStore
	MutationQueue

	// Stage upserts row as pending and appends m in one transaction.
	Stage(ctx context.Context, spec *model.KindSpec, row model.Row, m model.QueuedMutation) (int64, error)
	// StageUpdate merges m.Payload into the cached row, checks the result
	// with check when non-nil, stores it as pending and appends m, all in one
	// transaction. A record missing from the cache is errs.ErrNotFound.
	StageUpdate(ctx context.Context, spec *model.KindSpec, m model.QueuedMutation, check func(model.Row) error) (model.Row, int64, error)
	// StageDelete removes the cached row and appends a delete entry in one transaction.
	StageDelete(ctx context.Context, spec *model.KindSpec, id uuid.UUID) (int64, error)
	// Settle removes an applied entry and, unless later entries for the same
	// record remain, mirrors the remote outcome: mirror is stored as synced,
	// nil mirror removes the cached row.
	Settle(ctx context.Context, spec *model.KindSpec, entry model.QueuedMutation, mirror model.Row) error

	Close() error
}
