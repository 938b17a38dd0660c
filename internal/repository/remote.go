package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/model"
)

// RemoteDataSource is the system of record. Every method distinguishes
// errs.ErrNotFound from errs.ErrRemoteRejected and errs.ErrRemoteUnavailable.
type RemoteDataSource interface {
	// Select returns rows of the kind matching f, joined fields included.
	Select(ctx context.Context, spec *model.KindSpec, f model.Filter) ([]model.Row, error)
	// Get returns one row by id.
	Get(ctx context.Context, spec *model.KindSpec, id uuid.UUID) (model.Row, error)
	// Insert stores row keyed by its id; inserting an existing id overwrites it.
	Insert(ctx context.Context, spec *model.KindSpec, row model.Row) (model.Row, error)
	// Update applies patch to the row with id and returns the result.
	Update(ctx context.Context, spec *model.KindSpec, id uuid.UUID, patch model.Row) (model.Row, error)
	// Delete removes the row with id.
	Delete(ctx context.Context, spec *model.KindSpec, id uuid.UUID) error
}

// Pinger is implemented by remotes that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
