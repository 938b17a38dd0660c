package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
)

// Stage writes the optimistic cache image of an offline write and queues it.
func (s *Store) Stage(ctx context.Context, spec *model.KindSpec, row model.Row, m model.QueuedMutation) (int64, error) {
	if m.Kind != spec.Kind || m.RecordID != row.ID() {
		return 0, fmt.Errorf("%w: staged mutation does not match row", errs.ErrInvalid)
	}
	if err := checkMutation(m); err != nil {
		return 0, err
	}
	img, err := cacheImage(spec, row, model.StatusPending)
	if err != nil {
		return 0, err
	}
	var entry int64
	err = s.inTx(ctx, "stage", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertSQL(spec), img...); err != nil {
			return err
		}
		var err error
		entry, err = enqueue(ctx, tx, m, s.now())
		return err
	})
	return entry, err
}

// StageUpdate applies an offline update to the cached row and queues it.
// The read, merge and write happen under one transaction, so concurrent
// updates of the same record cannot lose each other's fields.
func (s *Store) StageUpdate(ctx context.Context, spec *model.KindSpec, m model.QueuedMutation, check func(model.Row) error) (model.Row, int64, error) {
	if m.Kind != spec.Kind || m.Op != model.OpUpdate {
		return nil, 0, fmt.Errorf("%w: staged mutation is not an update of %s", errs.ErrInvalid, spec.Kind)
	}
	if err := checkMutation(m); err != nil {
		return nil, 0, err
	}
	var (
		next  model.Row
		entry int64
	)
	err := s.inTx(ctx, "stage update", func(tx *sql.Tx) error {
		cur, err := getByID(ctx, tx, spec, m.RecordID)
		if err != nil {
			return err
		}
		next = cur.Merge(m.Payload)
		delete(next, "sync_status")
		if check != nil {
			if err := check(next); err != nil {
				return err
			}
		}
		img, err := cacheImage(spec, next, model.StatusPending)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertSQL(spec), img...); err != nil {
			return err
		}
		entry, err = enqueue(ctx, tx, m, s.now())
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return next, entry, nil
}

// StageDelete drops the cached row and queues its remote delete.
func (s *Store) StageDelete(ctx context.Context, spec *model.KindSpec, id uuid.UUID) (int64, error) {
	m := model.QueuedMutation{Kind: spec.Kind, Op: model.OpDelete, RecordID: id}
	if err := checkMutation(m); err != nil {
		return 0, err
	}
	var entry int64
	err := s.inTx(ctx, "stage delete", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+spec.CacheTable+" WHERE id = ?", id.String()); err != nil {
			return err
		}
		var err error
		entry, err = enqueue(ctx, tx, m, s.now())
		return err
	})
	return entry, err
}

// Settle retires an applied entry. The cached row follows the remote outcome
// only when no later entry for the same record is still queued.
func (s *Store) Settle(ctx context.Context, spec *model.KindSpec, entry model.QueuedMutation, mirror model.Row) error {
	var img []any
	if mirror != nil {
		var err error
		if img, err = cacheImage(spec, mirror, model.StatusSynced); err != nil {
			return err
		}
	}
	return s.inTx(ctx, "settle", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM mutation_queue WHERE id = ?`, entry.ID); err != nil {
			return err
		}
		left, err := countFor(ctx, tx, spec.Kind, entry.RecordID)
		if err != nil || left > 0 {
			return err
		}
		if img != nil {
			_, err = tx.ExecContext(ctx, upsertSQL(spec), img...)
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM "+spec.CacheTable+" WHERE id = ?", entry.RecordID.String())
		return err
	})
}
