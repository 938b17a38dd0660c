// Package gateway implements the per-kind entity gateway: every read and write
// branches on connectivity, mirrors remote results into the local cache and
// queues writes that cannot reach the remote yet.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/growing-together/internal/connectivity"
	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
	"github.com/and161185/growing-together/internal/repository"
)

// Deps are shared by every gateway of a process.
type Deps struct {
	Local  repository.LocalStore
	Remote repository.RemoteDataSource
	Oracle connectivity.Oracle
	// Kick asks the reconciler for a drain; nil disables it.
	Kick func()
	Log  *zap.Logger
	// WriteTimeout bounds one remote write; default 15s.
	WriteTimeout time.Duration
	Now          func() time.Time
}

// Table is the untyped gateway for one kind. Rows it returns carry "sync_status".
type Table struct {
	spec    *model.KindSpec
	members *model.KindSpec
	d       Deps
	log     *zap.Logger
	// check validates a full row and returns it with defaults applied.
	check func(model.Row) (model.Row, error)
}

// NewTable builds the gateway for spec.
func NewTable(spec *model.KindSpec, d Deps) *Table {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.WriteTimeout <= 0 {
		d.WriteTimeout = 15 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	t := &Table{spec: spec, d: d, log: d.Log.With(zap.String("kind", string(spec.Kind)))}
	if spec.Join != nil {
		t.members = model.MustLookup(spec.Join.Target)
	}
	return t
}

// Spec returns the kind served by t.
func (t *Table) Spec() *model.KindSpec { return t.spec }

func (t *Table) kick() {
	if t.d.Kick != nil {
		t.d.Kick()
	}
}

// remote runs fn against the remote to completion: the caller's cancellation
// does not reach it, only the write timeout does.
func (t *Table) remote(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.d.WriteTimeout)
	defer cancel()
	return fn(ctx)
}

// direct reports whether a write to id may go straight to the remote: the
// remote must be reachable and no earlier write to id may still be queued.
func (t *Table) direct(ctx context.Context, id uuid.UUID) (bool, error) {
	if !t.d.Oracle.IsOnline(ctx) {
		return false, nil
	}
	n, err := t.d.Local.Count(ctx, t.spec.Kind, id)
	if err != nil {
		return false, err
	}
	if n > 0 {
		t.log.Debug("earlier writes still queued, queueing", zap.Stringer("id", id), zap.Int("queued", n))
		return false, nil
	}
	return true, nil
}

func fallback(err error) bool { return errors.Is(err, errs.ErrRemoteUnavailable) }

func withStatus(r model.Row, s model.SyncStatus) model.Row {
	r["sync_status"] = string(s)
	return r
}

func empty(v any) bool {
	s, ok := v.(string)
	return v == nil || ok && s == ""
}

// placeholders fills joined fields the cache never learned.
func (t *Table) placeholders(r model.Row) model.Row {
	if t.spec.Join == nil {
		return r
	}
	for _, f := range t.spec.Join.Fields {
		if f.Placeholder != "" && empty(r[f.Name]) {
			r[f.Name] = f.Placeholder
		}
	}
	return r
}

// denormalize copies joined fields from the cached member row, if any.
func (t *Table) denormalize(ctx context.Context, r model.Row) {
	if t.spec.Join == nil {
		return
	}
	ref := r.UUID(t.spec.Join.On)
	if ref.IsNil() {
		return
	}
	m, err := t.d.Local.GetByID(ctx, t.members, ref)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			t.log.Warn("member lookup for joined fields", zap.Error(err))
		}
		return
	}
	for _, f := range t.spec.Join.Fields {
		if empty(r[f.Name]) {
			r[f.Name] = m[f.Source]
		}
	}
}

// Read returns rows matching f: from the remote when reachable, else from the cache.
func (t *Table) Read(ctx context.Context, f model.Filter) ([]model.Row, error) {
	f.Where = slices.Clone(f.Where)
	if err := f.Validate(t.spec); err != nil {
		return nil, err
	}
	if t.d.Oracle.IsOnline(ctx) {
		rows, err := t.d.Remote.Select(ctx, t.spec, f)
		if err == nil {
			return t.mirrorRead(ctx, f, rows)
		}
		if !fallback(err) {
			return nil, err
		}
		t.log.Info("remote read failed, serving cache", zap.Error(err))
	}
	rows, err := t.d.Local.GetCache(ctx, t.spec, f)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		t.placeholders(r)
	}
	return rows, nil
}

// mirrorRead caches remote rows as synced and overlays records with queued
// writes by their local version, which is newer than anything remote.
func (t *Table) mirrorRead(ctx context.Context, f model.Filter, remote []model.Row) ([]model.Row, error) {
	pending, err := t.d.Local.PendingIDs(ctx, t.spec.Kind)
	if err != nil {
		return nil, err
	}
	fresh := make([]model.Row, 0, len(remote))
	for _, r := range remote {
		if _, ok := pending[r.ID()]; !ok {
			fresh = append(fresh, r)
		}
	}
	if err := t.d.Local.UpsertCache(ctx, t.spec, fresh, model.StatusSynced); err != nil {
		return nil, err
	}
	if f.Limit == 0 && len(f.Where) == 0 {
		if err := t.d.Local.MarkSynced(ctx, t.spec.Kind, t.d.Now()); err != nil {
			return nil, err
		}
	}
	for _, r := range fresh {
		withStatus(r, model.StatusSynced)
	}
	if len(pending) == 0 {
		return fresh, nil
	}
	unlimited := f
	unlimited.Limit = 0
	local, err := t.d.Local.GetCache(ctx, t.spec, unlimited)
	if err != nil {
		return nil, err
	}
	for _, r := range local {
		if _, ok := pending[r.ID()]; ok {
			fresh = append(fresh, t.placeholders(r))
		}
	}
	return f.Apply(fresh, t.spec.DefaultOrder), nil
}

// Get returns one row by id.
func (t *Table) Get(ctx context.Context, id uuid.UUID) (model.Row, error) {
	if t.d.Oracle.IsOnline(ctx) {
		r, err := t.d.Remote.Get(ctx, t.spec, id)
		switch {
		case err == nil:
			rows, err := t.mirrorRead(ctx, model.Where(model.Eq("id", id)), []model.Row{r})
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, fmt.Errorf("%s %s: %w", t.spec.Kind, id, errs.ErrNotFound)
			}
			return rows[0], nil
		case errors.Is(err, errs.ErrNotFound):
			// a queued insert may not have reached the remote yet
			n, err := t.d.Local.Count(ctx, t.spec.Kind, id)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				if err := t.d.Local.DeleteCache(ctx, t.spec, id); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%s %s: %w", t.spec.Kind, id, errs.ErrNotFound)
			}
		case !fallback(err):
			return nil, err
		}
	}
	r, err := t.d.Local.GetByID(ctx, t.spec, id)
	if err != nil {
		return nil, err
	}
	return t.placeholders(r), nil
}

// Create writes a new record. An id is generated when r has none.
func (t *Table) Create(ctx context.Context, r model.Row) (model.Row, error) {
	r = r.Clone()
	delete(r, "sync_status")
	if r.ID().IsNil() {
		r["id"] = uuid.Must(uuid.NewV4())
	}
	now := t.d.Now().UTC()
	if t.spec.StampCreated && r["created_at"] == nil {
		r["created_at"] = now
	}
	if t.spec.StampUpdated && r["updated_at"] == nil {
		r["updated_at"] = now
	}
	if err := t.spec.ValidatePatch(r); err != nil {
		return nil, err
	}
	if t.check != nil {
		var err error
		if r, err = t.check(r); err != nil {
			return nil, err
		}
	}
	if err := t.spec.ValidateRow(r); err != nil {
		return nil, err
	}
	id := r.ID()
	wctx := context.WithoutCancel(ctx)

	direct, err := t.direct(ctx, id)
	if err != nil {
		return nil, err
	}
	if direct {
		var out model.Row
		err := t.remote(ctx, func(ctx context.Context) (err error) {
			out, err = t.d.Remote.Insert(ctx, t.spec, r)
			return err
		})
		if err == nil {
			if err := t.d.Local.UpsertCache(wctx, t.spec, []model.Row{out}, model.StatusSynced); err != nil {
				return nil, err
			}
			t.log.Debug("created remotely", zap.Stringer("id", id))
			return withStatus(out, model.StatusSynced), nil
		}
		if !fallback(err) {
			return nil, err
		}
		t.log.Info("remote create failed, queueing", zap.Stringer("id", id), zap.Error(err))
	}

	t.denormalize(wctx, r)
	m := model.QueuedMutation{Kind: t.spec.Kind, Op: model.OpInsert, RecordID: id, Payload: t.spec.Writable(r)}
	entry, err := t.d.Local.Stage(wctx, t.spec, r, m)
	if err != nil {
		return nil, err
	}
	t.log.Debug("create queued", zap.Stringer("id", id), zap.Int64("entry", entry))
	t.kick()
	return t.placeholders(withStatus(r, model.StatusPending)), nil
}

// Update applies patch to the record with id.
// Offline, the record must be cached; otherwise errs.ErrNotFound.
func (t *Table) Update(ctx context.Context, id uuid.UUID, patch model.Row) (model.Row, error) {
	patch = t.spec.Writable(patch)
	delete(patch, "id")
	if t.spec.StampUpdated && patch["updated_at"] == nil {
		patch["updated_at"] = t.d.Now().UTC()
	}
	if err := t.spec.ValidatePatch(patch); err != nil {
		return nil, err
	}
	if err := t.checkPatch(ctx, id, patch); err != nil {
		return nil, err
	}
	wctx := context.WithoutCancel(ctx)

	direct, err := t.direct(ctx, id)
	if err != nil {
		return nil, err
	}
	if direct {
		var out model.Row
		err := t.remote(ctx, func(ctx context.Context) (err error) {
			out, err = t.d.Remote.Update(ctx, t.spec, id, patch)
			return err
		})
		switch {
		case err == nil:
			if err := t.d.Local.UpsertCache(wctx, t.spec, []model.Row{out}, model.StatusSynced); err != nil {
				return nil, err
			}
			return withStatus(out, model.StatusSynced), nil
		case errors.Is(err, errs.ErrNotFound):
			if err := t.d.Local.DeleteCache(wctx, t.spec, id); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%s %s: %w", t.spec.Kind, id, errs.ErrNotFound)
		case !fallback(err):
			return nil, err
		}
		t.log.Info("remote update failed, queueing", zap.Stringer("id", id), zap.Error(err))
	}

	m := model.QueuedMutation{Kind: t.spec.Kind, Op: model.OpUpdate, RecordID: id, Payload: patch}
	next, entry, err := t.d.Local.StageUpdate(wctx, t.spec, m, t.checkMerged)
	if err != nil {
		return nil, err
	}
	t.log.Debug("update queued", zap.Stringer("id", id), zap.Int64("entry", entry))
	t.kick()
	return t.placeholders(withStatus(next, model.StatusPending)), nil
}

// checkPatch validates the cached record with patch applied. Uncached
// records are left to the remote to judge. The queued path checks again
// inside its transaction.
func (t *Table) checkPatch(ctx context.Context, id uuid.UUID, patch model.Row) error {
	if t.check == nil {
		return nil
	}
	cur, err := t.d.Local.GetByID(ctx, t.spec, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return t.checkMerged(cur.Merge(patch))
}

func (t *Table) checkMerged(r model.Row) error {
	if t.check == nil {
		return nil
	}
	_, err := t.check(r)
	return err
}

// Delete removes the record with id. Deleting a missing record is not an error.
func (t *Table) Delete(ctx context.Context, id uuid.UUID) error {
	wctx := context.WithoutCancel(ctx)
	direct, err := t.direct(ctx, id)
	if err != nil {
		return err
	}
	if direct {
		err := t.remote(ctx, func(ctx context.Context) error {
			return t.d.Remote.Delete(ctx, t.spec, id)
		})
		if err == nil || errors.Is(err, errs.ErrNotFound) {
			return t.d.Local.DeleteCache(wctx, t.spec, id)
		}
		if !fallback(err) {
			return err
		}
		t.log.Info("remote delete failed, queueing", zap.Stringer("id", id), zap.Error(err))
	}
	entry, err := t.d.Local.StageDelete(wctx, t.spec, id)
	if err != nil {
		return err
	}
	t.log.Debug("delete queued", zap.Stringer("id", id), zap.Int64("entry", entry))
	t.kick()
	return nil
}
