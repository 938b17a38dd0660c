package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func taskRow(title string, photos []string) model.Row {
	now := time.Now().UTC().Truncate(time.Microsecond)
	t := model.Task{
		Base:        model.Base{ID: uuid.Must(uuid.NewV4())},
		Title:       title,
		Type:        "site",
		Status:      model.TaskAvailable,
		Priority:    "low",
		Category:    "general",
		ProofPhotos: photos,
		CreatedBy:   uuid.Must(uuid.NewV4()),
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatorName: "Ann",
	}
	return t.ToRow()
}

func TestGetCache_EmptyTable(t *testing.T) {
	s := newStore(t)
	rows, err := s.GetCache(context.Background(), model.MustLookup(model.KindPost), model.Filter{})
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}

func TestUpsertCache_InsertThenOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)

	r := taskRow("Mow", []string{"a.jpg", "b, c.jpg", `"q".jpg`})
	require.NoError(t, s.UpsertCache(ctx, spec, []model.Row{r}, model.StatusSynced))

	got, err := s.GetByID(ctx, spec, r.ID())
	require.NoError(t, err)
	require.Equal(t, "synced", got["sync_status"])
	require.Equal(t, r.List("proof_photos"), got.List("proof_photos"))
	require.True(t, r.Time("created_at").Equal(got.Time("created_at")))
	require.Equal(t, "Ann", got.Str("creator_name"))
	require.Nil(t, got["description"])

	upd := r.Merge(model.Row{"title": "Mow twice", "proof_photos": []string{}})
	require.NoError(t, s.UpsertCache(ctx, spec, []model.Row{upd}, model.StatusPending))

	all, err := s.GetCache(ctx, spec, model.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Mow twice", all[0].Str("title"))
	require.Equal(t, []string{}, all[0].List("proof_photos"))
	require.Equal(t, "pending", all[0]["sync_status"])

	var task model.Task
	require.NoError(t, task.FromRow(all[0]))
	require.Equal(t, model.StatusPending, task.SyncState())
}

func TestUpsertCache_InvalidRowLeavesBatchUnapplied(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)

	good := taskRow("ok", nil)
	bad := taskRow("bad", nil)
	bad["title"] = 42
	err := s.UpsertCache(ctx, spec, []model.Row{good, bad}, model.StatusSynced)
	require.ErrorIs(t, err, errs.ErrInvalid)

	_, err = s.GetByID(ctx, spec, good.ID())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetCache_Filter(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)

	a, b := taskRow("a", nil), taskRow("b", nil)
	b["status"] = model.TaskCompleted
	b["is_completed"] = true
	require.NoError(t, s.UpsertCache(ctx, spec, []model.Row{a, b}, model.StatusSynced))

	rows, err := s.GetCache(ctx, spec, model.Where(model.Eq("is_completed", true)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, b.ID(), rows[0].ID())

	rows, err = s.GetCache(ctx, spec, model.Where(model.Eq("id", a.ID())))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a", rows[0].Str("title"))

	_, err = s.GetCache(ctx, spec, model.Where(model.Eq("no_such", 1)))
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestDeleteAndClearCache(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)
	a, b := taskRow("a", nil), taskRow("b", nil)
	require.NoError(t, s.UpsertCache(ctx, spec, []model.Row{a, b}, model.StatusSynced))

	require.NoError(t, s.DeleteCache(ctx, spec, a.ID()))
	require.NoError(t, s.DeleteCache(ctx, spec, a.ID()))
	_, err := s.GetByID(ctx, spec, a.ID())
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.ClearCache(ctx, spec))
	rows, err := s.GetCache(ctx, spec, model.Filter{})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSyncState(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	at, err := s.LastSynced(ctx, model.KindPost)
	require.NoError(t, err)
	require.True(t, at.IsZero())

	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSynced(ctx, model.KindPost, now))
	require.NoError(t, s.MarkSynced(ctx, model.KindPost, now.Add(time.Hour)))
	at, err = s.LastSynced(ctx, model.KindPost)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), at)
}

func TestQueue_OrderAndSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	s := openStore(t, path)

	r := taskRow("a", []string{"x"})
	id := r.ID()
	_, err := s.Add(ctx, model.QueuedMutation{Kind: model.KindTask, Op: model.OpInsert, RecordID: id, Payload: r})
	require.NoError(t, err)
	_, err = s.Add(ctx, model.QueuedMutation{Kind: model.KindTask, Op: model.OpUpdate, RecordID: id, Payload: model.Row{"title": "b"}})
	require.NoError(t, err)
	_, err = s.Add(ctx, model.QueuedMutation{Kind: model.KindPost, Op: model.OpDelete, RecordID: uuid.Must(uuid.NewV4())})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = openStore(t, path)
	defer s.Close()

	q, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, q, 3)
	require.Equal(t, model.OpInsert, q[0].Op)
	require.Equal(t, model.OpUpdate, q[1].Op)
	require.Equal(t, model.OpDelete, q[2].Op)
	require.Less(t, q[0].ID, q[1].ID)
	require.Equal(t, id, q[0].RecordID)
	require.Equal(t, id, q[0].Payload.ID())
	require.Equal(t, []string{"x"}, q[0].Payload.List("proof_photos"))
	require.True(t, r.Time("created_at").Equal(q[0].Payload.Time("created_at")))
	require.Equal(t, model.Row{"title": "b"}, q[1].Payload)
	require.Empty(t, q[2].Payload)

	// drain does not consume
	again, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, again, 3)

	require.NoError(t, s.Remove(ctx, q[0].ID))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Pending)
	require.Equal(t, q[1].ID, st.Head.ID)

	n, err := s.Count(ctx, model.KindTask, id)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ids, err := s.PendingIDs(ctx, model.KindTask)
	require.NoError(t, err)
	require.Contains(t, ids, id)
	require.Len(t, ids, 1)
}

func TestQueue_AddRejectsBadEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Add(ctx, model.QueuedMutation{Kind: model.KindTask, Op: "upsert", RecordID: uuid.Must(uuid.NewV4())})
	require.ErrorIs(t, err, errs.ErrInvalid)
	_, err = s.Add(ctx, model.QueuedMutation{Kind: model.KindTask, Op: model.OpDelete})
	require.ErrorIs(t, err, errs.ErrInvalid)
	_, err = s.Add(ctx, model.QueuedMutation{Kind: "weeds", Op: model.OpDelete, RecordID: uuid.Must(uuid.NewV4())})
	require.ErrorIs(t, err, errs.ErrUnknownKind)
}

func TestQueue_MarkFailed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	entry, err := s.Add(ctx, model.QueuedMutation{Kind: model.KindTask, Op: model.OpDelete, RecordID: uuid.Must(uuid.NewV4())})
	require.NoError(t, err)

	next := time.Now().Add(time.Minute).UTC()
	require.NoError(t, s.MarkFailed(ctx, entry, "remote rejected", next))
	require.NoError(t, s.MarkFailed(ctx, entry, "remote rejected again", next))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Head.RetryCount)
	require.Equal(t, "remote rejected again", st.Head.LastError)
	require.True(t, next.Equal(st.Head.NextAttemptAt))
	require.False(t, st.Head.Due(time.Now()))

	require.NoError(t, s.MarkFailed(ctx, 9999, "gone", next))
}

func TestStage_CacheAndQueueTogether(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)
	r := taskRow("Offline", nil)

	entry, err := s.Stage(ctx, spec, r, model.QueuedMutation{Kind: model.KindTask, Op: model.OpInsert, RecordID: r.ID(), Payload: r})
	require.NoError(t, err)
	require.NotZero(t, entry)

	got, err := s.GetByID(ctx, spec, r.ID())
	require.NoError(t, err)
	require.Equal(t, "pending", got["sync_status"])

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.Pending)

	_, err = s.Stage(ctx, spec, r, model.QueuedMutation{Kind: model.KindTask, Op: model.OpInsert, RecordID: uuid.Must(uuid.NewV4())})
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestStageUpdate_MergesIntoCachedRow(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)
	r := taskRow("Weed", []string{"a.jpg"})
	require.NoError(t, s.UpsertCache(ctx, spec, []model.Row{r}, model.StatusSynced))

	upd := func(patch model.Row) model.QueuedMutation {
		return model.QueuedMutation{Kind: model.KindTask, Op: model.OpUpdate, RecordID: r.ID(), Payload: patch}
	}
	next, entry, err := s.StageUpdate(ctx, spec, upd(model.Row{"priority": "high"}), nil)
	require.NoError(t, err)
	require.NotZero(t, entry)
	require.Equal(t, "high", next.Str("priority"))
	require.Equal(t, "Weed", next.Str("title"))

	_, _, err = s.StageUpdate(ctx, spec, upd(model.Row{"title": "Weed beds"}), nil)
	require.NoError(t, err)
	got, err := s.GetByID(ctx, spec, r.ID())
	require.NoError(t, err)
	require.Equal(t, "pending", got["sync_status"])
	require.Equal(t, "high", got.Str("priority"))
	require.Equal(t, "Weed beds", got.Str("title"))
	require.Equal(t, []string{"a.jpg"}, got.List("proof_photos"))

	// a refused merge leaves cache and queue untouched
	refuse := errors.New("refused")
	_, _, err = s.StageUpdate(ctx, spec, upd(model.Row{"title": "x"}), func(model.Row) error {
		return fmt.Errorf("%w: %v", errs.ErrInvalid, refuse)
	})
	require.ErrorIs(t, err, errs.ErrInvalid)
	got, err = s.GetByID(ctx, spec, r.ID())
	require.NoError(t, err)
	require.Equal(t, "Weed beds", got.Str("title"))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Pending)

	_, _, err = s.StageUpdate(ctx, spec, model.QueuedMutation{Kind: model.KindTask, Op: model.OpUpdate, RecordID: uuid.Must(uuid.NewV4()), Payload: model.Row{"title": "y"}}, nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, _, err = s.StageUpdate(ctx, spec, model.QueuedMutation{Kind: model.KindTask, Op: model.OpInsert, RecordID: r.ID()}, nil)
	require.ErrorIs(t, err, errs.ErrInvalid)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Pending)
}

func TestStageUpdate_ConcurrentUpdatesKeepEveryField(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)
	r := taskRow("Water", nil)
	require.NoError(t, s.UpsertCache(ctx, spec, []model.Row{r}, model.StatusSynced))

	patches := []model.Row{{"title": "Water beans"}, {"priority": "high"}, {"category": "veg"}, {"is_completed": true}}
	errCh := make(chan error, len(patches))
	start := make(chan struct{})
	for _, p := range patches {
		go func(p model.Row) {
			<-start
			_, _, err := s.StageUpdate(ctx, spec, model.QueuedMutation{Kind: model.KindTask, Op: model.OpUpdate, RecordID: r.ID(), Payload: p}, nil)
			errCh <- err
		}(p)
	}
	close(start)
	for range patches {
		require.NoError(t, <-errCh)
	}

	got, err := s.GetByID(ctx, spec, r.ID())
	require.NoError(t, err)
	require.Equal(t, "Water beans", got.Str("title"))
	require.Equal(t, "high", got.Str("priority"))
	require.Equal(t, "veg", got.Str("category"))
	require.True(t, got.Bool("is_completed"))
}

func TestStageDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)
	r := taskRow("Gone", nil)
	require.NoError(t, s.UpsertCache(ctx, spec, []model.Row{r}, model.StatusSynced))

	_, err := s.StageDelete(ctx, spec, r.ID())
	require.NoError(t, err)
	_, err = s.GetByID(ctx, spec, r.ID())
	require.True(t, errors.Is(err, errs.ErrNotFound))

	q, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, q, 1)
	require.Equal(t, model.OpDelete, q[0].Op)
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)
	r := taskRow("v1", nil)

	_, err := s.Stage(ctx, spec, r, model.QueuedMutation{Kind: model.KindTask, Op: model.OpInsert, RecordID: r.ID(), Payload: r})
	require.NoError(t, err)
	v2 := r.Merge(model.Row{"title": "v2"})
	_, err = s.Stage(ctx, spec, v2, model.QueuedMutation{Kind: model.KindTask, Op: model.OpUpdate, RecordID: r.ID(), Payload: model.Row{"title": "v2"}})
	require.NoError(t, err)

	q, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, q, 2)

	// a later entry is still queued: the optimistic v2 stays
	require.NoError(t, s.Settle(ctx, spec, q[0], r))
	got, err := s.GetByID(ctx, spec, r.ID())
	require.NoError(t, err)
	require.Equal(t, "v2", got.Str("title"))
	require.Equal(t, "pending", got["sync_status"])

	remote := v2.Merge(model.Row{"creator_name": "Ann Remote"})
	require.NoError(t, s.Settle(ctx, spec, q[1], remote))
	got, err = s.GetByID(ctx, spec, r.ID())
	require.NoError(t, err)
	require.Equal(t, "synced", got["sync_status"])
	require.Equal(t, "Ann Remote", got.Str("creator_name"))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, st.Pending)
	require.Nil(t, st.Head)
}

func TestSettle_NilMirrorDropsRow(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	spec := model.MustLookup(model.KindTask)
	r := taskRow("orphan", nil)

	entry, err := s.Stage(ctx, spec, r, model.QueuedMutation{Kind: model.KindTask, Op: model.OpUpdate, RecordID: r.ID(), Payload: model.Row{"title": "orphan"}})
	require.NoError(t, err)
	require.NoError(t, s.Settle(ctx, spec, model.QueuedMutation{ID: entry, Kind: model.KindTask, RecordID: r.ID()}, nil))

	_, err = s.GetByID(ctx, spec, r.ID())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStorageErrorAfterClose(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, s.Close())

	_, err := s.GetCache(context.Background(), model.MustLookup(model.KindPost), model.Filter{})
	require.ErrorIs(t, err, errs.ErrStorage)
	var se *errs.StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "get cache", se.Op)
}
