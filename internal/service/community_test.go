package service

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/growing-together/internal/connectivity"
	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/gateway"
	"github.com/and161185/growing-together/internal/model"
	"github.com/and161185/growing-together/internal/repository/memory"
	"github.com/and161185/growing-together/internal/repository/sqlite"
)

type harness struct {
	c      *Community
	remote *memory.Remote
	net    *connectivity.Switch
	store  *sqlite.Store
}

func newHarness(t *testing.T, actor uuid.UUID) *harness {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h := &harness{remote: memory.New(), net: connectivity.NewSwitch(true), store: store}
	h.c = NewCommunity(gateway.Deps{Local: store, Remote: h.remote, Oracle: h.net, Log: zaptest.NewLogger(t)}, actor)
	return h
}

func (h *harness) event(t *testing.T) *model.Event {
	t.Helper()
	ev, err := h.c.Events.Create(context.Background(), &model.Event{
		Title: "work party", Description: "bring gloves", Location: "plot 7",
		StartDate: time.Now().Add(48 * time.Hour).UTC(), CreatedBy: h.c.Actor(),
	})
	require.NoError(t, err)
	return ev
}

func TestTogglePin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, uuid.Must(uuid.NewV4()))
	p, err := h.c.Posts.Create(ctx, &model.Post{UserID: h.c.Actor(), Content: "AGM on sunday"})
	require.NoError(t, err)

	p, err = h.c.TogglePin(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, p.IsPinned)
	p, err = h.c.TogglePin(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, p.IsPinned)
}

func TestClaimAndCompleteTask(t *testing.T) {
	ctx := context.Background()
	actor := uuid.Must(uuid.NewV4())
	h := newHarness(t, actor)
	task, err := h.c.Tasks.Create(ctx, &model.Task{Title: "empty water butts", CreatedBy: actor})
	require.NoError(t, err)
	require.Equal(t, model.TaskAvailable, task.Status)

	task, err = h.c.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskAccepted, task.Status)
	require.NotNil(t, task.AssignedTo)
	require.Equal(t, actor, *task.AssignedTo)

	_, err = h.c.ClaimTask(ctx, task.ID)
	require.ErrorIs(t, err, errs.ErrInvalid)

	task, err = h.c.CompleteTask(ctx, task.ID, []string{"https://img/1.jpg"})
	require.NoError(t, err)
	require.True(t, task.IsCompleted)
	require.Equal(t, model.TaskCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	require.Equal(t, []string{"https://img/1.jpg"}, task.ProofPhotos)
}

func TestClaimTask_NeedsActor(t *testing.T) {
	h := newHarness(t, uuid.Nil)
	_, err := h.c.ClaimTask(context.Background(), uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestRSVP_ReplacesEarlierAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, uuid.Must(uuid.NewV4()))
	ev := h.event(t)

	r1, err := h.c.RSVP(ctx, ev.ID, model.RSVPMaybe, nil, nil)
	require.NoError(t, err)
	r2, err := h.c.RSVP(ctx, ev.ID, model.RSVPGoing, []string{"spade", "cake"}, nil)
	require.NoError(t, err)
	require.Equal(t, r1.ID, r2.ID)
	require.Equal(t, []string{"spade", "cake"}, r2.BringingItems)
	require.Equal(t, 1, h.remote.Len(model.KindEventRSVP))

	going, err := h.c.Attendees(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, going, 1)

	_, err = h.c.RSVP(ctx, ev.ID, "perhaps", nil, nil)
	require.ErrorIs(t, err, errs.ErrInvalid)

	_, err = h.c.CancelEvent(ctx, ev.ID)
	require.NoError(t, err)
	_, err = h.c.RSVP(ctx, ev.ID, model.RSVPGoing, nil, nil)
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestRSVP_Offline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, uuid.Must(uuid.NewV4()))
	ev := h.event(t)

	h.net.Set(false)
	r, err := h.c.RSVP(ctx, ev.ID, model.RSVPGoing, nil, nil)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, r.SyncStatus)
	require.Equal(t, model.PlaceholderName, r.AttendeeName)
	st, err := h.store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.Pending)
}

func TestJoinCodes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, uuid.Must(uuid.NewV4()))

	j, err := h.c.GenerateJoinCode(ctx, model.RoleMember, 1, time.Hour)
	require.NoError(t, err)
	require.Len(t, j.Code, JoinCodeLength)
	require.Regexp(t, `^[A-Z0-9]+$`, j.Code)
	require.True(t, j.IsActive)
	require.NotNil(t, j.ExpiresAt)

	_, err = h.c.GenerateJoinCode(ctx, "owner", 0, 0)
	require.ErrorIs(t, err, errs.ErrInvalid)

	j, err = h.c.RedeemJoinCode(ctx, j.Code)
	require.NoError(t, err)
	require.EqualValues(t, 1, j.UsesCount)
	_, err = h.c.RedeemJoinCode(ctx, j.Code)
	require.ErrorIs(t, err, errs.ErrInvalid, "max uses reached")

	j, err = h.c.ToggleJoinCode(ctx, j.ID)
	require.NoError(t, err)
	require.False(t, j.IsActive)

	_, err = h.c.RedeemJoinCode(ctx, "NOPE00")
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, uuid.Must(uuid.NewV4()))
	name := "Cal"
	p, err := h.c.Profiles.Create(ctx, &model.Profile{
		Email: "cal@plot.org", FullName: &name, Role: model.RoleGuest, JoinDate: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.False(t, p.IsApproved)

	p, err = h.c.ApproveMember(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, p.IsApproved)

	p, err = h.c.SetMemberRole(ctx, p.ID, model.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, p.Role)

	_, err = h.c.SetMemberRole(ctx, p.ID, "root")
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestAddPhotoToAlbum_SetsCoverOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, uuid.Must(uuid.NewV4()))
	a, err := h.c.Albums.Create(ctx, &model.Album{Name: "Open day", CreatedBy: h.c.Actor()})
	require.NoError(t, err)

	p1, err := h.c.AddPhotoToAlbum(ctx, a.ID, "https://img/a.jpg", nil)
	require.NoError(t, err)
	require.Equal(t, a.ID, *p1.AlbumID)
	_, err = h.c.AddPhotoToAlbum(ctx, a.ID, "https://img/b.jpg", nil)
	require.NoError(t, err)

	a, err = h.c.Albums.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, a.CoverPhoto)
	require.Equal(t, "https://img/a.jpg", *a.CoverPhoto)

	photos, err := h.c.Photos.Read(ctx, model.Where(model.Eq("album_id", a.ID)))
	require.NoError(t, err)
	require.Len(t, photos, 2)

	_, err = h.c.AddPhotoToAlbum(ctx, uuid.Must(uuid.NewV4()), "https://img/c.jpg", nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestNewCode_DiscardsBiasedBytes(t *testing.T) {
	// 252..255 would map onto A..D a second time
	src := bytes.NewReader([]byte{252, 253, 254, 255, 0, 35, 36, 7, 8})
	code, err := newCode(src, 3)
	require.NoError(t, err)
	require.Equal(t, "A9A", code)

	_, err = newCode(bytes.NewReader([]byte{255, 255}), 3)
	require.Error(t, err)
}
