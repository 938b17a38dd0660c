// Package service composes the entity gateways into community operations.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/gateway"
	"github.com/and161185/growing-together/internal/model"
)

// JoinCodeLength is the length of generated join codes.
const JoinCodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Community holds one gateway per entity kind, all sharing the same local
// store, remote and oracle, and acts on behalf of one member.
type Community struct {
	Posts     *gateway.Gateway[model.Post, *model.Post]
	Tasks     *gateway.Gateway[model.Task, *model.Task]
	Events    *gateway.Gateway[model.Event, *model.Event]
	RSVPs     *gateway.Gateway[model.EventRSVP, *model.EventRSVP]
	Diary     *gateway.Gateway[model.DiaryEntry, *model.DiaryEntry]
	Albums    *gateway.Gateway[model.Album, *model.Album]
	Photos    *gateway.Gateway[model.Photo, *model.Photo]
	Profiles  *gateway.Gateway[model.Profile, *model.Profile]
	JoinCodes *gateway.Gateway[model.JoinCode, *model.JoinCode]

	tables map[model.Kind]*gateway.Table
	actor  uuid.UUID
	now    func() time.Time
}

// NewCommunity wires every gateway over d. actor is stamped as author or
// creator of new records and may be uuid.Nil for read-only use.
func NewCommunity(d gateway.Deps, actor uuid.UUID) *Community {
	if d.Now == nil {
		d.Now = time.Now
	}
	c := &Community{
		Posts:     gateway.New[model.Post](d),
		Tasks:     gateway.New[model.Task](d),
		Events:    gateway.New[model.Event](d),
		RSVPs:     gateway.New[model.EventRSVP](d),
		Diary:     gateway.New[model.DiaryEntry](d),
		Albums:    gateway.New[model.Album](d),
		Photos:    gateway.New[model.Photo](d),
		Profiles:  gateway.New[model.Profile](d),
		JoinCodes: gateway.New[model.JoinCode](d),
		actor:     actor,
		now:       d.Now,
	}
	c.tables = map[model.Kind]*gateway.Table{
		model.KindPost:       c.Posts.Table(),
		model.KindTask:       c.Tasks.Table(),
		model.KindEvent:      c.Events.Table(),
		model.KindEventRSVP:  c.RSVPs.Table(),
		model.KindDiaryEntry: c.Diary.Table(),
		model.KindAlbum:      c.Albums.Table(),
		model.KindPhoto:      c.Photos.Table(),
		model.KindProfile:    c.Profiles.Table(),
		model.KindJoinCode:   c.JoinCodes.Table(),
	}
	return c
}

// Actor returns the member the community acts for.
func (c *Community) Actor() uuid.UUID { return c.actor }

func (c *Community) requireActor() error {
	if c.actor == uuid.Nil {
		return fmt.Errorf("%w: no acting member configured", errs.ErrInvalid)
	}
	return nil
}

// TogglePin flips the pinned flag of a post.
func (c *Community) TogglePin(ctx context.Context, postID uuid.UUID) (*model.Post, error) {
	p, err := c.Posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	return c.Posts.Update(ctx, postID, model.Row{"is_pinned": !p.IsPinned})
}

// ClaimTask assigns an available task to the acting member.
func (c *Community) ClaimTask(ctx context.Context, taskID uuid.UUID) (*model.Task, error) {
	if err := c.requireActor(); err != nil {
		return nil, err
	}
	t, err := c.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TaskAvailable {
		return nil, fmt.Errorf("%w: task is %s", errs.ErrInvalid, t.Status)
	}
	return c.Tasks.Update(ctx, taskID, model.Row{"status": model.TaskAccepted, "assigned_to": c.actor})
}

// CompleteTask marks a task done with optional proof photo URLs.
func (c *Community) CompleteTask(ctx context.Context, taskID uuid.UUID, proof []string) (*model.Task, error) {
	t, err := c.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.IsCompleted {
		return t, nil
	}
	patch := model.Row{
		"status":       model.TaskCompleted,
		"is_completed": true,
		"completed_at": c.now().UTC(),
	}
	if len(proof) > 0 {
		patch["proof_photos"] = append(slices.Clone(t.ProofPhotos), proof...)
	}
	return c.Tasks.Update(ctx, taskID, patch)
}

// CancelEvent marks an event cancelled; RSVPs are kept.
func (c *Community) CancelEvent(ctx context.Context, eventID uuid.UUID) (*model.Event, error) {
	return c.Events.Update(ctx, eventID, model.Row{"is_cancelled": true})
}

// RSVP records the acting member's answer for an event, replacing an
// earlier answer by the same member.
func (c *Community) RSVP(ctx context.Context, eventID uuid.UUID, status string, bringing []string, notes *string) (*model.EventRSVP, error) {
	if err := c.requireActor(); err != nil {
		return nil, err
	}
	ev, err := c.Events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.IsCancelled {
		return nil, fmt.Errorf("%w: event is cancelled", errs.ErrInvalid)
	}
	prev, err := c.RSVPs.Read(ctx, model.Where(model.Eq("event_id", eventID), model.Eq("user_id", c.actor)))
	if err != nil {
		return nil, err
	}
	if len(prev) > 0 {
		patch := model.Row{"status": status, "bringing_items": nil, "notes": nil}
		if bringing != nil {
			patch["bringing_items"] = bringing
		}
		if notes != nil {
			patch["notes"] = *notes
		}
		return c.RSVPs.Update(ctx, prev[0].ID, patch)
	}
	return c.RSVPs.Create(ctx, &model.EventRSVP{
		EventID:       eventID,
		UserID:        c.actor,
		Status:        status,
		BringingItems: bringing,
		Notes:         notes,
	})
}

// Attendees returns the members going to an event.
func (c *Community) Attendees(ctx context.Context, eventID uuid.UUID) ([]model.EventRSVP, error) {
	return c.RSVPs.Read(ctx, model.Where(model.Eq("event_id", eventID), model.Eq("status", model.RSVPGoing)))
}

// ToggleJoinCode flips whether a join code can be used.
func (c *Community) ToggleJoinCode(ctx context.Context, id uuid.UUID) (*model.JoinCode, error) {
	j, err := c.JoinCodes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.JoinCodes.Update(ctx, id, model.Row{"is_active": !j.IsActive})
}

// ApproveMember lets a registered member into the community.
func (c *Community) ApproveMember(ctx context.Context, profileID uuid.UUID) (*model.Profile, error) {
	return c.Profiles.Update(ctx, profileID, model.Row{"is_approved": true})
}

// SetMemberRole changes a member's role.
func (c *Community) SetMemberRole(ctx context.Context, profileID uuid.UUID, role string) (*model.Profile, error) {
	switch role {
	case model.RoleAdmin, model.RoleMember, model.RoleGuest:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", errs.ErrInvalid, role)
	}
	return c.Profiles.Update(ctx, profileID, model.Row{"role": role})
}

// GenerateJoinCode creates an active join code for role. maxUses and ttl
// are optional limits; zero means unlimited.
func (c *Community) GenerateJoinCode(ctx context.Context, role string, maxUses int64, ttl time.Duration) (*model.JoinCode, error) {
	if err := c.requireActor(); err != nil {
		return nil, err
	}
	code, err := newCode(rand.Reader, JoinCodeLength)
	if err != nil {
		return nil, err
	}
	j := &model.JoinCode{Code: code, Role: role, CreatedBy: c.actor, IsActive: true}
	if maxUses > 0 {
		j.MaxUses = &maxUses
	}
	if ttl > 0 {
		exp := c.now().UTC().Add(ttl)
		j.ExpiresAt = &exp
	}
	return c.JoinCodes.Create(ctx, j)
}

// RedeemJoinCode counts one use of code. A code that cannot admit anyone
// is errs.ErrInvalid.
func (c *Community) RedeemJoinCode(ctx context.Context, code string) (*model.JoinCode, error) {
	found, err := c.JoinCodes.Read(ctx, model.Where(model.Eq("code", code)))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 || !found[0].Usable(c.now()) {
		return nil, fmt.Errorf("%w: join code %q cannot be used", errs.ErrInvalid, code)
	}
	j := found[0]
	return c.JoinCodes.Update(ctx, j.ID, model.Row{"uses_count": j.UsesCount + 1})
}

// newCode draws n symbols from codeAlphabet. Bytes at or above the largest
// multiple of the alphabet size are discarded so every symbol is equally likely.
func newCode(r io.Reader, n int) (string, error) {
	limit := 256 - 256%len(codeAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// AddPhotoToAlbum adds a photo by URL to an album and makes it the cover
// when the album has none.
func (c *Community) AddPhotoToAlbum(ctx context.Context, albumID uuid.UUID, url string, caption *string) (*model.Photo, error) {
	if err := c.requireActor(); err != nil {
		return nil, err
	}
	album, err := c.Albums.Get(ctx, albumID)
	if err != nil {
		return nil, err
	}
	p, err := c.Photos.Create(ctx, &model.Photo{URL: url, AlbumID: &albumID, Caption: caption, UploadedBy: c.actor})
	if err != nil {
		return nil, err
	}
	if album.CoverPhoto == nil || *album.CoverPhoto == "" {
		if _, err := c.Albums.Update(ctx, albumID, model.Row{"cover_photo": url}); err != nil && !errors.Is(err, errs.ErrNotFound) {
			return p, err
		}
	}
	return p, nil
}
