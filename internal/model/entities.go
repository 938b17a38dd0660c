package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/growing-together/internal/errs"
)

func fromRowBase(b *Base, r Row) error {
	b.ID = r.ID()
	if b.ID == uuid.Nil {
		return fmt.Errorf("%w: row without id", errs.ErrInvalid)
	}
	if s, ok := r["sync_status"].(string); ok {
		b.SyncStatus = SyncStatus(s)
	}
	return nil
}

func withJoined(r Row, name, v string) Row {
	if v != "" {
		r[name] = v
	}
	return r
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s", errs.ErrInvalid, field, strings.Join(allowed, ", "))
}

// Post is a community feed post.
type Post struct {
	Base
	UserID          uuid.UUID `json:"user_id"`
	Content         string    `json:"content"`
	Photos          []string  `json:"photos,omitempty"`
	IsPinned        bool      `json:"is_pinned"`
	IsAnnouncement  bool      `json:"is_announcement"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	AuthorName      string    `json:"author_name,omitempty"`
	AuthorAvatarURL string    `json:"author_avatar_url,omitempty"`
}

func (Post) Kind() Kind { return KindPost }

func (p Post) ToRow() Row {
	r := Row{
		"id": p.ID, "user_id": p.UserID, "content": p.Content, "photos": list(p.Photos),
		"is_pinned": p.IsPinned, "is_announcement": p.IsAnnouncement,
		"created_at": ts(p.CreatedAt), "updated_at": ts(p.UpdatedAt),
	}
	withJoined(r, "author_name", p.AuthorName)
	return withJoined(r, "author_avatar_url", p.AuthorAvatarURL)
}

func (p *Post) FromRow(r Row) error {
	if err := fromRowBase(&p.Base, r); err != nil {
		return err
	}
	p.UserID = r.UUID("user_id")
	p.Content = r.Str("content")
	p.Photos = r.List("photos")
	p.IsPinned = r.Bool("is_pinned")
	p.IsAnnouncement = r.Bool("is_announcement")
	p.CreatedAt = r.Time("created_at")
	p.UpdatedAt = r.Time("updated_at")
	p.AuthorName = r.Str("author_name")
	p.AuthorAvatarURL = r.Str("author_avatar_url")
	return nil
}

func (p Post) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("%w: post content is empty", errs.ErrInvalid)
	}
	if p.UserID == uuid.Nil {
		return fmt.Errorf("%w: post without author", errs.ErrInvalid)
	}
	return nil
}

// Task statuses.
const (
	TaskAvailable  = "available"
	TaskAccepted   = "accepted"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskOverdue    = "overdue"
)

// Task is a personal or site work item.
type Task struct {
	Base
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Category    string     `json:"category"`
	AssignedTo  *uuid.UUID `json:"assigned_to,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	IsCompleted bool       `json:"is_completed"`
	ProofPhotos []string   `json:"proof_photos,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Location    *string    `json:"location,omitempty"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CreatorName string     `json:"creator_name,omitempty"`
}

func (Task) Kind() Kind { return KindTask }

func (t Task) ToRow() Row {
	r := Row{
		"id": t.ID, "title": t.Title, "description": optStr(t.Description), "type": t.Type,
		"status": t.Status, "priority": t.Priority, "category": t.Category,
		"assigned_to": optUUID(t.AssignedTo), "due_date": optTime(t.DueDate),
		"is_completed": t.IsCompleted, "proof_photos": list(t.ProofPhotos),
		"completed_at": optTime(t.CompletedAt), "location": optStr(t.Location),
		"created_by": t.CreatedBy, "created_at": ts(t.CreatedAt), "updated_at": ts(t.UpdatedAt),
	}
	return withJoined(r, "creator_name", t.CreatorName)
}

func (t *Task) FromRow(r Row) error {
	if err := fromRowBase(&t.Base, r); err != nil {
		return err
	}
	t.Title = r.Str("title")
	t.Description = r.OptStr("description")
	t.Type = r.Str("type")
	t.Status = r.Str("status")
	t.Priority = r.Str("priority")
	t.Category = r.Str("category")
	t.AssignedTo = r.OptUUID("assigned_to")
	t.DueDate = r.OptTime("due_date")
	t.IsCompleted = r.Bool("is_completed")
	t.ProofPhotos = r.List("proof_photos")
	t.CompletedAt = r.OptTime("completed_at")
	t.Location = r.OptStr("location")
	t.CreatedBy = r.UUID("created_by")
	t.CreatedAt = r.Time("created_at")
	t.UpdatedAt = r.Time("updated_at")
	t.CreatorName = r.Str("creator_name")
	return nil
}

// Validate fills defaults the backend would otherwise apply and checks enums.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: task title is empty", errs.ErrInvalid)
	}
	if t.Type == "" {
		t.Type = "site"
	}
	if t.Status == "" {
		t.Status = TaskAvailable
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if t.Category == "" {
		t.Category = "general"
	}
	if err := oneOf("task type", t.Type, "personal", "site"); err != nil {
		return err
	}
	if err := oneOf("task status", t.Status, TaskAvailable, TaskAccepted, TaskInProgress, TaskCompleted, TaskOverdue); err != nil {
		return err
	}
	return oneOf("task priority", t.Priority, "low", "medium", "high", "urgent")
}

// Event is a community gathering.
type Event struct {
	Base
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Location     string     `json:"location"`
	MaxAttendees *int64     `json:"max_attendees,omitempty"`
	BringList    []string   `json:"bring_list,omitempty"`
	CreatedBy    uuid.UUID  `json:"created_by"`
	IsCancelled  bool       `json:"is_cancelled"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CreatorName  string     `json:"creator_name,omitempty"`
}

func (Event) Kind() Kind { return KindEvent }

func (e Event) ToRow() Row {
	r := Row{
		"id": e.ID, "title": e.Title, "description": e.Description, "start_date": ts(e.StartDate),
		"end_date": optTime(e.EndDate), "location": e.Location, "max_attendees": optInt(e.MaxAttendees),
		"bring_list": list(e.BringList), "created_by": e.CreatedBy, "is_cancelled": e.IsCancelled,
		"created_at": ts(e.CreatedAt), "updated_at": ts(e.UpdatedAt),
	}
	return withJoined(r, "creator_name", e.CreatorName)
}

func (e *Event) FromRow(r Row) error {
	if err := fromRowBase(&e.Base, r); err != nil {
		return err
	}
	e.Title = r.Str("title")
	e.Description = r.Str("description")
	e.StartDate = r.Time("start_date")
	e.EndDate = r.OptTime("end_date")
	e.Location = r.Str("location")
	e.MaxAttendees = r.OptInt("max_attendees")
	e.BringList = r.List("bring_list")
	e.CreatedBy = r.UUID("created_by")
	e.IsCancelled = r.Bool("is_cancelled")
	e.CreatedAt = r.Time("created_at")
	e.UpdatedAt = r.Time("updated_at")
	e.CreatorName = r.Str("creator_name")
	return nil
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" || e.StartDate.IsZero() {
		return fmt.Errorf("%w: event needs a title and a start date", errs.ErrInvalid)
	}
	if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("%w: event ends before it starts", errs.ErrInvalid)
	}
	return nil
}

// RSVP statuses.
const (
	RSVPGoing    = "going"
	RSVPMaybe    = "maybe"
	RSVPNotGoing = "not_going"
)

// EventRSVP is one member's answer to an event.
type EventRSVP struct {
	Base
	EventID           uuid.UUID `json:"event_id"`
	UserID            uuid.UUID `json:"user_id"`
	Status            string    `json:"status"`
	BringingItems     []string  `json:"bringing_items,omitempty"`
	Notes             *string   `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	AttendeeName      string    `json:"attendee_name,omitempty"`
	AttendeeAvatarURL string    `json:"attendee_avatar_url,omitempty"`
}

func (EventRSVP) Kind() Kind { return KindEventRSVP }

func (v EventRSVP) ToRow() Row {
	r := Row{
		"id": v.ID, "event_id": v.EventID, "user_id": v.UserID, "status": v.Status,
		"bringing_items": list(v.BringingItems), "notes": optStr(v.Notes),
		"created_at": ts(v.CreatedAt), "updated_at": ts(v.UpdatedAt),
	}
	withJoined(r, "attendee_name", v.AttendeeName)
	return withJoined(r, "attendee_avatar_url", v.AttendeeAvatarURL)
}

func (v *EventRSVP) FromRow(r Row) error {
	if err := fromRowBase(&v.Base, r); err != nil {
		return err
	}
	v.EventID = r.UUID("event_id")
	v.UserID = r.UUID("user_id")
	v.Status = r.Str("status")
	v.BringingItems = r.List("bringing_items")
	v.Notes = r.OptStr("notes")
	v.CreatedAt = r.Time("created_at")
	v.UpdatedAt = r.Time("updated_at")
	v.AttendeeName = r.Str("attendee_name")
	v.AttendeeAvatarURL = r.Str("attendee_avatar_url")
	return nil
}

func (v EventRSVP) Validate() error {
	if v.EventID == uuid.Nil || v.UserID == uuid.Nil {
		return fmt.Errorf("%w: rsvp needs event and member", errs.ErrInvalid)
	}
	return oneOf("rsvp status", v.Status, RSVPGoing, RSVPMaybe, RSVPNotGoing)
}

// DiaryEntry is a private garden diary page.
type DiaryEntry struct {
	Base
	UserID       uuid.UUID `json:"user_id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	TemplateType string    `json:"template_type"`
	PlantID      *string   `json:"plant_id,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Weather      *string   `json:"weather,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	Photos       []string  `json:"photos,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (DiaryEntry) Kind() Kind { return KindDiaryEntry }

func (d DiaryEntry) ToRow() Row {
	return Row{
		"id": d.ID, "user_id": d.UserID, "title": d.Title, "content": d.Content,
		"template_type": d.TemplateType, "plant_id": optStr(d.PlantID), "tags": list(d.Tags),
		"weather": optStr(d.Weather), "temperature": optReal(d.Temperature), "photos": list(d.Photos),
		"created_at": ts(d.CreatedAt), "updated_at": ts(d.UpdatedAt),
	}
}

func (d *DiaryEntry) FromRow(r Row) error {
	if err := fromRowBase(&d.Base, r); err != nil {
		return err
	}
	d.UserID = r.UUID("user_id")
	d.Title = r.Str("title")
	d.Content = r.Str("content")
	d.TemplateType = r.Str("template_type")
	d.PlantID = r.OptStr("plant_id")
	d.Tags = r.List("tags")
	d.Weather = r.OptStr("weather")
	d.Temperature = r.OptReal("temperature")
	d.Photos = r.List("photos")
	d.CreatedAt = r.Time("created_at")
	d.UpdatedAt = r.Time("updated_at")
	return nil
}

func (d *DiaryEntry) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: diary entry title is empty", errs.ErrInvalid)
	}
	if d.TemplateType == "" {
		d.TemplateType = "general"
	}
	return nil
}

// Album groups photos.
type Album struct {
	Base
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CoverPhoto  *string   `json:"cover_photo,omitempty"`
	CreatedBy   uuid.UUID `json:"created_by"`
	IsPrivate   bool      `json:"is_private"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Album) Kind() Kind { return KindAlbum }

func (a Album) ToRow() Row {
	return Row{
		"id": a.ID, "name": a.Name, "description": optStr(a.Description), "cover_photo": optStr(a.CoverPhoto),
		"created_by": a.CreatedBy, "is_private": a.IsPrivate,
		"created_at": ts(a.CreatedAt), "updated_at": ts(a.UpdatedAt),
	}
}

func (a *Album) FromRow(r Row) error {
	if err := fromRowBase(&a.Base, r); err != nil {
		return err
	}
	a.Name = r.Str("name")
	a.Description = r.OptStr("description")
	a.CoverPhoto = r.OptStr("cover_photo")
	a.CreatedBy = r.UUID("created_by")
	a.IsPrivate = r.Bool("is_private")
	a.CreatedAt = r.Time("created_at")
	a.UpdatedAt = r.Time("updated_at")
	return nil
}

// Photo is an uploaded image reference. Uploading itself happens elsewhere.
type Photo struct {
	Base
	URL          string     `json:"url"`
	AlbumID      *uuid.UUID `json:"album_id,omitempty"`
	Caption      *string    `json:"caption,omitempty"`
	UploadedBy   uuid.UUID  `json:"uploaded_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UploaderName string     `json:"uploader_name,omitempty"`
}

func (Photo) Kind() Kind { return KindPhoto }

func (p Photo) ToRow() Row {
	r := Row{
		"id": p.ID, "url": p.URL, "album_id": optUUID(p.AlbumID), "caption": optStr(p.Caption),
		"uploaded_by": p.UploadedBy, "created_at": ts(p.CreatedAt),
	}
	return withJoined(r, "uploader_name", p.UploaderName)
}

func (p *Photo) FromRow(r Row) error {
	if err := fromRowBase(&p.Base, r); err != nil {
		return err
	}
	p.URL = r.Str("url")
	p.AlbumID = r.OptUUID("album_id")
	p.Caption = r.OptStr("caption")
	p.UploadedBy = r.UUID("uploaded_by")
	p.CreatedAt = r.Time("created_at")
	p.UploaderName = r.Str("uploader_name")
	return nil
}

func (p Photo) Validate() error {
	if p.URL == "" {
		return fmt.Errorf("%w: photo without url", errs.ErrInvalid)
	}
	return nil
}

// Member roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleGuest  = "guest"
)

// Profile is a community member.
type Profile struct {
	Base
	Email            string    `json:"email"`
	FullName         *string   `json:"full_name,omitempty"`
	AvatarURL        *string   `json:"avatar_url,omitempty"`
	Role             string    `json:"role"`
	PlotNumber       *string   `json:"plot_number,omitempty"`
	Phone            *string   `json:"phone,omitempty"`
	EmergencyContact *string   `json:"emergency_contact,omitempty"`
	JoinDate         time.Time `json:"join_date"`
	IsApproved       bool      `json:"is_approved"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Profile) Kind() Kind { return KindProfile }

func (p Profile) ToRow() Row {
	return Row{
		"id": p.ID, "email": p.Email, "full_name": optStr(p.FullName), "avatar_url": optStr(p.AvatarURL),
		"role": p.Role, "plot_number": optStr(p.PlotNumber), "phone": optStr(p.Phone),
		"emergency_contact": optStr(p.EmergencyContact), "join_date": ts(p.JoinDate),
		"is_approved": p.IsApproved, "created_at": ts(p.CreatedAt), "updated_at": ts(p.UpdatedAt),
	}
}

func (p *Profile) FromRow(r Row) error {
	if err := fromRowBase(&p.Base, r); err != nil {
		return err
	}
	p.Email = r.Str("email")
	p.FullName = r.OptStr("full_name")
	p.AvatarURL = r.OptStr("avatar_url")
	p.Role = r.Str("role")
	p.PlotNumber = r.OptStr("plot_number")
	p.Phone = r.OptStr("phone")
	p.EmergencyContact = r.OptStr("emergency_contact")
	p.JoinDate = r.Time("join_date")
	p.IsApproved = r.Bool("is_approved")
	p.CreatedAt = r.Time("created_at")
	p.UpdatedAt = r.Time("updated_at")
	return nil
}

func (p Profile) Validate() error {
	if !strings.Contains(p.Email, "@") {
		return fmt.Errorf("%w: bad email", errs.ErrInvalid)
	}
	return oneOf("role", p.Role, RoleAdmin, RoleMember, RoleGuest)
}

// JoinCode lets a new member register into the community.
type JoinCode struct {
	Base
	Code      string     `json:"code"`
	Role      string     `json:"role"`
	CreatedBy uuid.UUID  `json:"created_by"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	MaxUses   *int64     `json:"max_uses,omitempty"`
	UsesCount int64      `json:"uses_count"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

func (JoinCode) Kind() Kind { return KindJoinCode }

func (j JoinCode) ToRow() Row {
	return Row{
		"id": j.ID, "code": j.Code, "role": j.Role, "created_by": j.CreatedBy,
		"expires_at": optTime(j.ExpiresAt), "max_uses": optInt(j.MaxUses), "uses_count": j.UsesCount,
		"is_active": j.IsActive, "created_at": ts(j.CreatedAt),
	}
}

func (j *JoinCode) FromRow(r Row) error {
	if err := fromRowBase(&j.Base, r); err != nil {
		return err
	}
	j.Code = r.Str("code")
	j.Role = r.Str("role")
	j.CreatedBy = r.UUID("created_by")
	j.ExpiresAt = r.OptTime("expires_at")
	j.MaxUses = r.OptInt("max_uses")
	j.UsesCount = r.Int("uses_count")
	j.IsActive = r.Bool("is_active")
	j.CreatedAt = r.Time("created_at")
	return nil
}

func (j JoinCode) Validate() error {
	if len(j.Code) < 4 {
		return fmt.Errorf("%w: join code too short", errs.ErrInvalid)
	}
	if j.MaxUses != nil && *j.MaxUses <= 0 {
		return fmt.Errorf("%w: max_uses must be positive", errs.ErrInvalid)
	}
	return oneOf("role", j.Role, RoleAdmin, RoleMember, RoleGuest)
}

// Usable reports whether the code can still admit a member at now.
func (j JoinCode) Usable(now time.Time) bool {
	if !j.IsActive {
		return false
	}
	if j.ExpiresAt != nil && !now.Before(*j.ExpiresAt) {
		return false
	}
	return j.MaxUses == nil || j.UsesCount < *j.MaxUses
}
