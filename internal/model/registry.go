package model

import (
	"fmt"
	"sort"

	"github.com/and161185/growing-together/internal/errs"
)

// Kind names one domain entity type.
type Kind string

const (
	KindPost       Kind = "post"
	KindTask       Kind = "task"
	KindEvent      Kind = "event"
	KindEventRSVP  Kind = "event_rsvp"
	KindDiaryEntry Kind = "diary_entry"
	KindAlbum      Kind = "album"
	KindPhoto      Kind = "photo"
	KindProfile    Kind = "profile"
	KindJoinCode   Kind = "join_code"
)

// PlaceholderName stands in for a member name only the remote join can supply.
const PlaceholderName = "Cached User"

func col(name string, t ColumnType) Column      { return Column{Name: name, Type: t} }
func nullable(name string, t ColumnType) Column { return Column{Name: name, Type: t, Nullable: true} }

var (
	idCol       = col("id", ColUUID)
	createdCol  = col("created_at", ColTime)
	updatedCol  = col("updated_at", ColTime)
	newestFirst = []Order{{Column: "created_at", Desc: true}}
)

func memberJoin(on string, name, avatar string) *Join {
	j := &Join{On: on, Target: KindProfile, Fields: []Joined{{Name: name, Source: "full_name", Placeholder: PlaceholderName}}}
	if avatar != "" {
		j.Fields = append(j.Fields, Joined{Name: avatar, Source: "avatar_url"})
	}
	return j
}

var registry = map[Kind]*KindSpec{
	KindPost: {
		Kind: KindPost, RemoteTable: "posts", CacheTable: "posts_cache",
		Columns: []Column{
			idCol,
			col("user_id", ColUUID),
			col("content", ColText),
			nullable("photos", ColTextList),
			col("is_pinned", ColBool),
			col("is_announcement", ColBool),
			createdCol, updatedCol,
		},
		Join:         memberJoin("user_id", "author_name", "author_avatar_url"),
		DefaultOrder: []Order{{Column: "is_pinned", Desc: true}, {Column: "created_at", Desc: true}},
		StampCreated: true, StampUpdated: true,
	},
	KindTask: {
		Kind: KindTask, RemoteTable: "tasks", CacheTable: "tasks_cache",
		Columns: []Column{
			idCol,
			col("title", ColText),
			nullable("description", ColText),
			col("type", ColText),
			col("status", ColText),
			col("priority", ColText),
			col("category", ColText),
			nullable("assigned_to", ColUUID),
			nullable("due_date", ColTime),
			col("is_completed", ColBool),
			nullable("proof_photos", ColTextList),
			nullable("completed_at", ColTime),
			nullable("location", ColText),
			col("created_by", ColUUID),
			createdCol, updatedCol,
		},
		Join:         memberJoin("created_by", "creator_name", ""),
		DefaultOrder: newestFirst,
		StampCreated: true, StampUpdated: true,
	},
	KindEvent: {
		Kind: KindEvent, RemoteTable: "events", CacheTable: "events_cache",
		Columns: []Column{
			idCol,
			col("title", ColText),
			col("description", ColText),
			col("start_date", ColTime),
			nullable("end_date", ColTime),
			col("location", ColText),
			nullable("max_attendees", ColInt),
			nullable("bring_list", ColTextList),
			col("created_by", ColUUID),
			col("is_cancelled", ColBool),
			createdCol, updatedCol,
		},
		Join:         memberJoin("created_by", "creator_name", ""),
		DefaultOrder: []Order{{Column: "start_date"}},
		StampCreated: true, StampUpdated: true,
	},
	KindEventRSVP: {
		Kind: KindEventRSVP, RemoteTable: "event_rsvps", CacheTable: "event_rsvps_cache",
		Columns: []Column{
			idCol,
			col("event_id", ColUUID),
			col("user_id", ColUUID),
			col("status", ColText),
			nullable("bringing_items", ColTextList),
			nullable("notes", ColText),
			createdCol, updatedCol,
		},
		Join:         memberJoin("user_id", "attendee_name", "attendee_avatar_url"),
		DefaultOrder: []Order{{Column: "created_at"}},
		StampCreated: true, StampUpdated: true,
	},
	KindDiaryEntry: {
		Kind: KindDiaryEntry, RemoteTable: "diary_entries", CacheTable: "diary_entries_cache",
		Columns: []Column{
			idCol,
			col("user_id", ColUUID),
			col("title", ColText),
			col("content", ColText),
			col("template_type", ColText),
			nullable("plant_id", ColText),
			nullable("tags", ColTextList),
			nullable("weather", ColText),
			nullable("temperature", ColReal),
			nullable("photos", ColTextList),
			createdCol, updatedCol,
		},
		DefaultOrder: newestFirst,
		StampCreated: true, StampUpdated: true,
	},
	KindAlbum: {
		Kind: KindAlbum, RemoteTable: "albums", CacheTable: "albums_cache",
		Columns: []Column{
			idCol,
			col("name", ColText),
			nullable("description", ColText),
			nullable("cover_photo", ColText),
			col("created_by", ColUUID),
			col("is_private", ColBool),
			createdCol, updatedCol,
		},
		DefaultOrder: newestFirst,
		StampCreated: true, StampUpdated: true,
	},
	KindPhoto: {
		Kind: KindPhoto, RemoteTable: "photos", CacheTable: "photos_cache",
		Columns: []Column{
			idCol,
			col("url", ColText),
			nullable("album_id", ColUUID),
			nullable("caption", ColText),
			col("uploaded_by", ColUUID),
			createdCol,
		},
		Join:         memberJoin("uploaded_by", "uploader_name", ""),
		DefaultOrder: newestFirst,
		StampCreated: true,
	},
	KindProfile: {
		Kind: KindProfile, RemoteTable: "profiles", CacheTable: "profiles_cache",
		Columns: []Column{
			idCol,
			col("email", ColText),
			nullable("full_name", ColText),
			nullable("avatar_url", ColText),
			col("role", ColText),
			nullable("plot_number", ColText),
			nullable("phone", ColText),
			nullable("emergency_contact", ColText),
			col("join_date", ColTime),
			col("is_approved", ColBool),
			createdCol, updatedCol,
		},
		DefaultOrder: []Order{{Column: "full_name"}},
		StampCreated: true, StampUpdated: true,
	},
	KindJoinCode: {
		Kind: KindJoinCode, RemoteTable: "join_codes", CacheTable: "join_codes_cache",
		Columns: []Column{
			idCol,
			col("code", ColText),
			col("role", ColText),
			col("created_by", ColUUID),
			nullable("expires_at", ColTime),
			nullable("max_uses", ColInt),
			col("uses_count", ColInt),
			col("is_active", ColBool),
			createdCol,
		},
		DefaultOrder: newestFirst,
		StampCreated: true,
	},
}

func init() {
	for k, s := range registry {
		if s.Kind != k || len(s.Columns) == 0 || s.Columns[0] != idCol {
			panic(fmt.Sprintf("model: bad registry entry %q", k))
		}
		if s.StampCreated && !hasColumn(s.Columns, "created_at") || s.StampUpdated && !hasColumn(s.Columns, "updated_at") {
			panic(fmt.Sprintf("model: %q stamps a missing column", k))
		}
		if s.Join != nil && !hasColumn(s.Columns, s.Join.On) {
			panic(fmt.Sprintf("model: %q joins on a missing column", k))
		}
	}
}

// Lookup returns the registry entry for kind.
func Lookup(kind Kind) (*KindSpec, error) {
	s, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownKind, kind)
	}
	return s, nil
}

// MustLookup is Lookup for kinds known at compile time.
func MustLookup(kind Kind) *KindSpec {
	s, err := Lookup(kind)
	if err != nil {
		panic(err)
	}
	return s
}

// Kinds lists every registered kind, sorted.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
