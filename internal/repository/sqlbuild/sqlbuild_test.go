package sqlbuild

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/growing-together/internal/model"
)

func TestSelect_Postgres(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	q := New(Postgres)
	f := model.Filter{
		Where: []model.Cond{model.Eq("created_by", id), model.IsNull("end_date"), {Column: "max_attendees", Op: model.OpGte, Value: int64(5)}},
		Limit: 20,
	}
	tail, err := q.Select(f, []model.Order{{Column: "start_date"}}, "t.")
	require.NoError(t, err)
	require.Equal(t,
		" WHERE t.created_by = $1 AND t.end_date IS NULL AND t.max_attendees >= $2 ORDER BY t.start_date ASC NULLS LAST LIMIT 20",
		tail)
	require.Equal(t, []any{id, int64(5)}, q.Args)
}

func TestSelect_SQLiteEncodesValues(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	at := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	q := New(SQLite)
	f := model.Filter{
		Where:   []model.Cond{model.Eq("user_id", id), model.Lt("created_at", at)},
		OrderBy: []model.Order{{Column: "created_at", Desc: true}},
	}
	tail, err := q.Select(f, nil, "")
	require.NoError(t, err)
	require.Equal(t, " WHERE user_id = ? AND created_at < ? ORDER BY created_at DESC NULLS FIRST", tail)
	require.Equal(t, []any{id.String(), "2024-01-02T03:04:05.000000006Z"}, q.Args)
}

func TestSelect_Empty(t *testing.T) {
	tail, err := New(SQLite).Select(model.Filter{}, nil, "")
	require.NoError(t, err)
	require.Empty(t, tail)
}

func TestWhere_UnknownOp(t *testing.T) {
	_, err := New(SQLite).Where(model.Where(model.Cond{Column: "x", Op: "like"}), "")
	require.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	q := New(Postgres)
	q.Arg("first")
	require.Equal(t, "$2, $3", q.Placeholders([]any{[]string{"a"}, nil}))
	require.Equal(t, []any{"first", []string{"a"}, nil}, q.Args)

	q = New(SQLite)
	require.Equal(t, "?, ?", q.Placeholders([]any{[]string{"a"}, true}))
	require.Equal(t, []any{`["a"]`, true}, q.Args)
}
