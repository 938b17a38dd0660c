package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/growing-together/internal/errs"
)

type cli struct {
	base []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return &cli{base: []string{
		"--local", filepath.Join(dir, "cache.db"),
		"--remote-driver", "memory",
		"--log-level", "error",
		"--user", uuid.Must(uuid.NewV4()).String(),
	}}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append(append([]string{}, c.base...), args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) object(t *testing.T, args ...string) map[string]any {
	t.Helper()
	out, err := c.run(t, args...)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func TestCLI_OfflineWriteThenSync(t *testing.T) {
	c := newCLI(t)

	post := c.object(t, "--probe", "offline", "create", "post", "--data", `{"content":"Seed swap on Saturday"}`)
	require.Equal(t, "pending", post["sync_status"])
	require.Equal(t, "Seed swap on Saturday", post["content"])
	id, _ := post["id"].(string)
	require.NotEmpty(t, id)

	out, err := c.run(t, "--probe", "offline", "list", "post")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)

	st := c.object(t, "--probe", "offline", "status")
	require.Equal(t, "pending", st["state"])
	require.EqualValues(t, 1, st["pending"])

	out, err = c.run(t, "--probe", "offline", "queue")
	require.NoError(t, err)
	var q []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	require.Len(t, q, 1)
	require.Equal(t, "insert", q[0]["op"])
	require.Equal(t, id, q[0]["record_id"])

	st = c.object(t, "--probe", "online", "sync")
	require.Equal(t, "synced", st["state"])
	require.EqualValues(t, 0, st["pending"])

	got := c.object(t, "--probe", "offline", "get", "post", id)
	require.Equal(t, "synced", got["sync_status"])
}

func TestCLI_UpdateAndDomainShortcutsOffline(t *testing.T) {
	c := newCLI(t)

	task := c.object(t, "--probe", "offline", "create", "task", "--data", `{"title":"Turn the compost"}`)
	require.Equal(t, "available", task["status"])
	id := task["id"].(string)

	task = c.object(t, "--probe", "offline", "update", "task", id, "--set", "priority=high")
	require.Equal(t, "high", task["priority"])

	task = c.object(t, "--probe", "offline", "task", "claim", id)
	require.Equal(t, "accepted", task["status"])

	_, err := c.run(t, "--probe", "offline", "update", "task", id, "--set", "priority=whenever")
	require.ErrorIs(t, err, errs.ErrInvalid)

	out, err := c.run(t, "--probe", "offline", "delete", "task", id)
	require.NoError(t, err)
	require.Contains(t, out, "deleted task")

	_, err = c.run(t, "--probe", "offline", "get", "task", id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "--probe", "offline", "list", "plant")
	require.ErrorIs(t, err, errs.ErrUnknownKind)

	_, err = c.run(t, "--probe", "offline", "get", "post", "not-a-uuid")
	require.ErrorIs(t, err, errs.ErrInvalid)

	_, err = c.run(t, "--probe", "offline", "create", "post")
	require.Error(t, err)

	_, err = c.run(t, "--probe", "tcp", "status")
	require.ErrorContains(t, err, "connectivity.addr")

	_, err = c.run(t, "--probe", "online", "remote", "migrate")
	require.ErrorContains(t, err, "postgres driver")
}

func TestCLI_VersionAndKinds(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "version")
	require.NoError(t, err)
	require.Equal(t, "gt dev (unknown)\n", out)

	out, err = c.run(t, "kinds")
	require.NoError(t, err)
	var kinds map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &kinds))
	require.Contains(t, kinds, "post")
	require.Contains(t, kinds["post"], "content:text")
}

func TestReadAll_FileAndStdin(t *testing.T) {
	p := filepath.Join(t.TempDir(), "row.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"content":"x"}`), 0o600))
	b, err := readAll(strings.NewReader(""), p)
	require.NoError(t, err)
	require.JSONEq(t, `{"content":"x"}`, string(b))

	b, err = readAll(strings.NewReader("from-stdin"), "-")
	require.NoError(t, err)
	require.Equal(t, "from-stdin", string(b))
}
