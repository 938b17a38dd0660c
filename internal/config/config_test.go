package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GT_REMOTE_DRIVER", "memory")
	t.Setenv("GT_CONNECTIVITY_PROBE", "online")

	c, err := Load(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, "memory", c.Remote.Driver)
	require.Equal(t, 3*time.Second, c.Connectivity.Timeout)
	require.Equal(t, time.Minute, c.Sync.Interval)
	require.Equal(t, 5, c.Sync.MaxRetries)
	require.Equal(t, filepath.Join(Dir(), "cache.db"), c.Local.Path)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "gt.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
remote:
  driver: postgres
  dsn: postgres://plot@localhost/garden
connectivity:
  probe: tcp
  addr: localhost:5432
  timeout: 500ms
sync:
  backoff_base: 2s
  max_retries: 7
user:
  id: 8f1c2b2e-6d0c-4c7c-9b7a-3f2e0d4a5b6c
`), 0o600))
	t.Setenv("GT_SYNC_MAX_RETRIES", "9")

	c, err := Load(viper.New(), file)
	require.NoError(t, err)
	require.Equal(t, "postgres://plot@localhost/garden", c.Remote.DSN)
	require.Equal(t, 500*time.Millisecond, c.Connectivity.Timeout)
	require.Equal(t, 2*time.Second, c.Sync.BackoffBase)
	require.Equal(t, 9, c.Sync.MaxRetries)
	id, err := c.UserID()
	require.NoError(t, err)
	require.Equal(t, "8f1c2b2e-6d0c-4c7c-9b7a-3f2e0d4a5b6c", id.String())
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	// postgres driver without dsn
	_, err = Load(viper.New(), "")
	require.ErrorContains(t, err, "remote.dsn")

	t.Setenv("GT_REMOTE_DRIVER", "memory")
	t.Setenv("GT_CONNECTIVITY_PROBE", "grpc")
	_, err = Load(viper.New(), "")
	require.ErrorContains(t, err, "connectivity.addr")

	t.Setenv("GT_CONNECTIVITY_PROBE", "online")
	t.Setenv("GT_USER_ID", "not-a-uuid")
	_, err = Load(viper.New(), "")
	require.ErrorContains(t, err, "user.id")
}
