package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and161185/growing-together/internal/errs"
)

// rootOptions holds what every subcommand needs to open the client.
type rootOptions struct {
	configFile string
	v          *viper.Viper
}

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"local":         "local.path",
	"remote-driver": "remote.driver",
	"dsn":           "remote.dsn",
	"probe":         "connectivity.probe",
	"probe-addr":    "connectivity.addr",
	"log-level":     "log.level",
	"log-file":      "log.file",
	"user":          "user.id",
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "gt",
		Short: "Growing Together community client",
		Long: `gt reads and writes community records (posts, tasks, events, diary,
albums, photos, members, join codes) through a local cache.

Writes made while the backend is unreachable are queued locally and
replayed in order by "gt sync" or "gt watch".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/growing-together/config.yaml)")
	f.String("local", "", "local cache database path")
	f.String("remote-driver", "", "remote backend: postgres|memory")
	f.String("dsn", "", "PostgreSQL DSN")
	f.String("probe", "", "connectivity probe: postgres|grpc|tcp|offline|online")
	f.String("probe-addr", "", "address for the grpc and tcp probes")
	f.String("log-level", "", "log level (debug|info|warn|error)")
	f.String("log-file", "", "write logs to a rotated file instead of stderr")
	f.String("user", "", "acting member id")
	for name, key := range flagKeys {
		_ = opts.v.BindPFlag(key, f.Lookup(name))
	}

	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newKindsCommand())
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newUpdateCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newQueueCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newRemoteCommand(opts))
	cmd.AddCommand(newPostCommand(opts))
	cmd.AddCommand(newTaskCommand(opts))
	cmd.AddCommand(newEventCommand(opts))
	cmd.AddCommand(newJoinCodeCommand(opts))
	cmd.AddCommand(newMemberCommand(opts))
	cmd.AddCommand(newAlbumCommand(opts))

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gt %s (%s)\n", version, buildDate)
		},
	}
}

// ---- utils ----

func readAll(in io.Reader, p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(in)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad id %q", errs.ErrInvalid, s)
	}
	return id, nil
}
