package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/growing-together/internal/connectivity"
	"github.com/and161185/growing-together/internal/migrate"
	"github.com/and161185/growing-together/internal/model"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes against the backend",
		Long: `Replay queued changes in the order they were made. The run stops at
the first change the backend refuses; it is retried with backoff on
later runs and never dropped.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			s, err := a.rec.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync health without contacting the backend",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			s, err := a.rec.Refresh(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}
}

// queueEntry is a queued change without its payload.
type queueEntry struct {
	Entry         int64           `json:"entry"`
	Kind          model.Kind      `json:"kind"`
	Op            model.Operation `json:"op"`
	RecordID      string          `json:"record_id"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	RetryCount    int             `json:"retry_count,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
}

func newQueueCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List queued changes in replay order",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			entries, err := a.store.Drain(ctx)
			if err != nil {
				return err
			}
			out := make([]queueEntry, 0, len(entries))
			for _, e := range entries {
				q := queueEntry{
					Entry:      e.ID,
					Kind:       e.Kind,
					Op:         e.Op,
					RecordID:   e.RecordID.String(),
					EnqueuedAt: e.EnqueuedAt,
					RetryCount: e.RetryCount,
					LastError:  e.LastError,
				}
				if !e.NextAttemptAt.IsZero() {
					next := e.NextAttemptAt
					q.NextAttemptAt = &next
				}
				out = append(out, q)
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay running and sync whenever the backend is reachable",
		Long: `Poll connectivity and replay queued changes on reconnect, on the sync
interval and after failed changes become due. Each sync status change is
printed as a JSON line. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			w := connectivity.NewWatcher(a.oracle, a.cfg.Connectivity.PollInterval, a.log.Named("watch"))
			online := w.Subscribe()
			updates, unsubscribe := a.rec.Subscribe()
			defer unsubscribe()

			go w.Run(ctx)
			go a.rec.Loop(ctx, online)

			for {
				select {
				case <-ctx.Done():
					return nil
				case s := <-updates:
					if err := printJSON(cmd.OutOrStdout(), s); err != nil {
						return err
					}
				}
			}
		}),
	}
}

func newRemoteCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Backend administration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the backend schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Remote.Driver != "postgres" {
				return errors.New("remote migrate: needs the postgres driver")
			}
			if err := migrate.Up(cmd.Context(), cfg.Remote.DSN); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})
	return cmd
}
