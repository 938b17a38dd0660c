package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/growing-together/internal/config"
	"github.com/and161185/growing-together/internal/connectivity"
	"github.com/and161185/growing-together/internal/gateway"
	"github.com/and161185/growing-together/internal/logging"
	"github.com/and161185/growing-together/internal/reconciler"
	"github.com/and161185/growing-together/internal/repository"
	"github.com/and161185/growing-together/internal/repository/memory"
	"github.com/and161185/growing-together/internal/repository/postgres"
	"github.com/and161185/growing-together/internal/repository/sqlite"
	"github.com/and161185/growing-together/internal/service"
)

// flushTimeout bounds the drain a one-shot command runs after queueing writes.
const flushTimeout = 10 * time.Second

type remoteSource interface {
	repository.RemoteDataSource
	repository.Pinger
}

// app is one opened client: config, local store, remote, oracle,
// reconciler and the community service over them.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  *sqlite.Store
	remote remoteSource
	oracle connectivity.Oracle
	rec    *reconciler.Reconciler
	svc    *service.Community

	kicked  atomic.Bool
	closers []func() error
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.v, o.configFile)
}

func (o *rootOptions) open(ctx context.Context) (a *app, err error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a = &app{cfg: cfg, log: log, closers: []func() error{closeLog}}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Local.Path), 0o700); err != nil {
		return nil, fmt.Errorf("local dir: %w", err)
	}
	if a.store, err = sqlite.Open(ctx, cfg.Local.Path, log.Named("local")); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	switch cfg.Remote.Driver {
	case "memory":
		a.remote = memory.New()
	default:
		db, err := postgres.New(ctx, cfg.Remote.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		a.remote = postgres.NewRemote(db)
	}

	if a.oracle, err = a.buildOracle(ctx); err != nil {
		return nil, err
	}

	actor, _ := cfg.UserID()
	a.rec = reconciler.New(a.store, a.remote, a.oracle, reconciler.Options{
		BackoffBase:  cfg.Sync.BackoffBase,
		BackoffMax:   cfg.Sync.BackoffMax,
		MaxRetries:   cfg.Sync.MaxRetries,
		Interval:     cfg.Sync.Interval,
		WriteTimeout: cfg.Sync.WriteTimeout,
		Log:          log.Named("sync"),
	})
	a.svc = service.NewCommunity(gateway.Deps{
		Local:        a.store,
		Remote:       a.remote,
		Oracle:       a.oracle,
		Kick:         a.kick,
		Log:          log.Named("gateway"),
		WriteTimeout: cfg.Sync.WriteTimeout,
	}, actor)
	return a, nil
}

func (a *app) buildOracle(ctx context.Context) (connectivity.Oracle, error) {
	c := a.cfg.Connectivity
	var p connectivity.Prober
	switch c.Probe {
	case "online":
		return connectivity.Fixed(true), nil
	case "offline":
		return connectivity.Fixed(false), nil
	case "tcp":
		p = connectivity.TCP(c.Addr)
	case "grpc":
		conn, err := connectivity.DialHealth(ctx, c.Addr)
		if err != nil {
			return nil, fmt.Errorf("health dial: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		p = connectivity.GRPCHealth(conn, "")
	default:
		p = connectivity.Ping(a.remote)
	}
	return connectivity.NewProbeOracle(p, c.Timeout, a.log.Named("connectivity")), nil
}

// kick wakes the reconciler and remembers to flush before exit.
func (a *app) kick() {
	a.kicked.Store(true)
	a.rec.Kick()
}

// flush drains the queue once if a write was queued during the command.
func (a *app) flush(ctx context.Context) {
	if !a.kicked.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	s, err := a.rec.Run(ctx)
	if err != nil {
		a.log.Warn("flush", zap.Error(err))
		return
	}
	a.log.Debug("flushed", zap.String("state", string(s.State)), zap.Int("pending", s.Pending))
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errList []error
	for _, c := range slices.Backward(a.closers) {
		if err := c(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// withApp opens the client, runs fn and flushes queued writes.
func withApp(opts *rootOptions, fn func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := opts.open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := fn(ctx, cmd, args, a); err != nil {
			return err
		}
		a.flush(ctx)
		return nil
	}
}
