// Package reconciler drains the mutation queue against the remote data source.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/growing-together/internal/connectivity"
	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
	"github.com/and161185/growing-together/internal/repository"
)

// State is the sync health shown to the user.
type State string

const (
	StateSynced  State = "synced"
	StatePending State = "pending"
	StateSyncing State = "syncing"
	StateError   State = "error"
	StateStalled State = "stalled"
)

// Status is a snapshot of sync health.
type Status struct {
	State        State                 `json:"state"`
	Pending      int                   `json:"pending"`
	LastError    string                `json:"last_error,omitempty"`
	FailingEntry *model.QueuedMutation `json:"failing_entry,omitempty"`
	LastRunAt    time.Time             `json:"last_run_at"`
}

// Options tune retries and scheduling. Zero values take defaults.
type Options struct {
	BackoffBase  time.Duration // 1s
	BackoffMax   time.Duration // 60s
	MaxRetries   int           // 5
	Interval     time.Duration // 1m
	WriteTimeout time.Duration // 15s
	Now          func() time.Time
	Log          *zap.Logger
}

func (o *Options) defaults() {
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = time.Minute
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 15 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

// Reconciler replays queued writes in global enqueue order.
type Reconciler struct {
	local  repository.LocalStore
	remote repository.RemoteDataSource
	oracle connectivity.Oracle
	opts   Options
	log    *zap.Logger

	group singleflight.Group
	kick  chan struct{}

	mu     sync.Mutex
	status Status
	subs   map[chan Status]struct{}
}

// New builds a reconciler.
func New(local repository.LocalStore, remote repository.RemoteDataSource, oracle connectivity.Oracle, opts Options) *Reconciler {
	opts.defaults()
	return &Reconciler{
		local:  local,
		remote: remote,
		oracle: oracle,
		opts:   opts,
		log:    opts.Log,
		kick:   make(chan struct{}, 1),
		subs:   map[chan Status]struct{}{},
	}
}

// Backoff returns the delay after a failure of an entry already retried n times.
func (r *Reconciler) Backoff(n int) time.Duration {
	d := r.opts.BackoffBase
	for i := 0; i < n && d < r.opts.BackoffMax; i++ {
		d *= 2
	}
	return min(d, r.opts.BackoffMax)
}

// Kick asks Loop for a drain without waiting for it.
func (r *Reconciler) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Status returns the last published status.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Subscribe returns a channel holding the latest status and a cancel func.
// Slow readers only ever miss intermediate values.
func (r *Reconciler) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	ch <- r.status
	r.mu.Unlock()
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
}

func (r *Reconciler) publish(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
	for ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Refresh recomputes the status from the queue without touching the remote.
func (r *Reconciler) Refresh(ctx context.Context) (Status, error) {
	st, err := r.local.Stats(ctx)
	if err != nil {
		return r.Status(), err
	}
	s := Status{State: StateSynced, Pending: st.Pending, LastRunAt: r.Status().LastRunAt}
	if h := st.Head; h != nil {
		s.State = StatePending
		if h.LastError != "" {
			s.State = StateError
			s.LastError = h.LastError
			s.FailingEntry = h
		}
		if h.RetryCount >= r.opts.MaxRetries {
			s.State = StateStalled
		}
	}
	r.publish(s)
	return s, nil
}

// Run drains the queue once. Concurrent calls share a single drain. A
// cancelled ctx stops the drain between entries; the entry in flight completes.
func (r *Reconciler) Run(ctx context.Context) (Status, error) {
	v, err, shared := r.group.Do("drain", func() (any, error) {
		return r.drain(ctx)
	})
	if shared {
		r.log.Debug("joined running drain")
	}
	s, _ := v.(Status)
	return s, err
}

func (r *Reconciler) drain(ctx context.Context) (Status, error) {
	bg := context.WithoutCancel(ctx)
	if !r.oracle.IsOnline(ctx) {
		return r.Refresh(bg)
	}
	entries, err := r.local.Drain(bg)
	if err != nil {
		return r.Status(), err
	}
	if len(entries) == 0 {
		return r.finish(bg)
	}
	cur := r.Status()
	cur.State = StateSyncing
	cur.Pending = len(entries)
	r.publish(cur)

	applied := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			r.log.Info("drain interrupted", zap.Int("applied", applied))
			break
		}
		now := r.opts.Now()
		if !e.Due(now) {
			r.log.Debug("head entry not due", zap.Int64("entry", e.ID), zap.Time("next", e.NextAttemptAt))
			break
		}
		err := r.apply(bg, e)
		if err == nil {
			applied++
			continue
		}
		if errors.Is(err, errs.ErrStorage) {
			return r.Status(), err
		}
		delay := r.Backoff(e.RetryCount)
		r.log.Warn("replay failed, drain stopped",
			zap.Int64("entry", e.ID),
			zap.String("kind", string(e.Kind)),
			zap.String("op", string(e.Op)),
			zap.Stringer("id", e.RecordID),
			zap.Int("retry", e.RetryCount+1),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if err := r.local.MarkFailed(bg, e.ID, err.Error(), now.Add(delay)); err != nil {
			return r.Status(), err
		}
		break
	}
	if applied > 0 {
		r.log.Info("queue drained", zap.Int("applied", applied))
	}
	return r.finish(bg)
}

func (r *Reconciler) finish(ctx context.Context) (Status, error) {
	r.mu.Lock()
	r.status.LastRunAt = r.opts.Now()
	r.mu.Unlock()
	return r.Refresh(ctx)
}

// apply replays one entry and settles it locally. A vanished remote row
// counts as applied.
func (r *Reconciler) apply(ctx context.Context, e model.QueuedMutation) error {
	spec, err := model.Lookup(e.Kind)
	if err != nil {
		return err
	}
	rctx, cancel := context.WithTimeout(ctx, r.opts.WriteTimeout)
	defer cancel()

	var mirror model.Row
	switch e.Op {
	case model.OpInsert:
		row := e.Payload.Clone()
		row["id"] = e.RecordID
		mirror, err = r.remote.Insert(rctx, spec, row)
	case model.OpUpdate:
		mirror, err = r.remote.Update(rctx, spec, e.RecordID, e.Payload)
	case model.OpDelete:
		err = r.remote.Delete(rctx, spec, e.RecordID)
	default:
		return fmt.Errorf("%w: operation %q", errs.ErrInvalid, e.Op)
	}
	if errors.Is(err, errs.ErrNotFound) {
		r.log.Info("remote row gone, dropping entry",
			zap.Int64("entry", e.ID), zap.String("kind", string(e.Kind)), zap.Stringer("id", e.RecordID))
		mirror, err = nil, nil
	}
	if err != nil {
		return err
	}
	return r.local.Settle(ctx, spec, e, mirror)
}

// Loop drains on start, on every signal from online, on every Interval tick
// and on Kick, until ctx is done. A failed head entry is retried when due.
func (r *Reconciler) Loop(ctx context.Context, online <-chan struct{}) {
	tick := time.NewTicker(r.opts.Interval)
	defer tick.Stop()
	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()

	run := func(why string) {
		r.log.Debug("drain triggered", zap.String("by", why))
		s, err := r.Run(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.log.Error("drain", zap.Error(err))
			}
			return
		}
		if s.FailingEntry != nil && s.State != StateStalled {
			retry.Reset(max(time.Until(s.FailingEntry.NextAttemptAt), 0))
		}
	}

	run("start")
	for {
		select {
		case <-ctx.Done():
			return
		case <-online:
			run("online")
		case <-tick.C:
			run("interval")
		case <-r.kick:
			run("kick")
		case <-retry.C:
			run("retry")
		}
	}
}
