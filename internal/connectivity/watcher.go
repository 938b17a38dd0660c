package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watcher polls an Oracle and signals offline->online transitions.
type Watcher struct {
	o        Oracle
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	online bool
	subs   []chan struct{}
}

// NewWatcher polls o every interval (default 10s). The initial state is offline,
// so the first successful probe counts as a transition.
func NewWatcher(o Oracle, interval time.Duration, log *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{o: o, interval: interval, log: log}
}

// Subscribe returns a channel that receives after each offline->online transition.
// Signals coalesce when the reader lags.
func (w *Watcher) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Online returns the last observed state.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Check probes once, records the state and notifies on a transition to online.
func (w *Watcher) Check(ctx context.Context) bool {
	now := w.o.IsOnline(ctx)

	w.mu.Lock()
	was := w.online
	w.online = now
	var subs []chan struct{}
	if now && !was {
		subs = append(subs, w.subs...)
	}
	w.mu.Unlock()

	if now != was {
		w.log.Info("connectivity changed", zap.Bool("online", now))
	}
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return now
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Check(ctx)
		}
	}
}
