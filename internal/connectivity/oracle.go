// Package connectivity answers whether the remote system is reachable right now.
package connectivity

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/growing-together/internal/errs"
)

// Oracle reports remote reachability. Implementations must return within a bounded time.
type Oracle interface {
	IsOnline(ctx context.Context) bool
}

// Prober performs one reachability check; nil means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// ProbeOracle runs a Prober under a timeout. Any error, including the
// timeout itself, reads as offline.
type ProbeOracle struct {
	p       Prober
	timeout time.Duration
	log     *zap.Logger
}

// NewProbeOracle wraps p; timeout <= 0 defaults to 3s.
func NewProbeOracle(p Prober, timeout time.Duration, log *zap.Logger) *ProbeOracle {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProbeOracle{p: p, timeout: timeout, log: log}
}

// IsOnline probes once. It returns by the deadline even if the prober ignores ctx.
func (o *ProbeOracle) IsOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.p.Probe(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		o.log.Debug("treating remote as offline",
			zap.Error(fmt.Errorf("%w: %w", errs.ErrConnectivityAmbiguous, err)))
		return false
	}
	return true
}

// Fixed is an oracle with a constant answer, used for forced offline/online modes.
type Fixed bool

// IsOnline returns the fixed answer.
func (f Fixed) IsOnline(context.Context) bool { return bool(f) }

// Switch is an oracle flipped by hand.
type Switch struct{ v atomic.Bool }

// NewSwitch returns a switch in the given state.
func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.v.Store(online)
	return s
}

// Set changes the answer.
func (s *Switch) Set(online bool) { s.v.Store(online) }

// IsOnline returns the current answer.
func (s *Switch) IsOnline(context.Context) bool { return s.v.Load() }
