// Package grpcserver serves the standard gRPC health service on behalf of
// the community backend, so clients can probe one cheap endpoint before
// they talk to the database.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/growing-together/internal/repository"
)

// Service is the health service name reported alongside the server-wide "".
const Service = "growing-together.Backend"

// Reporter polls the backend and mirrors its reachability into a health server.
type Reporter struct {
	hs       *health.Server
	backend  repository.Pinger
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewReporter starts in NOT_SERVING until the first successful check.
func NewReporter(hs *health.Server, backend repository.Pinger, interval, timeout time.Duration, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reporter{hs: hs, backend: backend, interval: interval, timeout: timeout, log: log}
	r.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

func (r *Reporter) set(s healthpb.HealthCheckResponse_ServingStatus) {
	r.hs.SetServingStatus("", s)
	r.hs.SetServingStatus(Service, s)
}

// Check pings the backend once and publishes the result.
func (r *Reporter) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.backend.Ping(ctx); err != nil {
		r.log.Warn("backend unreachable", zap.Error(err))
		r.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	r.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run checks on every tick until ctx ends, then reports NOT_SERVING for good.
func (r *Reporter) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	last := r.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			r.hs.Shutdown()
			return
		case <-t.C:
			if now := r.Check(ctx); now != last {
				r.log.Info("backend health changed", zap.Bool("serving", now))
				last = now
			}
		}
	}
}

// NewServer builds a gRPC server with the health service registered.
func NewServer(hs *health.Server, log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(LoggingStream(log)),
	)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, hs)
	return s
}
