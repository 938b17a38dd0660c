package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/growing-together/internal/connectivity"
)

type flakyBackend struct{ down atomic.Bool }

func (b *flakyBackend) Ping(context.Context) error {
	if b.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestReporter_MirrorsBackendIntoHealth(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	lis := bufconn.Listen(1 << 20)
	hs := health.NewServer()
	s := NewServer(hs, log)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	backend := &flakyBackend{}
	r := NewReporter(hs, backend, time.Hour, time.Second, log)

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := connectivity.DialHealth(ctx, "bufnet", grpc.WithContextDialer(dialer))
	require.NoError(t, err)
	defer cc.Close()

	whole := connectivity.NewProbeOracle(connectivity.GRPCHealth(cc, ""), 2*time.Second, log)
	named := connectivity.NewProbeOracle(connectivity.GRPCHealth(cc, Service), 2*time.Second, log)
	require.False(t, whole.IsOnline(ctx), "not serving before the first check")

	require.True(t, r.Check(ctx))
	require.True(t, whole.IsOnline(ctx))
	require.True(t, named.IsOnline(ctx))

	backend.down.Store(true)
	require.False(t, r.Check(ctx))
	require.False(t, whole.IsOnline(ctx))
}

func TestReporter_RunShutsDownWithContext(t *testing.T) {
	hs := health.NewServer()
	r := NewReporter(hs, &flakyBackend{}, 10*time.Millisecond, time.Second, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
