package connectivity

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestProbeOracle_ErrorIsOffline(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	up := NewProbeOracle(ProberFunc(func(context.Context) error { return nil }), time.Second, log)
	require.True(t, up.IsOnline(ctx))

	down := NewProbeOracle(ProberFunc(func(context.Context) error { return errors.New("no route") }), time.Second, log)
	require.False(t, down.IsOnline(ctx))
}

func TestProbeOracle_BoundedWhenProberHangs(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	hang := ProberFunc(func(context.Context) error {
		<-release
		return nil
	})
	o := NewProbeOracle(hang, 50*time.Millisecond, zaptest.NewLogger(t))

	start := time.Now()
	require.False(t, o.IsOnline(context.Background()))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestFixedAndSwitch(t *testing.T) {
	ctx := context.Background()
	require.True(t, Fixed(true).IsOnline(ctx))
	require.False(t, Fixed(false).IsOnline(ctx))

	s := NewSwitch(false)
	require.False(t, s.IsOnline(ctx))
	s.Set(true)
	require.True(t, s.IsOnline(ctx))
}

func TestTCPProber(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()

	go func() {
		for {
			c, err := lis.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	o := NewProbeOracle(TCP(addr), time.Second, nil)
	require.True(t, o.IsOnline(context.Background()))

	require.NoError(t, lis.Close())
	require.False(t, o.IsOnline(context.Background()))
}

func TestGRPCHealthProber(t *testing.T) {
	const bufSize = 1 << 20
	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := DialHealth(context.Background(), "bufnet", grpc.WithContextDialer(dialer))
	require.NoError(t, err)
	defer cc.Close()

	o := NewProbeOracle(GRPCHealth(cc, ""), 2*time.Second, zaptest.NewLogger(t))
	require.True(t, o.IsOnline(context.Background()))

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	require.False(t, o.IsOnline(context.Background()))
}

func TestWatcher_SignalsTransitions(t *testing.T) {
	ctx := context.Background()
	sw := NewSwitch(false)
	w := NewWatcher(sw, time.Hour, zaptest.NewLogger(t))
	ch := w.Subscribe()

	require.False(t, w.Check(ctx))
	require.Empty(t, ch)

	sw.Set(true)
	require.True(t, w.Check(ctx))
	require.True(t, w.Online())
	select {
	case <-ch:
	default:
		t.Fatal("expected online transition")
	}

	// staying online is not a transition
	w.Check(ctx)
	require.Empty(t, ch)

	sw.Set(false)
	w.Check(ctx)
	sw.Set(true)
	w.Check(ctx)
	require.Len(t, ch, 1)
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	w := NewWatcher(Fixed(true), 10*time.Millisecond, nil)
	ch := w.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial transition")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
