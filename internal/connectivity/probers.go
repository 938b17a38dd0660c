package connectivity

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/growing-together/internal/repository"
)

// Ping probes a remote that can ping itself, such as the PostgreSQL pool.
func Ping(p repository.Pinger) Prober {
	return ProberFunc(p.Ping)
}

// TCP probes by opening and closing a TCP connection to addr.
func TCP(addr string) Prober {
	return ProberFunc(func(ctx context.Context) error {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return c.Close()
	})
}

// GRPCHealth probes a standard gRPC health service. service "" checks the whole server.
func GRPCHealth(conn grpc.ClientConnInterface, service string) Prober {
	client := healthpb.NewHealthClient(conn)
	return ProberFunc(func(ctx context.Context) error {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if s := resp.GetStatus(); s != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("health status %s", s)
		}
		return nil
	})
}

// DialHealth connects lazily to addr for GRPCHealth probing. Close the returned conn when done.
func DialHealth(ctx context.Context, addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	return grpc.DialContext(ctx, addr, opts...)
}
