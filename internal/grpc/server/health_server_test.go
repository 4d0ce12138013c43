package server_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/magabrotheeeer/purchasekit/internal/grpc/client"
	"github.com/magabrotheeeer/purchasekit/internal/grpc/server"
)

type loadState chan struct{}

func (l loadState) Loaded() <-chan struct{} { return l }

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T) (*server.HealthServer, *client.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	health := server.NewHealthServer(newNoopLogger())
	health.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := client.NewHealthClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return health, c
}

func TestHealthServer_FollowsLoadState(t *testing.T) {
	ctx := context.Background()
	health, c := startServer(t)

	for _, service := range []string{server.ServiceName, ""} {
		got, err := c.Check(ctx, service)
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, got)
	}

	loaded := make(loadState)
	watched := make(chan struct{})
	go func() {
		health.Watch(ctx, loaded)
		close(watched)
	}()
	close(loaded)
	select {
	case <-watched:
	case <-time.After(time.Second):
		t.Fatal("watch did not return after load")
	}

	got, err := c.Check(ctx, server.ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, got)

	health.Shutdown()
	got, err = c.Check(ctx, server.ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, got)
}

func TestHealthServer_WatchCancelled(t *testing.T) {
	health, c := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	health.Watch(ctx, make(loadState))

	got, err := c.Check(context.Background(), server.ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, got)
}

func TestHealthClient_UnknownService(t *testing.T) {
	_, c := startServer(t)

	got, err := c.Check(context.Background(), "unknown")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, got)
}
