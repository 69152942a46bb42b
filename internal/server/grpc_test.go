package server

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	healthhandler "whatsapp-control-plane/backend/internal/health/handler"
	"whatsapp-control-plane/backend/internal/whatsapp/domain"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_Health(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{Health: healthhandler.NewServer(nil, zerolog.Nop())})
	require.Equal(t, []string{"grpc.health.v1.Health"}, reg.services)
}

func TestRegisterServices_NilHealth(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	require.Empty(t, reg.services)
}

func TestGRPCServer_ServesInstanceHealth(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	hs := healthhandler.NewServer(nil, zerolog.Nop())
	srv := NewGRPCServer(zerolog.Nop())
	RegisterServices(srv, Deps{Health: hs})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	hs.SessionStatus(3, domain.StatusConnected)
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: healthhandler.ServiceName(3)})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	hs.SessionStatus(3, domain.StatusDisconnected)
	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: healthhandler.ServiceName(3)})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
