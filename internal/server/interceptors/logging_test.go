package interceptors

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const healthCheck = "/grpc.health.v1.Health/Check"

func TestLoggingUnary_LogsMethodAndCode(t *testing.T) {
	var buf bytes.Buffer
	ic := LoggingUnary(zerolog.New(&buf), nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}

	_, err := ic(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	require.Equal(t, codes.NotFound, status.Code(err))
	require.Contains(t, buf.String(), `"method":"/grpc.health.v1.Health/Watch"`)
	require.Contains(t, buf.String(), `"code":"NotFound"`)
	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestLoggingUnary_SkipMethod(t *testing.T) {
	var buf bytes.Buffer
	ic := LoggingUnary(zerolog.New(&buf), map[string]bool{healthCheck: true})
	resp, err := ic(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: healthCheck},
		func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.Empty(t, buf.String())
}

func TestRecoveryUnary(t *testing.T) {
	var buf bytes.Buffer
	ic := RecoveryUnary(zerolog.New(&buf))
	resp, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: healthCheck},
		func(ctx context.Context, req interface{}) (interface{}, error) { panic("boom") })
	require.Nil(t, resp)
	require.Equal(t, codes.Internal, status.Code(err))
	require.Contains(t, buf.String(), "boom")

	_, err = ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: healthCheck},
		func(ctx context.Context, req interface{}) (interface{}, error) { return nil, errors.New("plain") })
	require.EqualError(t, err, "plain")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"forwarded list", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "10.0.0.1, 10.0.0.2")), "10.0.0.1"},
		{"real ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-real-ip", " 10.0.0.3 ")), "10.0.0.3"},
		{"peer", peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.168.1.5"), Port: 4242}}), "192.168.1.5"},
		{"none", context.Background(), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClientIP(tt.ctx))
		})
	}
}
