package server

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	healthhandler "whatsapp-control-plane/backend/internal/health/handler"
	"whatsapp-control-plane/backend/internal/server/interceptors"
)

// Health check methods polled by orchestrators; not logged per request.
var quietMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/List":  true,
}

// Deps holds the services exposed over gRPC.
type Deps struct {
	// Health serves grpc.health.v1 for the process and every WhatsApp instance. If nil, nothing is registered.
	Health *healthhandler.Server
}

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry and the recovery and
// logging interceptors.
func NewGRPCServer(log zerolog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.RecoveryUnary(log),
			interceptors.LoggingUnary(log, quietMethods),
		),
	}
	return grpc.NewServer(append(base, opts...)...)
}

// RegisterServices registers every service in deps with s.
//
// Service → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		deps.Health.Register(s)
	}
}
