package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"whatsapp-control-plane/backend/internal/whatsapp/domain"
)

// Pinger is used to check database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server exposes grpc.health.v1 for the process ("") and for every WhatsApp instance
// ("whatsapp.<id>"), which is SERVING only while the instance is CONNECTED.
type Server struct {
	hs     *health.Server
	pinger Pinger
	log    zerolog.Logger
}

// NewServer returns a health server. pinger may be nil, in which case the process is always SERVING.
func NewServer(pinger Pinger, log zerolog.Logger) *Server {
	s := &Server{hs: health.NewServer(), pinger: pinger, log: log}
	s.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

// Register attaches the health service to srv.
func (s *Server) Register(srv grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(srv, s.hs)
}

// ServiceName is the health service name of a WhatsApp instance.
func ServiceName(whatsappID int64) string {
	return fmt.Sprintf("whatsapp.%d", whatsappID)
}

// SessionStatus records the status of an instance.
func (s *Server) SessionStatus(whatsappID int64, status domain.Status) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if status == domain.StatusConnected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus(ServiceName(whatsappID), st)
}

// CheckDatabase pings the database and updates the process status.
func (s *Server) CheckDatabase(ctx context.Context) {
	if s.pinger == nil {
		return
	}
	if err := s.pinger.PingContext(ctx); err != nil {
		s.log.Warn().Err(err).Msg("health: database ping failed")
		s.hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Run calls CheckDatabase every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.CheckDatabase(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (s *Server) Shutdown() {
	s.hs.Shutdown()
}

// Check answers a health query in process.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
