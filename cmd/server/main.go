// Server runs the WhatsApp session controller: it boots every stored instance against the
// protocol sidecar, keeps them connected and serves gRPC health per instance.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"whatsapp-control-plane/backend/internal/config"
	healthhandler "whatsapp-control-plane/backend/internal/health/handler"
	applog "whatsapp-control-plane/backend/internal/logger"
	"whatsapp-control-plane/backend/internal/server"
	"whatsapp-control-plane/backend/internal/session"
	"whatsapp-control-plane/backend/internal/session/reconnect"
	"whatsapp-control-plane/backend/internal/telemetry"
	telemetryotel "whatsapp-control-plane/backend/internal/telemetry/otel"
	"whatsapp-control-plane/backend/internal/waclient/bridge"
)

const (
	healthInterval  = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := applog.New(cfg.LogLevel, cfg.Env)
	applog.SetGlobal(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.Meter())
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	pub, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn().Err(err).Msg("close publisher")
		}
	}()

	factory, err := bridge.New(bridge.Config{URL: cfg.BridgeURL, Logger: log})
	if err != nil {
		return err
	}

	health := healthhandler.NewServer(st.pinger, log)
	ctrl := session.NewController(session.Config{
		QRMaxRetries:       cfg.QRMaxRetries,
		StartupConcurrency: cfg.StartupConcurrency,
		LeaseStaleAfter:    cfg.LeaseStaleAfterDuration(),
		Reconnect: reconnect.Config{
			Base:      cfg.ReconnectBaseDelay(),
			Cap:       cfg.ReconnectCapDelay(),
			JitterMax: cfg.ReconnectJitterMax(),
			Cooldown:  cfg.ReconnectCooldownPeriod(),
		},
	}, session.Deps{
		Repo:      st.whatsapps,
		Factory:   factory,
		Publisher: pub,
		Forgetter: st.cache,
		Observer:  health,
		Emitter:   telemetryotel.NewEventEmitter(providers.LoggerProvider),
		Metrics:   metrics,
		Tracer:    providers.Tracer(),
		Logger:    log,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := server.NewGRPCServer(log)
	server.RegisterServices(srv, server.Deps{Health: health})

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- err
		}
		close(serveErr)
	}()

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go health.Run(healthCtx, healthInterval)

	if err := ctrl.StartAll(ctx); err != nil {
		log.Error().Err(err).Msg("startup: list instances failed")
	}
	log.Info().Ints64("sessions", ctrl.Sessions()).Msg("startup complete")

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("session shutdown incomplete")
	}
	srv.GracefulStop()

	// In-flight lifecycle records are exported before the providers go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown")
	}
	log.Info().Msg("server stopped")
	return runErr
}
