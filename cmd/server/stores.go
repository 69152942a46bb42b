package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"whatsapp-control-plane/backend/internal/config"
	"whatsapp-control-plane/backend/internal/db"
	healthhandler "whatsapp-control-plane/backend/internal/health/handler"
	"whatsapp-control-plane/backend/internal/notify"
	protocache "whatsapp-control-plane/backend/internal/protocache/repository"
	"whatsapp-control-plane/backend/internal/session"
	"whatsapp-control-plane/backend/internal/whatsapp/repository"
)

// stores bundles the persistence used by the controller.
type stores struct {
	whatsapps repository.Repository
	cache     session.Forgetter
	pinger    healthhandler.Pinger
	db        *sql.DB
}

func (s *stores) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// openStores uses Postgres when DATABASE_URL is set and in-memory repositories otherwise.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, instance records are kept in memory")
		return &stores{
			whatsapps: repository.NewMemoryRepository(),
			cache:     protocache.NewMemoryRepository(),
		}, nil
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	return &stores{
		whatsapps: repository.NewPostgresRepository(conn),
		cache:     protocache.NewPostgresRepository(conn),
		pinger:    conn,
		db:        conn,
	}, nil
}

// newPublisher builds the session update publisher selected by NOTIFY_BACKEND.
func newPublisher(cfg *config.Config) (notify.Publisher, error) {
	switch cfg.NotifyBackend {
	case config.NotifyKafka:
		p := notify.NewKafkaPublisher(cfg.KafkaBrokersList(), cfg.NotifyKafkaTopic)
		if p == nil {
			return nil, fmt.Errorf("notify: kafka needs KAFKA_BROKERS and NOTIFY_KAFKA_TOPIC")
		}
		return p, nil
	case config.NotifyRedis:
		p, err := notify.NewRedisPublisher(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		return p, nil
	}
	return notify.Nop{}, nil
}
