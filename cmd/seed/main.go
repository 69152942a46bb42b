// seed inserts a development WhatsApp instance for local testing.
// Idempotent: skips the insert if an instance with the same company and name already exists.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-control-plane/backend/internal/config"
	"whatsapp-control-plane/backend/internal/db"
	applog "whatsapp-control-plane/backend/internal/logger"
	"whatsapp-control-plane/backend/internal/whatsapp/domain"
	"whatsapp-control-plane/backend/internal/whatsapp/repository"
)

const (
	devCompanyID = 1
	devName      = "dev-instance"
)

// instanceStore is the part of the repository the seeder needs.
type instanceStore interface {
	GetByName(ctx context.Context, companyID int64, name string) (*domain.Whatsapp, error)
	Create(ctx context.Context, w *domain.Whatsapp) error
}

func main() {
	companyID := flag.Int64("company", devCompanyID, "company id of the seeded instance")
	name := flag.String("name", devName, "name of the seeded instance")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := applog.New(cfg.LogLevel, cfg.Env)
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	if _, err := seed(ctx, repository.NewPostgresRepository(conn), *companyID, *name, log); err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
}

// seed creates the instance unless it exists and returns the stored record.
func seed(ctx context.Context, store instanceStore, companyID int64, name string, log zerolog.Logger) (*domain.Whatsapp, error) {
	existing, err := store.GetByName(ctx, companyID, name)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", name, err)
	}
	if existing != nil {
		log.Info().Int64("whatsapp_id", existing.ID).Str("status", existing.Status.String()).Msg("seed: instance already exists, skipping")
		return existing, nil
	}
	w := &domain.Whatsapp{Name: name, CompanyID: companyID, Status: domain.StatusPending}
	if err := store.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}
	log.Info().Int64("whatsapp_id", w.ID).Int64("company_id", companyID).Str("name", name).Msg("seed: instance created")
	return w, nil
}
