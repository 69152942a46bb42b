// Worker consumes session update envelopes from Kafka and archives them in Loki.
// Set KAFKA_BROKERS, NOTIFY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"whatsapp-control-plane/backend/internal/config"
	applog "whatsapp-control-plane/backend/internal/logger"
	"whatsapp-control-plane/backend/internal/notify/loki"
)

const pushTimeout = 10 * time.Second

// messageReader is the part of *kafka.Reader the worker uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// envelopePusher is the part of *loki.Client the worker uses.
type envelopePusher interface {
	PushEnvelopeJSON(ctx context.Context, rawJSON []byte) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := applog.New(cfg.LogLevel, cfg.Env)

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal().Msg("worker: KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		log.Fatal().Msg("worker: LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.NotifyKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("topic", cfg.NotifyKafkaTopic).
		Str("group", cfg.KafkaGroupID).
		Str("loki", cfg.LokiURL).
		Msg("worker: consuming")

	n := consume(ctx, reader, loki.New(cfg.LokiURL, "", nil), log)
	log.Info().Int("pushed", n).Msg("worker: stopped")
}

// consume forwards every message to Loki until ctx is done and returns how many were pushed.
// Read and push failures are logged and skipped.
func consume(ctx context.Context, r messageReader, p envelopePusher, log zerolog.Logger) int {
	pushed := 0
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return pushed
			}
			log.Warn().Err(err).Msg("worker: kafka read error")
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		if err := p.PushEnvelopeJSON(pushCtx, msg.Value); err != nil {
			log.Error().Err(err).Str("channel", string(msg.Key)).Msg("worker: loki push failed")
		} else {
			pushed++
		}
		cancel()
	}
}
