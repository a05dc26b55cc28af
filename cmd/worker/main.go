// Worker binary: drains the message queue into the database. It runs the
// pull consumer until SIGINT/SIGTERM, then lets the in-flight message finish
// inside the configured grace period before exiting.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/benedektothten/localchat-backend/internal/config"
	"github.com/benedektothten/localchat-backend/internal/queue"
	"github.com/benedektothten/localchat-backend/internal/repo"
	"github.com/benedektothten/localchat-backend/internal/services"
)

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	logger := newLogger(cfg)
	log.Logger = logger

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	nc, err := queue.Connect(cfg.Queue.URL, "localchat-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connection failed")
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal().Err(err).Msg("jetstream context failed")
	}
	if err := queue.EnsureStream(js, cfg.Queue); err != nil {
		logger.Fatal().Err(err).Msg("stream setup failed")
	}

	source, err := queue.NewJetStreamSource(js, cfg.Queue, cfg.Consumer.MaxDeliver, cfg.Consumer.FetchInterval)
	if err != nil {
		logger.Fatal().Err(err).Msg("consumer subscription failed")
	}
	defer func() {
		if err := source.Drain(); err != nil {
			logger.Warn().Err(err).Msg("subscription drain failed")
		}
	}()

	persister := &services.Persister{DB: db, Log: logger}
	consumer := queue.NewConsumer(
		source,
		persister.Handle,
		cfg.Consumer.RetryDelay,
		cfg.Consumer.GracePeriod,
		cfg.Consumer.FetchInterval,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("stream", cfg.Queue.Stream).
		Str("subject", cfg.Queue.Subject).
		Str("durable", cfg.Queue.Durable).
		Msg("starting message worker")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(level)
}
