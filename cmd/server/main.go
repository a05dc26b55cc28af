// Server binary: the HTTP/WebSocket front of the dispatch pipeline. It
// accepts submissions, broadcasts them to live connections, and hands them
// to the broker; the worker binary drains the broker into the database.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/benedektothten/localchat-backend/internal/cache"
	"github.com/benedektothten/localchat-backend/internal/config"
	httpapi "github.com/benedektothten/localchat-backend/internal/http"
	"github.com/benedektothten/localchat-backend/internal/hub"
	"github.com/benedektothten/localchat-backend/internal/observability"
	"github.com/benedektothten/localchat-backend/internal/queue"
	"github.com/benedektothten/localchat-backend/internal/repo"
	"github.com/benedektothten/localchat-backend/internal/services"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	logger := newLogger(cfg)
	log.Logger = logger

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("database open failed")
	}

	kv := openKV(ctx, cfg, logger)

	members := cache.NewMembership(kv, cache.GormMembershipStore{DB: db}, cfg.Cache.MembershipTTL, logger)
	profiles := cache.NewProfiles(kv, cache.GormProfileStore{DB: db}, cfg.Cache.ProfileTTL, logger)

	nc, err := queue.Connect(cfg.Queue.URL, "localchat-server")
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

	h := hub.New(cfg.HubSendBuffer, logger)

	dispatcher := &services.Dispatcher{
		Members:         members,
		Profiles:        profiles,
		Hub:             h,
		Producer:        queue.NewJetStreamProducer(js, cfg.Queue.Subject),
		MaxContentRunes: cfg.MaxContentLen,
		Log:             logger,
	}
	messages := &services.Messages{
		DB:       db,
		Members:  members,
		Profiles: profiles,
		Log:      logger,
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, httpapi.Deps{
		Dispatcher: dispatcher,
		Messages:   messages,
		Hub:        h,
		JoinGate:   members.CheckMembership,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("version", version).
			Msg("starting chat server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server stopped")
}

// newLogger builds the process logger from the logging config. Pretty output
// is for development; production stays machine-readable JSON.
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

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// openKV picks the cache backend: Redis when configured, otherwise the
// in-process store. A Redis that refuses the handshake is fatal rather than
// silently degraded.
func openKV(ctx context.Context, cfg config.Config, logger zerolog.Logger) cache.KV {
	if cfg.Cache.RedisURL == "" {
		logger.Info().Msg("no REDIS_URL set, using in-process cache")
		return cache.NewMemory()
	}
	kv, err := cache.NewRedis(ctx, cfg.Cache.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	logger.Info().Msg("connected to Redis")
	return kv
}
