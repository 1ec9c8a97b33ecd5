package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reputul/reputul-backend/internal/campaign"
	"github.com/reputul/reputul-backend/internal/channel"
	"github.com/reputul/reputul-backend/internal/config"
	"github.com/reputul/reputul-backend/internal/database"
	"github.com/reputul/reputul-backend/internal/dispatch"
	"github.com/reputul/reputul-backend/internal/gate"
	"github.com/reputul/reputul-backend/internal/logging"
	"github.com/reputul/reputul-backend/internal/models"
	"github.com/reputul/reputul-backend/internal/monitoring"
	"github.com/reputul/reputul-backend/internal/reconciler"
	"github.com/reputul/reputul-backend/internal/server"
	"github.com/reputul/reputul-backend/migrations"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Msg("Starting Reputul API server")

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(cfg.Database.URL, migrations.FS, "."); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	rdb := newRedisClient(cfg.Redis.URL)
	if rdb != nil {
		defer rdb.Close()
	}

	monitoring.Init()
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort)
	}

	tokens := gate.NewTokenIssuer(&cfg.Gate, rdb)
	gateService := gate.NewService(db.Pool, tokens)
	reconcilerService := reconciler.NewService(db.Pool)

	breakers := channel.NewBreakerManager(nil)
	registry := channel.NewRegistry()
	registry.Register(models.ChannelEmail, channel.NewEmailSender(&cfg.Email, breakers))
	registry.Register(models.ChannelSMS, channel.NewSMSSender(&cfg.SMS, breakers))

	dispatcher := dispatch.NewDispatcher(db.Pool, registry, tokens, &cfg.Server)
	sequences := campaign.NewSequenceStore(db.Pool)
	engine := campaign.NewEngine(db.Pool, rdb, sequences, dispatcher, &cfg.Campaign)

	srv := server.NewAPIServer(cfg, db.Pool, gateService, reconcilerService, engine, sequences, dispatcher)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("url", cfg.Server.URL).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

func newRedisClient(redisURL string) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid Redis URL, continuing without Redis")
		return nil
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis unreachable, continuing without Redis")
		rdb.Close()
		return nil
	}

	log.Info().Msg("Redis connection established")
	return rdb
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().
		Int("port", port).
		Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
