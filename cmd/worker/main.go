package main

import (
	"context"
	"fmt"
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
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// The worker fires due campaign steps. It runs separately from the API
// so message sending never competes with request handling, and several
// workers can run concurrently: step claims and the compare-and-swap
// advance keep them from double-firing.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Dur("poll_interval", cfg.Campaign.PollInterval).
		Msg("Starting Reputul campaign worker")

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	rdb := newRedisClient(cfg.Redis.URL)
	if rdb != nil {
		defer rdb.Close()
	}

	monitoring.Init()

	tokens := gate.NewTokenIssuer(&cfg.Gate, rdb)
	breakers := channel.NewBreakerManager(nil)
	registry := channel.NewRegistry()
	registry.Register(models.ChannelEmail, channel.NewEmailSender(&cfg.Email, breakers))
	registry.Register(models.ChannelSMS, channel.NewSMSSender(&cfg.SMS, breakers))

	dispatcher := dispatch.NewDispatcher(db.Pool, registry, tokens, &cfg.Server)
	sequences := campaign.NewSequenceStore(db.Pool)
	engine := campaign.NewEngine(db.Pool, rdb, sequences, dispatcher, &cfg.Campaign)

	c := cron.New()
	c.Schedule(cron.Every(cfg.Campaign.PollInterval), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Campaign.PollInterval)
		defer cancel()
		if err := engine.ProcessDue(ctx); err != nil {
			logging.LogError(err, "worker", "process_due")
		}
	}))
	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, stopping worker...")

	stopCtx := c.Stop()
	<-stopCtx.Done()

	log.Info().Msg("Worker exited gracefully")
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
