package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/Zain-surge/thevillage-backend/internal/broadcast"
	"github.com/Zain-surge/thevillage-backend/internal/config"
	"github.com/Zain-surge/thevillage-backend/internal/domain"
	"github.com/Zain-surge/thevillage-backend/internal/httpserver"
	"github.com/Zain-surge/thevillage-backend/internal/listener"
	"github.com/Zain-surge/thevillage-backend/internal/messaging"
	"github.com/Zain-surge/thevillage-backend/internal/metrics"
	"github.com/Zain-surge/thevillage-backend/internal/platform/logging"
	"github.com/Zain-surge/thevillage-backend/internal/platform/retry"
	"github.com/Zain-surge/thevillage-backend/internal/postgres"
	"github.com/Zain-surge/thevillage-backend/internal/redis"
	"github.com/Zain-surge/thevillage-backend/internal/router"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config) *redis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// runListener builds a fresh subscription and runs the pipeline until the
// subscription is lost. A lost subscription tears the whole listener down;
// the supervisor in main restarts from scratch with a fresh connection.
func runListener(ctx context.Context, pool *pgxpool.Pool, store domain.OrderStore, rt *router.Router, hub *broadcast.Hub, sink domain.EventSink, clock clockwork.Clock, enrichDelay time.Duration, seq *listener.Sequence) error {
	source, err := postgres.NewNotifySource(ctx, pool, domain.Channels()...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = source.Close(closeCtx)
	}()

	return listener.New(source, store, rt, hub, sink, clock, enrichDelay, seq).Run(ctx)
}

func runGracefulShutdown(cancel context.CancelFunc, srv *httpserver.Server, hub *broadcast.Hub, listenerDone <-chan struct{}, sink *messaging.KafkaSink) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		cancel()
		<-listenerDone

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()

		if sink != nil {
			if err := sink.Close(); err != nil {
				slog.Error("Failed to close event mirror", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	scopes := redis.NewScopeStore(redisClient)
	orderRepo := postgres.NewOrderRepo(pool)
	rt := router.New(cfg.AllowedOrigins())

	hub := broadcast.NewHub(clock, broadcast.Options{
		SendTimeout:         cfg.SendTimeout,
		MaxClientsPerTenant: cfg.MaxClientsPerTenant,
	})

	var sink *messaging.KafkaSink
	var eventSink domain.EventSink
	if brokers := cfg.BrokerList(); len(brokers) > 0 {
		sink = messaging.NewKafkaSink(brokers, cfg.KafkaTopic)
		eventSink = sink
		slog.Info("Event mirror enabled", "topic", cfg.KafkaTopic, "brokers", len(brokers))
	}

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: redisClient.Ping},
	}
	srv := httpserver.NewServer(cfg, hub, scopes, healthChecks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared across supervised restarts so dispatch numbering never rewinds.
	seq := &listener.Sequence{}

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)

		policy := retry.Policy{
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			ResetAfter:     time.Minute,
			OnRestart: func(attempt int, err error, backoff time.Duration) {
				metrics.ListenerRestarts.Inc()
				slog.Error("Change listener failed, restarting",
					"attempt", attempt, "backoff", backoff, "error", err)
			},
		}
		op := func(ctx context.Context) error {
			return runListener(ctx, pool, orderRepo, rt, hub, eventSink, clock, cfg.EnrichDelay, seq)
		}
		if err := retry.Supervise(ctx, policy, op); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Change listener supervisor exited", "error", err)
		}
	}()

	done := runGracefulShutdown(cancel, srv, hub, listenerDone, sink)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
