package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angeloszaimis/session-cache/config"
	"github.com/angeloszaimis/session-cache/internal/connpool"
	"github.com/angeloszaimis/session-cache/internal/fallback"
	"github.com/angeloszaimis/session-cache/internal/health"
	"github.com/angeloszaimis/session-cache/internal/httpserver"
	"github.com/angeloszaimis/session-cache/internal/metrics"
	"github.com/angeloszaimis/session-cache/internal/retry"
	"github.com/angeloszaimis/session-cache/internal/session"
	"github.com/angeloszaimis/session-cache/internal/sweeper"
	"github.com/angeloszaimis/session-cache/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := connpool.NewRegistry(connpool.Options{
		MaxConnections: cfg.Backend.MaxConnections,
		ConnectTimeout: cfg.ConnectTimeout(),
		SocketTimeout:  cfg.ConnectTimeout(),
	})
	defer registry.Reset()

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	monitor := health.NewMonitor(session.PingProbe(registry), health.Options{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:     cfg.CircuitResetTimeout(),
		CheckInterval:    cfg.HealthCheckInterval(),
	}, log)
	monitor.SetEventChannel(collector.EventChannel())

	executor := retry.NewExecutor(monitor, retry.Options{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay(),
		MaxDelay:   cfg.RetryMaxDelay(),
	}, log)
	executor.SetEventChannel(collector.EventChannel())

	cache := fallback.NewCache()

	store, err := buildStore(ctx, cfg, registry, monitor, executor, cache, collector, log)
	if err != nil {
		log.Error("Failed to build session store", slog.Any("err", err))
		os.Exit(1)
	}

	startSweeper(ctx, cfg, store, cache, log)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(collector, monitor))
	if err != nil {
		log.Error("Failed to create diagnostics server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Session store ready",
		slog.Bool("remote", cfg.RemoteEnabled()),
		slog.String("diagnostics", cfg.Server.Address))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting diagnostics server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildStore(
	ctx context.Context,
	cfg *config.Config,
	registry *connpool.Registry,
	monitor *health.Monitor,
	executor *retry.Executor,
	cache *fallback.Cache,
	collector *metrics.Collector,
	log *slog.Logger,
) (session.Store, error) {
	if !cfg.RemoteEnabled() {
		log.Info("No backend URI configured, using local session store")
		return session.NewLocalStore(cache, cfg.SessionTTL(), log), nil
	}

	store, err := session.NewRemoteStore(ctx, registry, monitor, executor, cache, session.RemoteOptions{
		Endpoint: cfg.Backend.URI,
		TTL:      cfg.SessionTTL(),
	}, log)
	if err != nil {
		return nil, err
	}

	store.SetEventChannel(collector.EventChannel())
	return store, nil
}

func startSweeper(ctx context.Context, cfg *config.Config, store session.Store, cache *fallback.Cache, log *slog.Logger) {
	sw := sweeper.New(log)

	sw.Register(sweeper.Job{
		Name:     "fallback-cache-cleanup",
		Interval: time.Minute,
		Run: func(context.Context) (int, error) {
			return cache.Cleanup(), nil
		},
	})

	sw.Register(sweeper.Job{
		Name:     "expired-session-sweep",
		Interval: cfg.SessionTTL(),
		Run: func(ctx context.Context) (int, error) {
			return store.CleanupExpiredSessions(ctx, cfg.SessionTTL())
		},
	})

	sw.Start(ctx)
}
