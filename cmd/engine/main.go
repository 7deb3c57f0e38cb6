// Command engine runs the DEX order execution engine: loads configuration,
// wires the Postgres Order Store, Redis hot cache, Router, Queue, and
// Subscription Hub into an Engine, and serves the HTTP surface until
// signaled to shut down. Grounded on the teacher's cmd/main.go startup and
// graceful-shutdown sequence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solswap/execution-engine/api"
	"github.com/solswap/execution-engine/internal/config"
	"github.com/solswap/execution-engine/internal/engine"
	"github.com/solswap/execution-engine/pkg/database"
	"github.com/solswap/execution-engine/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// queueDepthWarnThreshold is the queue depth, 80% of the queue's default
// capacity (queue.DefaultConfig().QueueSize of 1000), at which the worker
// pool is falling behind and the queue check reports degraded rather than
// healthy.
const queueDepthWarnThreshold = 800

// queueDepthCheck reports the worker pool as degraded once its backlog
// crosses queueDepthWarnThreshold, so a saturated queue shows up in
// readiness probes before it starts rejecting submissions outright.
func queueDepthCheck(eng *engine.Engine) observability.HealthCheck {
	return func(ctx context.Context) observability.HealthCheckResult {
		depth := eng.Queue.Depth()
		status := observability.HealthStatusHealthy
		message := "queue depth nominal"
		if depth >= queueDepthWarnThreshold {
			status = observability.HealthStatusDegraded
			message = "queue depth approaching capacity"
		}
		return observability.HealthCheckResult{
			Status:  status,
			Message: message,
			Details: map[string]interface{}{"depth": depth},
		}
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability)
	ctx := context.Background()

	logger.Info(ctx, "starting execution engine", map[string]interface{}{
		"service_name": cfg.Observability.ServiceName,
	})

	tracing, err := observability.NewTracingProvider(cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer tracing.Shutdown(ctx)

	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName: cfg.Observability.ServiceName,
		Namespace:   "dex_execution",
		Enabled:     cfg.Observability.MetricsEnabled,
		Port:        9090,
	})
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer metrics.Shutdown(ctx)

	if cfg.Observability.MetricsEnabled {
		go func() {
			if err := metrics.StartMetricsServer(9090); err != nil {
				logger.Warn(ctx, "failed to start metrics server", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	redis, err := database.NewRedisClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redis.Close()

	eng, err := engine.New(ctx, cfg, db, redis, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	eng.Start(workerCtx)

	health := observability.NewHealthChecker(logger)
	health.RegisterCheck("postgres", observability.DatabaseHealthCheck(db.Health))
	health.RegisterCheck("redis", observability.RedisHealthCheck(redis.Health))
	health.RegisterCheck("queue", queueDepthCheck(eng))

	healthServer := observability.NewHealthServer(health, observability.ServiceInfo{
		Name:        cfg.Observability.ServiceName,
		Version:     "1.0.0",
		Environment: cfg.Observability.Environment,
	}, logger)

	server := api.NewServer(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, eng, logger, healthServer)

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info(ctx, "shutdown signal received", map[string]interface{}{"signal": sig.String()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn(ctx, "http server shutdown error", map[string]interface{}{"error": err.Error()})
	}

	stopWorkers()
	eng.Stop(shutdownCtx)

	logger.Info(ctx, "execution engine stopped", nil)
	return nil
}
