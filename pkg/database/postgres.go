package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/solswap/execution-engine/internal/config"
	"github.com/solswap/execution-engine/pkg/observability"
	_ "github.com/lib/pq"
)

// DB wraps sql.DB with connection pool management and health monitoring,
// the backing connection for the order Store (C4).
type DB struct {
	*sql.DB
	logger   *observability.Logger
	metrics  *DatabaseMetrics
	poolCfg  PoolConfig
	stopOnce sync.Once
	stopCh   chan struct{}
}

// DatabaseMetrics tracks database performance metrics.
type DatabaseMetrics struct {
	QueryCount      int64
	SlowQueryCount  int64
	ActiveConns     int64
	IdleConns       int64
	WaitCount       int64
	WaitDuration    time.Duration
	AvgQueryTime    time.Duration
	mu              sync.RWMutex
}

// PoolConfig contains connection pool configuration.
type PoolConfig struct {
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	HealthCheckInterval time.Duration
}

// NewPostgresDB opens a PostgreSQL connection and applies pool settings.
func NewPostgresDB(cfg config.DatabaseConfig, logger *observability.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	poolCfg := PoolConfig{
		MaxOpenConns:        cfg.MaxOpenConns,
		MaxIdleConns:        cfg.MaxIdleConns,
		ConnMaxLifetime:     cfg.ConnMaxLifetime,
		ConnMaxIdleTime:     5 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}

	conn.SetMaxOpenConns(poolCfg.MaxOpenConns)
	conn.SetMaxIdleConns(poolCfg.MaxIdleConns)
	conn.SetConnMaxLifetime(poolCfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(poolCfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		DB:      conn,
		logger:  logger,
		metrics: &DatabaseMetrics{},
		poolCfg: poolCfg,
		stopCh:  make(chan struct{}),
	}

	go db.monitorHealth()

	logger.Info(context.Background(), "database connection established", map[string]interface{}{
		"max_open_conns": poolCfg.MaxOpenConns,
		"max_idle_conns": poolCfg.MaxIdleConns,
	})

	return db, nil
}

// ExecWithMetrics executes a statement and tracks timing, flagging slow queries.
func (db *DB) ExecWithMetrics(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := db.ExecContext(ctx, query, args...)
	db.updateMetrics(time.Since(start), query)
	return result, err
}

// QueryRowWithMetrics runs QueryRowContext and tracks timing.
func (db *DB) QueryRowWithMetrics(ctx context.Context, query string, args ...interface{}) *sql.Row {
	start := time.Now()
	row := db.QueryRowContext(ctx, query, args...)
	db.updateMetrics(time.Since(start), query)
	return row
}

func (db *DB) updateMetrics(duration time.Duration, query string) {
	db.metrics.mu.Lock()
	defer db.metrics.mu.Unlock()

	db.metrics.QueryCount++
	if duration > 100*time.Millisecond {
		db.metrics.SlowQueryCount++
		db.logger.Warn(context.Background(), "slow query detected", map[string]interface{}{
			"query":       query,
			"duration_ms": duration.Milliseconds(),
		})
	}

	if db.metrics.AvgQueryTime == 0 {
		db.metrics.AvgQueryTime = duration
	} else {
		const alpha = 0.1
		db.metrics.AvgQueryTime = time.Duration(float64(db.metrics.AvgQueryTime)*(1-alpha) + float64(duration)*alpha)
	}
}

func (db *DB) monitorHealth() {
	ticker := time.NewTicker(db.poolCfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-db.stopCh:
			return
		case <-ticker.C:
			db.recordPoolStats()
		}
	}
}

func (db *DB) recordPoolStats() {
	stats := db.DB.Stats()
	db.metrics.mu.Lock()
	db.metrics.ActiveConns = int64(stats.OpenConnections)
	db.metrics.IdleConns = int64(stats.Idle)
	db.metrics.WaitCount = stats.WaitCount
	db.metrics.WaitDuration = stats.WaitDuration
	db.metrics.mu.Unlock()
}

// GetMetrics returns current database metrics.
func (db *DB) GetMetrics() map[string]interface{} {
	db.metrics.mu.RLock()
	defer db.metrics.mu.RUnlock()

	return map[string]interface{}{
		"query_count":      db.metrics.QueryCount,
		"slow_query_count": db.metrics.SlowQueryCount,
		"active_conns":     db.metrics.ActiveConns,
		"idle_conns":       db.metrics.IdleConns,
		"wait_count":       db.metrics.WaitCount,
		"wait_duration":    db.metrics.WaitDuration,
		"avg_query_time":   db.metrics.AvgQueryTime,
	}
}

// Health pings the database with a short deadline.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Transaction runs fn within a database transaction, committing on success
// and rolling back on error or panic.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close stops health monitoring and closes the underlying connection.
func (db *DB) Close() error {
	db.stopOnce.Do(func() { close(db.stopCh) })
	db.logger.Info(context.Background(), "closing database connection")
	return db.DB.Close()
}
