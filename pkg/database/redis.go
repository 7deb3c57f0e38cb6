package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solswap/execution-engine/internal/config"
	"github.com/solswap/execution-engine/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// RedisClient wraps redis.Client with metrics, the backing store for the
// hot cache and update log (C5).
type RedisClient struct {
	*redis.Client
	logger  *observability.Logger
	metrics *RedisMetrics
}

// RedisMetrics tracks Redis operation counts and latency.
type RedisMetrics struct {
	HitCount    int64
	MissCount   int64
	SetCount    int64
	DeleteCount int64
	AvgLatency  time.Duration
	mu          sync.RWMutex
}

// NewRedisClient opens a Redis connection using cfg.
func NewRedisClient(cfg config.RedisConfig, logger *observability.Logger) (*RedisClient, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.PoolTimeout = cfg.PoolTimeout
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	rc := &RedisClient{
		Client:  client,
		logger:  logger,
		metrics: &RedisMetrics{},
	}

	logger.Info(ctx, "redis client initialized", map[string]interface{}{
		"pool_size":      opt.PoolSize,
		"min_idle_conns": opt.MinIdleConns,
	})

	return rc, nil
}

// SetWithExpiry sets a key-value pair with expiration and metrics.
func (r *RedisClient) SetWithExpiry(ctx context.Context, key string, value interface{}, expiry time.Duration) error {
	start := time.Now()
	err := r.Set(ctx, key, value, expiry).Err()
	r.recordLatency(time.Since(start))

	r.metrics.mu.Lock()
	if err == nil {
		r.metrics.SetCount++
	}
	r.metrics.mu.Unlock()

	return err
}

// GetString gets a string value by key, distinguishing miss from error.
func (r *RedisClient) GetString(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	result := r.Get(ctx, key)
	r.recordLatency(time.Since(start))

	if result.Err() != nil {
		r.metrics.mu.Lock()
		if result.Err() == redis.Nil {
			r.metrics.MissCount++
		}
		r.metrics.mu.Unlock()

		if result.Err() == redis.Nil {
			return "", false, nil
		}
		return "", false, result.Err()
	}

	r.metrics.mu.Lock()
	r.metrics.HitCount++
	r.metrics.mu.Unlock()

	return result.Val(), true, nil
}

// DeleteKeys deletes one or more keys with metrics.
func (r *RedisClient) DeleteKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	start := time.Now()
	err := r.Del(ctx, keys...).Err()
	r.recordLatency(time.Since(start))

	r.metrics.mu.Lock()
	if err == nil {
		r.metrics.DeleteCount += int64(len(keys))
	}
	r.metrics.mu.Unlock()

	return err
}

func (r *RedisClient) recordLatency(d time.Duration) {
	r.metrics.mu.Lock()
	defer r.metrics.mu.Unlock()

	if r.metrics.AvgLatency == 0 {
		r.metrics.AvgLatency = d
	} else {
		const alpha = 0.1
		r.metrics.AvgLatency = time.Duration(float64(r.metrics.AvgLatency)*(1-alpha) + float64(d)*alpha)
	}
}

// GetMetrics returns current Redis metrics.
func (r *RedisClient) GetMetrics() map[string]interface{} {
	r.metrics.mu.RLock()
	defer r.metrics.mu.RUnlock()

	hitRate := float64(0)
	total := r.metrics.HitCount + r.metrics.MissCount
	if total > 0 {
		hitRate = float64(r.metrics.HitCount) / float64(total) * 100
	}

	return map[string]interface{}{
		"hit_count":    r.metrics.HitCount,
		"miss_count":   r.metrics.MissCount,
		"set_count":    r.metrics.SetCount,
		"delete_count": r.metrics.DeleteCount,
		"avg_latency":  r.metrics.AvgLatency,
		"hit_rate":     hitRate,
	}
}

// Health checks Redis connectivity, warning on high latency.
func (r *RedisClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	if latency := time.Since(start); latency > 100*time.Millisecond {
		r.logger.Warn(ctx, "high redis latency detected", map[string]interface{}{
			"latency_ms": latency.Milliseconds(),
		})
	}

	return nil
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	r.logger.Info(context.Background(), "closing redis connection")
	return r.Client.Close()
}
