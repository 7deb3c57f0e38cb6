// Package config loads engine configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the order execution engine.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Queue         QueueConfig
	Venue         VenueConfig
	Observability ObservabilityConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig points at the order Store's backing Postgres instance.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// RedisConfig points at the hot cache's backing Redis instance.
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
}

// QueueConfig controls the worker pool's concurrency, rate limit, and retry policy.
type QueueConfig struct {
	Concurrency       int // C: jobs processed in parallel
	RateLimit         int // R: jobs started per rolling minute
	MaxAttempts       int // retry attempts before dead-lettering
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	VisibilityTimeout time.Duration
}

// VenueConfig configures the reference venue drivers.
type VenueConfig struct {
	FeeRates          map[string]float64 // per-venue fee rate, e.g. "raydium": 0.0025
	ExecutionDelayMin time.Duration
	ExecutionDelayMax time.Duration
}

// ObservabilityConfig controls logging, tracing, and metrics.
type ObservabilityConfig struct {
	ServiceName    string
	Environment    string
	LogLevel       string
	LogFormat      string
	JaegerEndpoint string
	MetricsEnabled bool
}

// Load loads configuration from environment variables, applying defaults
// matched to spec.md's configuration surface.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("STORE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			QueryTimeout:    getDurationEnv("DB_QUERY_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("QUEUE_URL", "redis://localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 20),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 5),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
		},
		Queue: QueueConfig{
			Concurrency:       getIntEnv("QUEUE_CONCURRENCY", 10),
			RateLimit:         getIntEnv("QUEUE_RATE_LIMIT", 100),
			MaxAttempts:       getIntEnv("MAX_RETRY_ATTEMPTS", 3),
			BaseBackoff:       getDurationEnv("QUEUE_BASE_BACKOFF", 1*time.Second),
			MaxBackoff:        getDurationEnv("QUEUE_MAX_BACKOFF", 30*time.Second),
			VisibilityTimeout: getDurationEnv("QUEUE_VISIBILITY_TIMEOUT", 30*time.Second),
		},
		Venue: VenueConfig{
			FeeRates: map[string]float64{
				"raydium": getFloatEnv("VENUE_FEE_RAYDIUM", 0.0025),
				"meteora": getFloatEnv("VENUE_FEE_METEORA", 0.002),
			},
			ExecutionDelayMin: getDurationEnv("EXECUTION_DELAY_MIN", 10*time.Millisecond),
			ExecutionDelayMax: getDurationEnv("EXECUTION_DELAY_MAX", 150*time.Millisecond),
		},
		Observability: ObservabilityConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "dex-execution-engine"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("STORE_URL is required")
	}
	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
