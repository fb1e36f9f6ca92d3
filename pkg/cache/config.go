package cache

import (
	"time"

	"FinResolve/pkg/logger"
	"FinResolve/pkg/retry"
)

// Option configures an analysis cache.
type Option func(*Config)

// Config holds analysis cache configuration.
type Config struct {
	MaxEntries  int
	DefaultTTL  time.Duration
	Executor    *retry.Executor
	Store       Store
	StorePrefix string
	Observer    Observer
	Logger      *logger.Logger
	Clock       func() time.Time
	Samples     int
}

// WithMaxEntries sets the size that triggers an eviction sweep.
func WithMaxEntries(n int) Option {
	return func(c *Config) {
		c.MaxEntries = n
	}
}

// WithDefaultTTL sets the TTL used when callers pass zero.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.DefaultTTL = ttl
	}
}

// WithExecutor sets the retry executor wrapping every computation.
func WithExecutor(e *retry.Executor) Option {
	return func(c *Config) {
		c.Executor = e
	}
}

// WithStore enables a second tier (e.g. Redis). Values are JSON encoded.
func WithStore(s Store, prefix string) Option {
	return func(c *Config) {
		c.Store = s
		c.StorePrefix = prefix
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(c *Config) {
		if o != nil {
			c.Observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Clock = now
		}
	}
}

// WithAccessSamples sets how many access-time samples are kept for stats.
func WithAccessSamples(n int) Option {
	return func(c *Config) {
		c.Samples = n
	}
}

// RedisOption configures the Redis store.
type RedisOption func(*RedisConfig)

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
}

// WithRedisHost sets Redis host.
func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) {
		c.Host = host
	}
}

// WithRedisPort sets Redis port.
func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) {
		c.Port = port
	}
}

// WithRedisPassword sets Redis password.
func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
	}
}

// WithRedisDB sets Redis database number.
func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) {
		c.DB = db
	}
}

// WithRedisPool sets connection pool settings.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = poolSize
		c.MinIdleConns = minIdleConns
		c.PoolTimeout = timeout
	}
}

// WithRedisPrefix sets key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		c.Prefix = prefix
	}
}
