package retry

import "time"

// Option configures an Executor.
type Option func(*Config)

// Config holds Executor configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Recoverer   Recoverer
	Sleeper     Sleeper
	OnRetry     func(op Operation, attempt int, err error)
}

// WithMaxAttempts sets the attempt budget, including the first call.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithBaseDelay sets the wait after the first failure.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Config) {
		c.BaseDelay = d
	}
}

// WithMaxDelay caps the backoff.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		c.MaxDelay = d
	}
}

// WithRecoverer sets the recovery strategy consulted after each failure.
func WithRecoverer(r Recoverer) Option {
	return func(c *Config) {
		if r != nil {
			c.Recoverer = r
		}
	}
}

// WithSleeper replaces the wait function. Tests use it to record delays.
func WithSleeper(s Sleeper) Option {
	return func(c *Config) {
		if s != nil {
			c.Sleeper = s
		}
	}
}

// WithOnRetry registers a hook called before each retry.
func WithOnRetry(fn func(op Operation, attempt int, err error)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}
