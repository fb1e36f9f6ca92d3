package retry

import (
	"context"
	"errors"
	"time"
)

// Operation describes the computation being retried. Kind and Context are
// handed to the Recoverer so it can decide whether a fallback value exists.
type Operation struct {
	Kind    string
	Key     string
	Context map[string]any
}

// Result carries the computed value and how it was obtained.
type Result[T any] struct {
	Value     T
	Attempts  int
	Recovered bool
	Recovery  *Recovery
}

// Executor runs a computation with bounded retries and exponential backoff.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	recoverer   Recoverer
	sleep       Sleeper
	onRetry     func(op Operation, attempt int, err error)
}

// NewExecutor creates an executor with defaults: 3 attempts, 1s base, 10s cap.
func NewExecutor(opts ...Option) *Executor {
	cfg := &Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Recoverer:   NopRecoverer{},
		Sleeper:     ContextSleep,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return &Executor{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		recoverer:   cfg.Recoverer,
		sleep:       cfg.Sleeper,
		onRetry:     cfg.OnRetry,
	}
}

// MaxAttempts returns the configured attempt budget.
func (e *Executor) MaxAttempts() int {
	return e.maxAttempts
}

// Delay returns the wait after the given failed attempt (1-based).
func (e *Executor) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.maxDelay {
			return e.maxDelay
		}
	}
	if d > e.maxDelay {
		return e.maxDelay
	}
	return d
}

// Run executes fn until it succeeds, the recoverer supplies a value, or the
// attempt budget is spent. The most recent error is returned on exhaustion.
func Run[T any](ctx context.Context, e *Executor, op Operation, fn func(ctx context.Context) (T, error)) (Result[T], error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return Result[T]{Value: zero, Attempts: attempt - 1}, lastErr
			}
			return Result[T]{Value: zero, Attempts: attempt - 1}, err
		}

		v, err := fn(ctx)
		if err == nil {
			return Result[T]{Value: v, Attempts: attempt}, nil
		}
		lastErr = err

		final := attempt == e.maxAttempts ||
			IsPermanent(err) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded)

		if !final {
			if serr := e.sleep(ctx, e.Delay(attempt)); serr != nil {
				final = true
			}
		}

		rctx := ctx
		if final {
			rctx = context.WithValue(ctx, finalAttemptKey{}, true)
		}
		rec := e.recoverer.Recover(rctx, unwrapPermanent(err), attempt, op.Kind, op.Context)
		if rec.Success {
			if val, ok := rec.Data.(T); ok {
				return Result[T]{Value: val, Attempts: attempt, Recovered: true, Recovery: &rec}, nil
			}
		}

		if final {
			return Result[T]{Value: zero, Attempts: attempt}, unwrapPermanent(err)
		}

		if e.onRetry != nil {
			e.onRetry(op, attempt, err)
		}
	}

	return Result[T]{Value: zero, Attempts: e.maxAttempts}, lastErr
}

type finalAttemptKey struct{}

// IsFinalAttempt reports whether a Recoverer is being consulted for the
// last failure Run will see, either because the budget is spent or the
// error is not retryable. Recoverers that synthesize a degraded value use it
// to leave the remaining attempts to the computation.
func IsFinalAttempt(ctx context.Context) bool {
	v, _ := ctx.Value(finalAttemptKey{}).(bool)
	return v
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper backed by a timer.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func unwrapPermanent(err error) error {
	if p, ok := err.(*permanentError); ok {
		return p.err
	}
	return err
}
