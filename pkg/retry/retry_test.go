package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

var errBoom = errors.New("boom")

func TestRunRetriesWithBackoff(t *testing.T) {
	rs := &recordingSleeper{}
	e := NewExecutor(WithSleeper(rs.sleep))

	calls := 0
	res, err := Run(context.Background(), e, Operation{Kind: "test"}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errBoom
		}
		return "third", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "third", res.Value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Recovered)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rs.waits)
}

func TestRunReturnsMostRecentError(t *testing.T) {
	rs := &recordingSleeper{}
	e := NewExecutor(WithSleeper(rs.sleep))

	calls := 0
	_, err := Run(context.Background(), e, Operation{Kind: "test"}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("failure " + string(rune('0'+calls)))
	})

	require.Error(t, err)
	assert.Equal(t, "failure 3", err.Error())
	assert.Equal(t, 3, calls)
	// no wait after the final attempt
	assert.Len(t, rs.waits, 2)
}

func TestRunRecoveryShortCircuits(t *testing.T) {
	rs := &recordingSleeper{}
	var seen []int
	rec := RecovererFunc(func(_ context.Context, err error, attempt int, kind string, opCtx map[string]any) Recovery {
		seen = append(seen, attempt)
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, "fund", kind)
		assert.Equal(t, "IE00B4L5Y983", opCtx["isin"])
		return Recovery{Success: true, Data: 42, Strategy: "record_derived", Confidence: 0.5}
	})
	e := NewExecutor(WithSleeper(rs.sleep), WithRecoverer(rec))

	calls := 0
	res, err := Run(context.Background(), e, Operation{Kind: "fund", Context: map[string]any{"isin": "IE00B4L5Y983"}},
		func(context.Context) (int, error) {
			calls++
			return 0, errBoom
		})

	require.NoError(t, err)
	assert.Equal(t, 42, res.Value)
	assert.True(t, res.Recovered)
	require.NotNil(t, res.Recovery)
	assert.Equal(t, "record_derived", res.Recovery.Strategy)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []int{1}, seen)
	assert.Equal(t, []time.Duration{time.Second}, rs.waits)
}

func TestRunRecoveryWithWrongTypeIsIgnored(t *testing.T) {
	rec := RecovererFunc(func(context.Context, error, int, string, map[string]any) Recovery {
		return Recovery{Success: true, Data: "not an int"}
	})
	e := NewExecutor(WithSleeper(func(context.Context, time.Duration) error { return nil }), WithRecoverer(rec))

	_, err := Run(context.Background(), e, Operation{}, func(context.Context) (int, error) {
		return 0, errBoom
	})
	assert.ErrorIs(t, err, errBoom)
}

func TestRunPermanentErrorStopsImmediately(t *testing.T) {
	rs := &recordingSleeper{}
	e := NewExecutor(WithSleeper(rs.sleep))

	calls := 0
	_, err := Run(context.Background(), e, Operation{}, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(errBoom)
	})

	assert.ErrorIs(t, err, errBoom)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, rs.waits)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewExecutor()

	calls := 0
	_, err := Run(ctx, e, Operation{}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDelayIsCapped(t *testing.T) {
	e := NewExecutor()
	assert.Equal(t, time.Second, e.Delay(1))
	assert.Equal(t, 2*time.Second, e.Delay(2))
	assert.Equal(t, 4*time.Second, e.Delay(3))
	assert.Equal(t, 8*time.Second, e.Delay(4))
	assert.Equal(t, 10*time.Second, e.Delay(5))
	assert.Equal(t, 10*time.Second, e.Delay(30))
}

func TestStaleRecoverer(t *testing.T) {
	rec := Chain{NopRecoverer{}, Stale{}}.Recover(context.Background(), errBoom, 1, "factsheet", map[string]any{StaleKey: "old"})
	assert.True(t, rec.Success)
	assert.Equal(t, "old", rec.Data)
	assert.Equal(t, "serve_stale", rec.Strategy)

	rec = Stale{}.Recover(context.Background(), errBoom, 1, "factsheet", nil)
	assert.False(t, rec.Success)
}

func TestRecovererSeesFinalAttempt(t *testing.T) {
	var finals []bool
	rec := RecovererFunc(func(ctx context.Context, _ error, _ int, _ string, _ map[string]any) Recovery {
		finals = append(finals, IsFinalAttempt(ctx))
		return Recovery{}
	})
	e := NewExecutor(WithMaxAttempts(3), WithRecoverer(rec), WithSleeper(func(context.Context, time.Duration) error { return nil }))

	_, err := Run(context.Background(), e, Operation{}, func(context.Context) (int, error) {
		return 0, errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []bool{false, false, true}, finals)

	finals = nil
	_, err = Run(context.Background(), e, Operation{}, func(context.Context) (int, error) {
		return 0, Permanent(errBoom)
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []bool{true}, finals)
	assert.False(t, IsFinalAttempt(context.Background()))
}
