package retry

import "context"

// Recovery is the answer of a Recoverer for one failure.
type Recovery struct {
	Success       bool    `json:"success"`
	Data          any     `json:"-"`
	Strategy      string  `json:"strategy"`
	Confidence    float64 `json:"confidence"`
	Documentation string  `json:"documentation,omitempty"`
}

// Recoverer decides whether a usable value can be synthesized from a failure.
type Recoverer interface {
	Recover(ctx context.Context, err error, attempt int, kind string, opCtx map[string]any) Recovery
}

// RecovererFunc adapts a function to Recoverer.
type RecovererFunc func(ctx context.Context, err error, attempt int, kind string, opCtx map[string]any) Recovery

func (f RecovererFunc) Recover(ctx context.Context, err error, attempt int, kind string, opCtx map[string]any) Recovery {
	return f(ctx, err, attempt, kind, opCtx)
}

// NopRecoverer never recovers.
type NopRecoverer struct{}

func (NopRecoverer) Recover(context.Context, error, int, string, map[string]any) Recovery {
	return Recovery{Strategy: "none"}
}

// Chain tries each recoverer in order and returns the first success.
type Chain []Recoverer

func (c Chain) Recover(ctx context.Context, err error, attempt int, kind string, opCtx map[string]any) Recovery {
	for _, r := range c {
		if r == nil {
			continue
		}
		if rec := r.Recover(ctx, err, attempt, kind, opCtx); rec.Success {
			return rec
		}
	}
	return Recovery{Strategy: "none"}
}

// Stale recovers with the value stored under "stale" in the operation context.
// Caches place the expired entry there before recomputing.
type Stale struct{}

const StaleKey = "stale"

func (Stale) Recover(_ context.Context, _ error, _ int, _ string, opCtx map[string]any) Recovery {
	v, ok := opCtx[StaleKey]
	if !ok || v == nil {
		return Recovery{Strategy: "serve_stale"}
	}
	return Recovery{
		Success:       true,
		Data:          v,
		Strategy:      "serve_stale",
		Confidence:    0.5,
		Documentation: "computation failed, served expired cache entry",
	}
}
