package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterRefills(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	assert.True(t, l.Allow("web", 2, 1))
	assert.True(t, l.Allow("web", 2, 1))
	assert.False(t, l.Allow("web", 2, 1))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("web", 2, 1))
	assert.InDelta(t, 0.5, l.Tokens("web"), 1e-9)

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("web", 2, 1))
	assert.InDelta(t, 1.0, l.Tokens("web"), 1e-9)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := New()
	assert.True(t, l.Allow("a", 1, 0))
	assert.False(t, l.Allow("a", 1, 0))
	assert.True(t, l.Allow("b", 1, 0))
	assert.Equal(t, float64(-1), l.Tokens("c"))
}
