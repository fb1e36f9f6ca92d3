package perf

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerCountsPerRun(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTrackerWithClock(func() time.Time { return now })

	tr.Start("a")
	tr.Start("b")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordHit("a")
			tr.RecordMiss("b")
		}()
	}
	wg.Wait()
	tr.RecordError("a", errors.New("oracle timeout"))
	tr.RecordError("a", nil)
	tr.RecordBatch("a")
	tr.RecordHit("unknown")

	now = now.Add(3 * time.Second)
	a := tr.Finish("a")
	assert.Equal(t, "a", a.RunID)
	assert.Equal(t, 10, a.CacheHits)
	assert.Zero(t, a.CacheMisses)
	assert.Equal(t, []string{"oracle timeout"}, a.Errors)
	assert.Equal(t, 1, a.Batches)
	assert.Equal(t, 3*time.Second, a.Duration)

	b, ok := tr.Snapshot("b")
	assert.True(t, ok)
	assert.Equal(t, 10, b.CacheMisses)

	_, ok = tr.Snapshot("a")
	assert.False(t, ok)
	assert.Equal(t, "a", tr.Finish("a").RunID)
}
