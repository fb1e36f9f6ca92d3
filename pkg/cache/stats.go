package cache

import "time"

// EntrySizeEstimate is the fixed per-entry footprint used for memory stats.
const EntrySizeEstimate = 1024

// Stats is an operational snapshot of one cache.
type Stats struct {
	Name          string        `json:"name"`
	Entries       int           `json:"entries"`
	Capacity      int           `json:"capacity"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Evictions     int64         `json:"evictions"`
	HitRate       float64       `json:"hit_rate"`
	AvgAccessTime time.Duration `json:"avg_access_time"`
	Oldest        *time.Time    `json:"oldest,omitempty"`
	Newest        *time.Time    `json:"newest,omitempty"`
	MemoryBytes   int64         `json:"memory_bytes"`
}

// Stats returns counters, the rolling average access time and an estimated
// memory footprint.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Name:        c.name,
		Entries:     len(c.entries),
		Capacity:    c.maxEntries,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		MemoryBytes: int64(len(c.entries)) * EntrySizeEstimate,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	if c.sampleCnt > 0 {
		var sum time.Duration
		for i := 0; i < c.sampleCnt; i++ {
			sum += c.samples[i]
		}
		s.AvgAccessTime = sum / time.Duration(c.sampleCnt)
	}
	for _, e := range c.entries {
		t := e.InsertedAt
		if s.Oldest == nil || t.Before(*s.Oldest) {
			s.Oldest = &t
		}
		if s.Newest == nil || t.After(*s.Newest) {
			s.Newest = &t
		}
	}
	return s
}
