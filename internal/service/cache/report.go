package cache

import (
	"fmt"
	"strings"
	"time"

	pcache "FinResolve/pkg/cache"
)

// Totals aggregates all caches.
type Totals struct {
	Entries     int     `json:"entries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	HitRate     float64 `json:"hit_rate"`
	MemoryBytes int64   `json:"memory_bytes"`
}

// Snapshot is the JSON form of the cache report.
type Snapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Caches      []pcache.Stats `json:"caches"`
	Totals      Totals         `json:"totals"`
}

// Snapshot collects stats for every cache.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{GeneratedAt: m.now().UTC(), Caches: m.Stats()}
	for _, c := range s.Caches {
		s.Totals.Entries += c.Entries
		s.Totals.Hits += c.Hits
		s.Totals.Misses += c.Misses
		s.Totals.Evictions += c.Evictions
		s.Totals.MemoryBytes += c.MemoryBytes
	}
	if n := s.Totals.Hits + s.Totals.Misses; n > 0 {
		s.Totals.HitRate = float64(s.Totals.Hits) / float64(n)
	}
	return s
}

// Report renders the snapshot as a markdown table.
func (m *Manager) Report() string {
	return RenderReport(m.Snapshot())
}

// RenderReport formats s as markdown.
func RenderReport(s Snapshot) string {
	var b strings.Builder
	b.WriteString("# Analysis cache report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339))
	b.WriteString("| Cache | Entries | Capacity | Hit rate | Hits | Misses | Evictions | Avg access | Oldest | Newest | Memory |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---|---|---:|\n")
	for _, c := range s.Caches {
		fmt.Fprintf(&b, "| %s | %d | %d | %s | %d | %d | %d | %s | %s | %s | %s |\n",
			c.Name, c.Entries, c.Capacity, percent(c.HitRate), c.Hits, c.Misses, c.Evictions,
			c.AvgAccessTime.Round(time.Microsecond), timestamp(c.Oldest), timestamp(c.Newest), bytesize(c.MemoryBytes))
	}
	fmt.Fprintf(&b, "\n**Total:** %d entries, hit rate %s, %d evictions, ~%s\n",
		s.Totals.Entries, percent(s.Totals.HitRate), s.Totals.Evictions, bytesize(s.Totals.MemoryBytes))
	return b.String()
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func timestamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func bytesize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
