package engine

import (
	"sync"

	"github.com/use-agent/harvest/models"
)

// Collector accumulates records across all targets of a batch in arrival
// order. It is safe for concurrent Add; the DNS driver's fan-out writes
// through per-target slots and appends once each slot is done.
type Collector[R models.Record] struct {
	mu      sync.Mutex
	records []R
}

// NewCollector creates an empty Collector.
func NewCollector[R models.Record]() *Collector[R] {
	return &Collector[R]{}
}

// Add appends records.
func (c *Collector[R]) Add(records ...R) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
}

// Len returns the number of records collected so far.
func (c *Collector[R]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a copy of the collected records.
func (c *Collector[R]) Records() []R {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]R, len(c.records))
	copy(out, c.records)
	return out
}

// Dedup collapses the collection in place and returns the number removed.
// Call once, after every target of the batch has been processed.
func (c *Collector[R]) Dedup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int
	c.records, removed = Dedup(c.records)
	return removed
}

// Dedup keeps the first record of every DedupKey, preserving order, and
// returns the survivors with the number of records dropped.
func Dedup[R models.Record](records []R) ([]R, int) {
	seen := make(map[string]struct{}, len(records))
	out := make([]R, 0, len(records))
	for _, r := range records {
		key := r.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}
