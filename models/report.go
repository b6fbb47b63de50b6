package models

import (
	"sync"
	"time"
)

// ScrapeReport is the terminal artifact of one batch. It is built
// incrementally by the batch controller and finalized exactly once before
// it is handed to the persister.
type ScrapeReport struct {
	BatchID     string
	Mode        Mode
	Records     []Record
	StartedAt   time.Time
	FinishedAt  time.Time
	Interrupted bool

	// Duplicates is the number of records removed by deduplication.
	Duplicates int

	// Errors counts per-target and per-item failures reported during the run.
	Errors int

	// OutputPath is set by the persister.
	OutputPath string

	finalize sync.Once
}

// NewScrapeReport starts a report for a batch.
func NewScrapeReport(batchID string, mode Mode) *ScrapeReport {
	return &ScrapeReport{
		BatchID:   batchID,
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

// Finalize stamps the report with its final records. Calls after the first
// are ignored and return false.
func (r *ScrapeReport) Finalize(records []Record, duplicates int, interrupted bool) bool {
	done := false
	r.finalize.Do(func() {
		r.Records = records
		r.Duplicates = duplicates
		r.Interrupted = interrupted
		r.FinishedAt = time.Now()
		done = true
	})
	return done
}
