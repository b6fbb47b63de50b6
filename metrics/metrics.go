// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_batches_total",
			Help: "Finished batches, labeled by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	Records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_records_total",
			Help: "Records persisted, labeled by mode.",
		},
		[]string{"mode"},
	)
	Duplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_duplicates_removed_total",
			Help: "Records removed by batch-level deduplication.",
		},
	)
	Failures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_failures_total",
			Help: "Per-target and per-item failures reported as status events.",
		},
	)
	Captchas = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_captchas_total",
			Help: "Anti-bot challenges that suspended a run.",
		},
	)
	Sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_browser_sessions",
			Help: "Browser sessions currently open.",
		},
	)
)

func init() {
	prometheus.MustRegister(Batches)
	prometheus.MustRegister(Records)
	prometheus.MustRegister(Duplicates)
	prometheus.MustRegister(Failures)
	prometheus.MustRegister(Captchas)
	prometheus.MustRegister(Sessions)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
