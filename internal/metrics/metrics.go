// Package metrics exposes Prometheus collectors for the price tracker.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineRecordsTotal  *prometheus.CounterVec
	pipelineRunsTotal     *prometheus.CounterVec
	pipelineRunSeconds    prometheus.Histogram
	scrapeFetchesTotal    *prometheus.CounterVec
	storageWriteErrsTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		pipelineRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_records_total",
				Help: "Records counted per pipeline stage outcome.",
			},
			[]string{"stage"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Completed pipeline runs, labeled by final stage.",
			},
			[]string{"status"},
		)

		pipelineRunSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "Histogram of pipeline run wall-clock durations.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		)

		scrapeFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_fetches_total",
				Help: "Product page fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		storageWriteErrsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "storage_write_errors_total",
				Help: "Storage write operations that failed and were skipped.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AddRecords adds n to the record counter for a stage outcome.
func AddRecords(stage string, n int) {
	if pipelineRecordsTotal == nil || n <= 0 {
		return
	}
	pipelineRecordsTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveRun records a finished run with its final stage and duration.
func ObserveRun(status string, d time.Duration) {
	if pipelineRunsTotal == nil {
		return
	}
	pipelineRunsTotal.WithLabelValues(status).Inc()
	pipelineRunSeconds.Observe(d.Seconds())
}

// ObserveFetch counts one product page fetch attempt by outcome
// ("ok", "bot_check", "error").
func ObserveFetch(outcome string) {
	if scrapeFetchesTotal == nil {
		return
	}
	scrapeFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStorageWriteError counts one skipped storage write.
func ObserveStorageWriteError() {
	if storageWriteErrsTotal == nil {
		return
	}
	storageWriteErrsTotal.Inc()
}
