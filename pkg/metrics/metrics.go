// Package metrics defines the Prometheus metric collectors used by the
// projector and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the projector.
type Metrics struct {
	BatchesTotal      *prometheus.CounterVec
	EventsTotal       *prometheus.CounterVec
	CommandsTotal     *prometheus.CounterVec
	CoalescedTotal    prometheus.Counter
	RecordsSavedTotal prometheus.Counter
	StageDuration     *prometheus.HistogramVec
	BatchSize         prometheus.Histogram
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter
	ReindexTotal      prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projector_batches_total",
				Help: "Total event batches processed by outcome (ok, failed, empty).",
			},
			[]string{"outcome"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projector_events_total",
				Help: "Total content events reduced, by event kind.",
			},
			[]string{"kind"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projector_index_commands_total",
				Help: "Total index commands executed, by command kind.",
			},
			[]string{"kind"},
		),
		CoalescedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "projector_commands_coalesced_total",
				Help: "Visibility updates folded into a pending upsert for the same document.",
			},
		),
		RecordsSavedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "projector_records_saved_total",
				Help: "Projection records persisted after successful batches.",
			},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "projector_stage_duration_seconds",
				Help:    "Latency of each batch stage (load, reduce, execute, save).",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "projector_batch_size_events",
				Help:    "Number of content events per processed batch.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "projector_record_cache_hits_total",
				Help: "Projection record loads served from Redis.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "projector_record_cache_misses_total",
				Help: "Projection record loads that fell through to PostgreSQL.",
			},
		),
		ReindexTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "projector_reindex_total",
				Help: "Clear-all operations performed for full reindex.",
			},
		),
	}

	prometheus.MustRegister(
		m.BatchesTotal,
		m.EventsTotal,
		m.CommandsTotal,
		m.CoalescedTotal,
		m.RecordsSavedTotal,
		m.StageDuration,
		m.BatchSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ReindexTotal,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
