// Package metrics exposes process counters for the tracker in Prometheus format.
// Each Metrics value owns its registry so tests and multiple servers never collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "commit_streaks"

// Metrics holds the collectors shared by the engine components.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups  *prometheus.CounterVec
	ledgerWrites  *prometheus.CounterVec
	backfillItems *prometheus.CounterVec
	sourceErrors  prometheus.Counter
	trackRuns     *prometheus.CounterVec
	currentStreak prometheus.Gauge
}

// New creates a Metrics with a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_cache_lookups_total",
			Help:      "Aggregate bucket cache lookups by result.",
		}, []string{"result"}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_writes_total",
			Help:      "Ledger upserts by outcome.",
		}, []string{"result"}),
		backfillItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_items_total",
			Help:      "Backfill (repository, date) items by outcome.",
		}, []string{"outcome"}),
		sourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Failed calls to the activity source.",
		}),
		trackRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_runs_total",
			Help:      "Live tracking runs by status.",
		}, []string{"status"}),
		currentStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_streak_days",
			Help:      "Length of the active daily streak.",
		}),
	}

	m.registry.MustRegister(
		m.cacheLookups,
		m.ledgerWrites,
		m.backfillItems,
		m.sourceErrors,
		m.trackRuns,
		m.currentStreak,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// LedgerWrite counts a successful upsert by its result ("inserted", "replaced")
func (m *Metrics) LedgerWrite(result string) {
	if m != nil {
		m.ledgerWrites.WithLabelValues(result).Inc()
	}
}

// BackfillItem counts a backfill item outcome ("created", "replaced", "skipped", "failed", "no_activity")
func (m *Metrics) BackfillItem(outcome string) {
	if m != nil {
		m.backfillItems.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SourceError() {
	if m != nil {
		m.sourceErrors.Inc()
	}
}

// TrackRun counts a live tracking run ("ok", "partial", "failed")
func (m *Metrics) TrackRun(status string) {
	if m != nil {
		m.trackRuns.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) SetCurrentStreak(days int) {
	if m != nil {
		m.currentStreak.Set(float64(days))
	}
}
