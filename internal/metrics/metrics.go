// Package metrics exposes Prometheus collectors for quote acquisition and
// news ingestion. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketharvest"

// Metrics groups every collector the service exports.
type Metrics struct {
	quoteAttempts    *prometheus.CounterVec
	quoteRequests    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	newsCycles       *prometheus.CounterVec
	newsItems        *prometheus.CounterVec
	newsFailures     prometheus.Gauge
	hashCacheSize    prometheus.Gauge
	schedulerRunning prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		quoteAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_source_attempts_total",
			Help:      "Adapter calls by source and outcome (ok, error, skipped).",
		}, []string{"source", "outcome"}),
		quoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_requests_total",
			Help:      "Quote queries by market and outcome (ok, empty).",
		}, []string{"market", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_lookups_total",
			Help:      "Quote cache lookups by result (hit, miss).",
		}, []string{"result"}),
		newsCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "news_cycles_total",
			Help:      "News ingestion cycles by outcome (ok, failed, circuit_open).",
		}, []string{"outcome"}),
		newsItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "news_items_total",
			Help:      "News entries by disposition (saved, duplicate).",
		}, []string{"disposition"}),
		newsFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "news_consecutive_failures",
			Help:      "Current consecutive failed ingestion cycles.",
		}),
		hashCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "news_hash_cache_size",
			Help:      "Content hashes held in memory.",
		}),
		schedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "news_scheduler_running",
			Help:      "1 while the news scheduler loop is running.",
		}),
	}
	reg.MustRegister(
		m.quoteAttempts, m.quoteRequests, m.cacheLookups,
		m.newsCycles, m.newsItems, m.newsFailures, m.hashCacheSize, m.schedulerRunning,
	)
	return m
}

func (m *Metrics) QuoteAttempt(source, outcome string) {
	if m == nil {
		return
	}
	m.quoteAttempts.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) QuoteRequest(market, outcome string) {
	if m == nil {
		return
	}
	m.quoteRequests.WithLabelValues(market, outcome).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) NewsCycle(outcome string) {
	if m == nil {
		return
	}
	m.newsCycles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NewsItems(saved, duplicates int) {
	if m == nil {
		return
	}
	m.newsItems.WithLabelValues("saved").Add(float64(saved))
	m.newsItems.WithLabelValues("duplicate").Add(float64(duplicates))
}

func (m *Metrics) NewsFailures(n int) {
	if m == nil {
		return
	}
	m.newsFailures.Set(float64(n))
}

func (m *Metrics) HashCacheSize(n int) {
	if m == nil {
		return
	}
	m.hashCacheSize.Set(float64(n))
}

func (m *Metrics) SchedulerRunning(running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.schedulerRunning.Set(v)
}
