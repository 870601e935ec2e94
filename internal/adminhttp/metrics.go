// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package adminhttp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/geoengine/ge-backend/internal/cache"
)

// Metrics holds the Prometheus collectors registered against the admin
// server's /metrics endpoint, grounded on arx-backend/gateway/metrics.go's
// CounterVec/HistogramVec/GaugeVec grouping, trading request-gateway
// dimensions for the dispatcher's cache-hit/cost-attribution ones.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal   *prometheus.CounterVec
	cacheHitsTotal *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec

	cacheBytes   prometheus.Gauge
	cacheBuckets prometheus.Gauge
	queueDepth   prometheus.Gauge
	workersBusy  prometheus.Gauge
}

// NewMetrics constructs and registers the admin metrics collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ge",
			Name:      "queries_total",
			Help:      "Top-level queries processed, partitioned by outcome.",
		}, []string{"outcome"}),
		cacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ge",
			Name:      "cache_results_total",
			Help:      "Operator-graph evaluations, partitioned by cache hit or miss.",
		}, []string{"result"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ge",
			Name:      "query_duration_seconds",
			Help:      "Top-level query wall-clock duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		cacheBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ge",
			Name:      "cache_bytes",
			Help:      "Bytes currently retained by the result cache.",
		}),
		cacheBuckets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ge",
			Name:      "cache_fingerprint_buckets",
			Help:      "Distinct semantic fingerprints currently tracked by the cache.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ge",
			Name:      "worker_queue_depth",
			Help:      "Parsed requests currently waiting for a free worker.",
		}),
		workersBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ge",
			Name:      "workers_busy",
			Help:      "Worker goroutines currently evaluating a request.",
		}),
	}
}

// ObserveQuery records one completed top-level query.
func (m *Metrics) ObserveQuery(outcome string, seconds float64) {
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.queryDuration.WithLabelValues(outcome).Observe(seconds)
}

// ObserveCacheResult records one cache hit or miss for a single operator
// node evaluation.
func (m *Metrics) ObserveCacheResult(hit bool) {
	if hit {
		m.cacheHitsTotal.WithLabelValues("hit").Inc()
	} else {
		m.cacheHitsTotal.WithLabelValues("miss").Inc()
	}
}

// OnHit implements cache.Observer.
func (m *Metrics) OnHit(string) { m.ObserveCacheResult(true) }

// OnMiss implements cache.Observer.
func (m *Metrics) OnMiss(string) { m.ObserveCacheResult(false) }

// OnEvict implements cache.Observer; evictions are not broken out as their
// own series, they show up as a drop in cache_bytes on the next poll.
func (m *Metrics) OnEvict(string, int) {}

var _ cache.Observer = (*Metrics)(nil)

// refreshGauges snapshots the cache and server stats into the gauge
// collectors. It is called by the /stats handler and immediately before
// every /metrics scrape is served; a collector wrapper would be more
// idiomatic, but polling before serving keeps this package free of an
// extra background goroutine.
func (m *Metrics) refreshGauges(cacheStats cache.Stats, queueDepth, workersBusy int) {
	m.cacheBytes.Set(float64(cacheStats.CurrentBytes))
	m.cacheBuckets.Set(float64(cacheStats.Buckets))
	m.queueDepth.Set(float64(queueDepth))
	m.workersBusy.Set(float64(workersBusy))
}
