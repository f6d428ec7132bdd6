package enrich

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Pool.
type Metrics struct {
	cells   *prometheus.CounterVec
	latency prometheus.Histogram
	runs    prometheus.Counter
}

// NewMetrics creates pool collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soil",
			Subsystem: "enrich",
			Name:      "cells_total",
			Help:      "Cells processed by the enrichment pool, by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "soil",
			Subsystem: "enrich",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of a single cell lookup.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "soil",
			Subsystem: "enrich",
			Name:      "runs_total",
			Help:      "Completed enrichment pool runs.",
		}),
	}
	reg.MustRegister(m.cells, m.latency, m.runs)
	return m
}

func (m *Metrics) observe(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "populated"
	if !ok {
		outcome = "failed"
	}
	m.cells.WithLabelValues(outcome).Inc()
	m.latency.Observe(d.Seconds())
}

func (m *Metrics) runDone() {
	if m == nil {
		return
	}
	m.runs.Inc()
}
