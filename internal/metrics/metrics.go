// Package metrics exposes Prometheus metrics for soil-explorer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider owns a private registry so tests and commands never collide on
// the global default.
type Provider struct {
	reg      *prometheus.Registry
	requests *prometheus.HistogramVec
}

// New creates a registry with the Go and process collectors and a build
// info gauge.
func New(version string) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soil_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version"},
	)
	reg.MustRegister(build)
	if version == "" {
		version = "dev"
	}
	build.WithLabelValues(version).Set(1)

	requests := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soil_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status code.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)
	reg.MustRegister(requests)

	return &Provider{reg: reg, requests: requests}
}

// Handler serves the registry in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Registerer returns the registry for component metrics.
func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Gatherer returns the registry for tests and custom exporters.
func (p *Provider) Gatherer() prometheus.Gatherer { return p.reg }

// Middleware records request latency labelled by the matched chi route.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		p.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
