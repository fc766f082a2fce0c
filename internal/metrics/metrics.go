// Package metrics holds the Prometheus collectors for the query bridge, the
// document store, the catalog cache and the HTTP layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups every ultradar collector behind its own prometheus.Registry
// so tests can create as many as they like.
type Registry struct {
	reg *prometheus.Registry

	QueryDuration  *prometheus.HistogramVec
	QueryPolls     *prometheus.CounterVec
	QueryRows      *prometheus.HistogramVec
	QueryTruncated *prometheus.CounterVec

	DocStoreOps *prometheus.CounterVec

	CatalogLoads *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New builds and registers all collectors.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ultradar_query_duration_seconds",
				Help:    "Wall time of one submit/poll/fetch lifecycle",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
			},
			[]string{"endpoint", "outcome"},
		),
		QueryPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ultradar_query_polls_total",
				Help: "Status polls issued against the query engine",
			},
			[]string{"endpoint"},
		),
		QueryRows: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ultradar_query_rows",
				Help:    "Data rows returned per query",
				Buckets: prometheus.ExponentialBuckets(1, 4, 9),
			},
			[]string{"endpoint"},
		),
		QueryTruncated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ultradar_query_truncated_total",
				Help: "Queries whose result set was cut at the row cap",
			},
			[]string{"endpoint"},
		),
		DocStoreOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ultradar_docstore_operations_total",
				Help: "Document store operations by backend, op and result",
			},
			[]string{"backend", "op", "result"},
		),
		CatalogLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ultradar_catalog_loads_total",
				Help: "Strategy catalog fetches by result",
			},
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ultradar_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "method", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ultradar_http_request_duration_seconds",
				Help:    "HTTP handler latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.QueryDuration,
		r.QueryPolls,
		r.QueryRows,
		r.QueryTruncated,
		r.DocStoreOps,
		r.CatalogLoads,
		r.HTTPRequests,
		r.HTTPDuration,
	)
	return r
}

// Handler serves the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and pushers.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveQuery records one finished query lifecycle. A nil Registry is a no-op
// so callers never need to guard.
func (r *Registry) ObserveQuery(endpoint, outcome string, started time.Time, polls, rows int, truncated bool) {
	if r == nil {
		return
	}
	r.QueryDuration.WithLabelValues(endpoint, outcome).Observe(time.Since(started).Seconds())
	r.QueryPolls.WithLabelValues(endpoint).Add(float64(polls))
	if outcome == "ok" {
		r.QueryRows.WithLabelValues(endpoint).Observe(float64(rows))
	}
	if truncated {
		r.QueryTruncated.WithLabelValues(endpoint).Inc()
	}
}

// DocStoreOp counts one document store call.
func (r *Registry) DocStoreOp(backend, op string, err error) {
	if r == nil {
		return
	}
	r.DocStoreOps.WithLabelValues(backend, op, result(err)).Inc()
}

// CatalogLoad counts one catalog fetch.
func (r *Registry) CatalogLoad(err error) {
	if r == nil {
		return
	}
	r.CatalogLoads.WithLabelValues(result(err)).Inc()
}

// ObserveHTTP records one handled request.
func (r *Registry) ObserveHTTP(route, method, code string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(route, method, code).Inc()
	r.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
