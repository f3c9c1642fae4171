// Package metrics holds the Prometheus collectors of the service on a
// private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	OrdersCreated     *prometheus.CounterVec // kind
	OrdersSettled     *prometheus.CounterVec // kind
	OrdersFailed      *prometheus.CounterVec // kind, reason
	SignatureFailures prometheus.Counter
	RefundsRequired   prometheus.Counter
	QuotaDenials      *prometheus.CounterVec // reason
	ListingsCreated   prometheus.Counter
	SignedURLsMinted  prometheus.Counter
	WatermarkDuration prometheus.Histogram

	HTTPRequests *prometheus.CounterVec   // method, route, status
	HTTPDuration *prometheus.HistogramVec // method, route
}

func New(namespace string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Payment orders allocated at the gateway.",
		}, []string{"kind"}),
		OrdersSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_settled_total",
			Help:      "Payment orders settled after a verified callback.",
		}, []string{"kind"}),
		OrdersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_failed_total",
			Help:      "Payment orders moved to failed.",
		}, []string{"kind", "reason"}),
		SignatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_signature_failures_total",
			Help:      "Gateway callbacks rejected for an invalid signature.",
		}),
		RefundsRequired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_required_total",
			Help:      "Payments captured that did not grant anything new.",
		}),
		QuotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Upload authorizations denied by reason.",
		}, []string{"reason"}),
		ListingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_created_total",
			Help:      "Listings published.",
		}),
		SignedURLsMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signed_urls_minted_total",
			Help:      "Signed URLs to originals handed out.",
		}),
		WatermarkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "watermark_duration_seconds",
			Help:      "Time spent rendering previews.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.Registry.MustRegister(
		m.OrdersCreated,
		m.OrdersSettled,
		m.OrdersFailed,
		m.SignatureFailures,
		m.RefundsRequired,
		m.QuotaDenials,
		m.ListingsCreated,
		m.SignedURLsMinted,
		m.WatermarkDuration,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
