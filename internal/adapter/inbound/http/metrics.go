package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AuthDecisions   *prometheus.CounterVec
	AccessLogDrops  prometheus.Counter
	BackupsCreated  prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"route", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		AuthDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "auth_decisions_total",
				Help:      "Authentication decisions by mode and outcome",
			},
			[]string{"mode", "outcome"}, // outcome=allow/reject/forbidden
		),
		AccessLogDrops: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "access_log_drops_total",
				Help:      "Access log entries dropped due to append failures",
			},
		),
		BackupsCreated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "backups_created_total",
				Help:      "Settings backups created",
			},
		),
	}
}
