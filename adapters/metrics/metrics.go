// Package metrics provides Prometheus metrics collection for FetchVault.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for FetchVault.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Admission metrics
	RateLimitHits    *prometheus.CounterVec
	AbuseBlocks      *prometheus.CounterVec
	CreditRejections *prometheus.CounterVec
	CreditsReserved  *prometheus.CounterVec
	IdempotentHits   prometheus.Counter

	// Batch metrics
	BatchesTotal    *prometheus.CounterVec
	ItemsTotal      *prometheus.CounterVec
	ItemDuration    *prometheus.HistogramVec
	BatchesInFlight prometheus.Gauge

	// Archive metrics
	ArchiveParts prometheus.Counter
	ArchiveBytes prometheus.Counter

	// Webhook metrics
	WebhookDeliveries *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "path", "status", "tier"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fetchvault",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fetchvault",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limit rejections",
			},
			[]string{"tier"},
		),
		AbuseBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "abuse_blocks_total",
				Help:      "Total number of requests rejected by the abuse detector",
			},
			[]string{"tier"},
		),
		CreditRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "credit_rejections_total",
				Help:      "Total number of submissions rejected for insufficient credits",
			},
			[]string{"tier"},
		),
		CreditsReserved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "credits_reserved_total",
				Help:      "Total credits reserved by accepted submissions",
			},
			[]string{"tier"},
		),
		IdempotentHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "idempotent_hits_total",
				Help:      "Total number of submissions answered from the idempotency cache",
			},
		),
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "batches_total",
				Help:      "Total batches by terminal status",
			},
			[]string{"status"},
		),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "items_total",
				Help:      "Total downloaded items by outcome",
			},
			[]string{"outcome"},
		),
		ItemDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fetchvault",
				Name:      "item_duration_seconds",
				Help:      "Per-item download duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"outcome"},
		),
		BatchesInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fetchvault",
				Name:      "batches_in_flight",
				Help:      "Number of batches currently being processed",
			},
		),
		ArchiveParts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "archive_parts_total",
				Help:      "Total archive parts written",
			},
		),
		ArchiveBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "archive_bytes_total",
				Help:      "Total bytes packed into archive parts",
			},
		),
		WebhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "webhook_deliveries_total",
				Help:      "Total webhook delivery attempts by result",
			},
			[]string{"result"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fetchvault",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fetchvault",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}
