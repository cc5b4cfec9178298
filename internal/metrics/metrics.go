// Package metrics exposes Prometheus collectors for the sweep engine and the
// explorer client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallet_watch"

// Sweep outcome label values
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeSkipped   = "skipped" // lease held elsewhere
)

// Metrics holds every collector the worker and server report to
type Metrics struct {
	registry *prometheus.Registry

	Sweeps             *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
	WalletsProcessed   prometheus.Counter
	WalletsFailed      *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	WatermarkCommits   prometheus.Counter
	MonitoredWallets   prometheus.Gauge
	LastSweepTimestamp prometheus.Gauge
	ExplorerRequests   *prometheus.CounterVec
	WebhookEvents      *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Sweeps started, by outcome.",
		}, []string{"outcome"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one sweep over all wallets.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		WalletsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallets_processed_total",
			Help:      "Wallets whose transactions were fetched and classified.",
		}),
		WalletsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallets_failed_total",
			Help:      "Wallets skipped in a sweep, by reason.",
		}, []string{"reason"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts, by result.",
		}, []string{"result"}),
		WatermarkCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watermark_commits_total",
			Help:      "Watermark advances written to the store.",
		}),
		MonitoredWallets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitored_wallets",
			Help:      "Distinct addresses seen in the last sweep.",
		}),
		LastSweepTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time the last sweep finished.",
		}),
		ExplorerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explorer_requests_total",
			Help:      "Explorer fetches, by result.",
		}, []string{"result"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_events_total",
			Help:      "Payment webhook deliveries, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.Sweeps,
		m.SweepDuration,
		m.WalletsProcessed,
		m.WalletsFailed,
		m.Notifications,
		m.WatermarkCommits,
		m.MonitoredWallets,
		m.LastSweepTimestamp,
		m.ExplorerRequests,
		m.WebhookEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
