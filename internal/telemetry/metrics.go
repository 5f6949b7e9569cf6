// Package telemetry provides the prometheus metrics and anomaly
// reporting sinks threaded through the rest of the service, following
// the shape of controlplane/agent/internal/agent/metrics.go and
// telemetry/global-monitor/internal/metrics in the teacher repo: a
// small struct of pre-registered collectors, constructed once and
// passed in, never referenced through a package-level global.
package telemetry

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every prometheus collector this service emits.
type Metrics struct {
	ChecksTotal        *prometheus.CounterVec
	CheckDuration      prometheus.Histogram
	VerdictCacheSize   prometheus.Gauge
	SubscribersActive  prometheus.Gauge
	ConfigUpdatesTotal *prometheus.CounterVec
	AnomaliesTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns a Metrics struct on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satgate",
			Name:      "checks_total",
			Help:      "Total satellite-allowed checks, by result path.",
		}, []string{"path", "result"}),
		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "satgate",
			Name:      "check_duration_seconds",
			Help:      "Latency of a full Check request, from arrival to reply.",
			Buckets:   prometheus.DefBuckets,
		}),
		VerdictCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "satgate",
			Name:      "verdict_cache_size",
			Help:      "Current number of entries in the verdict cache.",
		}),
		SubscribersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "satgate",
			Name:      "subscribers_active",
			Help:      "Current number of registered allowed-state subscribers.",
		}),
		ConfigUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satgate",
			Name:      "config_updates_total",
			Help:      "Total config-updater update attempts, by outcome.",
		}, []string{"outcome"}),
		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satgate",
			Name:      "anomalies_total",
			Help:      "Total anomaly reports, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.ChecksTotal,
		m.CheckDuration,
		m.VerdictCacheSize,
		m.SubscribersActive,
		m.ConfigUpdatesTotal,
		m.AnomaliesTotal,
	)
	return m
}

// AnomalyReporter records anomalies as side effects only; it never
// influences control flow (spec.md §9).
type AnomalyReporter interface {
	ReportAnomaly(kind string, err error, fields ...any)
}

// SlogAnomalyReporter logs anomalies via slog and increments
// AnomaliesTotal.
type SlogAnomalyReporter struct {
	Log     *slog.Logger
	Metrics *Metrics
}

func (r *SlogAnomalyReporter) ReportAnomaly(kind string, err error, fields ...any) {
	if r.Metrics != nil {
		r.Metrics.AnomaliesTotal.WithLabelValues(kind).Inc()
	}
	args := append([]any{"kind", kind, "error", err}, fields...)
	r.Log.Error("satgate: anomaly", args...)
}
