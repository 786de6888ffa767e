// Package metrics provides Prometheus metrics and the unexpected-error reporter.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"daoup/internal/chain"
)

const namespace = "daoup"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	// Chain metrics
	RPCLatency *prometheus.HistogramVec
	RPCErrors  *prometheus.CounterVec

	// Campaign metrics
	Actions          *prometheus.CounterVec
	UnexpectedErrors *prometheus.CounterVec
	FilterGeneration prometheus.Gauge

	// Sync metrics
	SyncedCampaigns prometheus.Counter
	FailedCampaigns prometheus.Counter
	SyncedActions   prometheus.Counter
	LastSync        prometheus.Gauge

	// HTTP metrics
	Requests *prometheus.CounterVec
}

// New creates a Metrics instance registered on its own registry.
func New(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		logger:   logger,

		RPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_errors_total",
			Help:      "Total number of failed RPC calls by method and code",
		}, []string{"method", "code"}),

		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "actions_total",
			Help:      "Total number of campaign actions by action and outcome",
		}, []string{"action", "outcome"}),
		UnexpectedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unexpected_errors_total",
			Help:      "Total number of unexpected errors by source",
		}, []string{"source"}),
		FilterGeneration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "filter_generation",
			Help:      "Number of list filter runs started",
		}),

		SyncedCampaigns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "campaigns_synced_total",
			Help:      "Total number of campaign snapshots stored",
		}),
		FailedCampaigns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "campaigns_failed_total",
			Help:      "Total number of campaigns that failed to sync",
		}),
		SyncedActions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "actions_synced_total",
			Help:      "Total number of campaign actions stored",
		}),
		LastSync: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last completed sync pass",
		}),

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRPC records RPC latency and failures.
func (m *Metrics) ObserveRPC(method string, elapsed time.Duration, err error) {
	m.RPCLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	if err != nil {
		m.RPCErrors.WithLabelValues(method, chain.CodeOf(err).String()).Inc()
	}
}

// ObserveAction counts an action hook outcome.
func (m *Metrics) ObserveAction(action, outcome string) {
	m.Actions.WithLabelValues(action, outcome).Inc()
}

// SetFilterGeneration records the list service's filter generation.
func (m *Metrics) SetFilterGeneration(generation uint64) {
	m.FilterGeneration.Set(float64(generation))
}

// RecordSync records a completed sync pass.
func (m *Metrics) RecordSync(synced, failed, actions int) {
	m.SyncedCampaigns.Add(float64(synced))
	m.FailedCampaigns.Add(float64(failed))
	m.SyncedActions.Add(float64(actions))
	m.LastSync.SetToCurrentTime()
}

// RecordRequest counts an HTTP request.
func (m *Metrics) RecordRequest(route string, status int) {
	m.Requests.WithLabelValues(route, http.StatusText(status)).Inc()
}

// Report logs an unexpected error and counts it by source.
func (m *Metrics) Report(source string, err error) {
	if err == nil {
		return
	}
	m.UnexpectedErrors.WithLabelValues(source).Inc()
	m.logger.Error("unexpected error",
		zap.String("source", source),
		zap.String("code", chain.CodeOf(err).String()),
		zap.Error(err))
}
