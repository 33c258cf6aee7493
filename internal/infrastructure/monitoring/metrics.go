package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send outcomes of a correlated sync message
const (
	OutcomeAck       = "ack"
	OutcomeExhausted = "exhausted"
	OutcomeRemoved   = "removed"
	OutcomeAbandoned = "abandoned"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Cookie synchronization metrics
	SyncBatches       *prometheus.CounterVec
	SyncTargets       *prometheus.CounterVec
	SyncSendOutcomes  *prometheus.CounterVec
	SyncRetries       prometheus.Counter
	SyncPending       prometheus.Gauge
	SyncBatchDuration prometheus.Histogram

	// Messaging metrics
	Messages *prometheus.CounterVec

	// Origin policy metrics
	OriginDecisions *prometheus.CounterVec

	// Upstream breaker state per origin (0 closed, 1 half-open, 2 open)
	UpstreamBreaker *prometheus.GaugeVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
}

// NewMetrics registers the collectors on reg. Passing a fresh
// prometheus.NewRegistry keeps tests independent of each other.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossframe_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crossframe_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SyncBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossframe_sync_batches_total",
				Help: "Cookie synchronization batches by mode",
			},
			[]string{"mode"},
		),
		SyncTargets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossframe_sync_targets_total",
				Help: "Windows reached by a fan-out, by route",
			},
			[]string{"route"},
		),
		SyncSendOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossframe_sync_send_outcomes_total",
				Help: "How correlated sync messages were resolved",
			},
			[]string{"outcome"},
		),
		SyncRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "crossframe_sync_retries_total",
				Help: "Sync messages re-sent after a timeout",
			},
		),
		SyncPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossframe_sync_pending",
				Help: "Correlated sync messages awaiting acknowledgment",
			},
		),
		SyncBatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crossframe_sync_batch_duration_seconds",
				Help:    "Time from fan-out to cleanup",
				Buckets: []float64{.001, .01, .1, .5, 1, 2.5, 5, 10},
			},
		),

		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossframe_messages_total",
				Help: "Messages handed to the messaging channel",
			},
			[]string{"cmd", "route"},
		),

		OriginDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossframe_origin_decisions_total",
				Help: "Origin policy decisions by deciding rule",
			},
			[]string{"rule", "allowed"},
		),

		UpstreamBreaker: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossframe_upstream_breaker_state",
				Help: "Circuit breaker state of each XHR upstream origin",
			},
			[]string{"origin"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossframe_ws_connections",
				Help: "Number of connected remote windows",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSyncBatch records the start of a synchronization batch
func (m *Metrics) RecordSyncBatch(mode string) {
	if m == nil {
		return
	}
	m.SyncBatches.WithLabelValues(mode).Inc()
}

// RecordSyncTarget records one target window of a fan-out
func (m *Metrics) RecordSyncTarget(route string) {
	if m == nil {
		return
	}
	m.SyncTargets.WithLabelValues(route).Inc()
}

// RecordSendOutcome records how a correlated send ended
func (m *Metrics) RecordSendOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SyncSendOutcomes.WithLabelValues(outcome).Inc()
}

// IncRetries counts a re-sent sync message
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.SyncRetries.Inc()
}

// AddPending moves the pending gauge by delta
func (m *Metrics) AddPending(delta int) {
	if m == nil {
		return
	}
	m.SyncPending.Add(float64(delta))
}

// ObserveBatch records the duration of a finalized batch
func (m *Metrics) ObserveBatch(duration time.Duration) {
	if m == nil {
		return
	}
	m.SyncBatchDuration.Observe(duration.Seconds())
}

// RecordMessage records a message handed to the messaging channel
func (m *Metrics) RecordMessage(cmd, route string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(cmd, route).Inc()
}

// RecordOriginDecision records an origin policy decision
func (m *Metrics) RecordOriginDecision(rule string, allowed bool) {
	if m == nil {
		return
	}
	m.OriginDecisions.WithLabelValues(rule, strconv.FormatBool(allowed)).Inc()
}

// SetBreakerState records the breaker state of an upstream origin
func (m *Metrics) SetBreakerState(origin string, state int) {
	if m == nil {
		return
	}
	m.UpstreamBreaker.WithLabelValues(origin).Set(float64(state))
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
