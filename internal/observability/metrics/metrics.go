// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_widget"

// Metrics holds all Prometheus metrics for the widget.
type Metrics struct {
	// Session metrics
	SessionsActivated prometheus.Counter
	SessionsActive    prometheus.Gauge
	SessionsEnded     *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec
	TokenFetchLatency prometheus.Histogram
	ConnectLatency    prometheus.Histogram

	// Transcript metrics
	TranscriptUpdates   prometheus.Counter
	SegmentsMerged      prometheus.Gauge
	RevisionsSuppressed prometheus.Counter
	SegmentsFirstSeen   *prometheus.CounterVec

	// Delivery metrics
	DeliveriesEnqueued *prometheus.CounterVec
	DeliveriesFailed   *prometheus.CounterVec
	DeliveryLatency    *prometheus.HistogramVec
	DeliveriesInFlight prometheus.Gauge

	// Knowledge base metrics
	DocumentRequests *prometheus.CounterVec
	UploadsRejected  *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsActivated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_activated_total",
			Help:      "Total number of session activations",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently connected",
		}),
		SessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions ended",
		}, []string{"reason"}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions",
		}, []string{"to"}),
		TokenFetchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_fetch_latency_seconds",
			Help:      "Session credential fetch latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		ConnectLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_latency_seconds",
			Help:      "Relay-forced connect latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		// Transcript metrics
		TranscriptUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_updates_total",
			Help:      "Total number of transcription source updates processed",
		}),
		SegmentsMerged: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments_merged",
			Help:      "Number of segments in the latest merged view",
		}),
		RevisionsSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_suppressed_total",
			Help:      "Total number of text revisions to already-delivered segments that were not re-sent",
		}),
		SegmentsFirstSeen: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_first_seen_total",
			Help:      "Total number of segments observed for the first time",
		}, []string{"role"}),

		// Delivery metrics
		DeliveriesEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_enqueued_total",
			Help:      "Total number of transcript deliveries started",
		}, []string{"sink"}),
		DeliveriesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_failed_total",
			Help:      "Total number of transcript deliveries that failed and were dropped",
		}, []string{"sink"}),
		DeliveryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_seconds",
			Help:      "Transcript delivery latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"sink"}),
		DeliveriesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deliveries_in_flight",
			Help:      "Number of transcript deliveries currently in flight",
		}),

		// Knowledge base metrics
		DocumentRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_requests_total",
			Help:      "Total number of knowledge-base API requests",
		}, []string{"op", "result"}),
		UploadsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_rejected_total",
			Help:      "Total number of uploads rejected before any network call",
		}, []string{"reason"}),
	}
}

// RecordActivation records a session activation starting.
func (m *Metrics) RecordActivation() {
	m.SessionsActivated.Inc()
}

// RecordConnected records a session reaching the connected state.
func (m *Metrics) RecordConnected(connectSeconds float64) {
	m.SessionsActive.Inc()
	m.ConnectLatency.Observe(connectSeconds)
}

// RecordSessionEnd records a connected session ending.
func (m *Metrics) RecordSessionEnd(reason string) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

// RecordTransition records a session state transition.
func (m *Metrics) RecordTransition(to string) {
	m.StateTransitions.WithLabelValues(to).Inc()
}

// RecordTokenFetch records a credential fetch.
func (m *Metrics) RecordTokenFetch(latencySeconds float64) {
	m.TokenFetchLatency.Observe(latencySeconds)
}

// RecordMerge records a merged-view recompute and the revisions it held back.
func (m *Metrics) RecordMerge(viewSize, suppressed int) {
	m.TranscriptUpdates.Inc()
	m.SegmentsMerged.Set(float64(viewSize))
	m.RevisionsSuppressed.Add(float64(suppressed))
}

// RecordFirstSeen records a segment observed for the first time.
func (m *Metrics) RecordFirstSeen(role string) {
	m.SegmentsFirstSeen.WithLabelValues(role).Inc()
}

// RecordDeliveryStart records a delivery attempt starting.
func (m *Metrics) RecordDeliveryStart(sink string) {
	m.DeliveriesEnqueued.WithLabelValues(sink).Inc()
	m.DeliveriesInFlight.Inc()
}

// RecordDeliveryEnd records a delivery attempt finishing.
func (m *Metrics) RecordDeliveryEnd(sink string, err error, latencySeconds float64) {
	m.DeliveriesInFlight.Dec()
	m.DeliveryLatency.WithLabelValues(sink).Observe(latencySeconds)
	if err != nil {
		m.DeliveriesFailed.WithLabelValues(sink).Inc()
	}
}

// RecordDocumentRequest records a knowledge-base API call.
func (m *Metrics) RecordDocumentRequest(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DocumentRequests.WithLabelValues(op, result).Inc()
}

// RecordUploadRejected records an upload rejected by client-side validation.
func (m *Metrics) RecordUploadRejected(reason string) {
	m.UploadsRejected.WithLabelValues(reason).Inc()
}
