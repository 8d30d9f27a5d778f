// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_voice_bridge"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Call metrics
	CallsTotal   prometheus.Counter
	CallsActive  prometheus.Gauge
	CallsClosed  *prometheus.CounterVec
	CallDuration prometheus.Histogram

	// Media metrics
	MediaFramesReceived prometheus.Counter
	MediaBytesReceived  prometheus.Counter
	MediaFramesDropped  *prometheus.CounterVec
	MediaBytesSent      prometheus.Counter

	// Cycle metrics
	Cycles       *prometheus.CounterVec
	CycleLatency *prometheus.HistogramVec
	Fallbacks    *prometheus.CounterVec

	// Backend metrics
	BackendLatency *prometheus.HistogramVec
	BackendErrors  *prometheus.CounterVec

	// Transcode metrics
	Transcodes       *prometheus.CounterVec
	TranscodeLatency *prometheus.HistogramVec
	TranscodeWaiting prometheus.Gauge

	// Extraction and persistence metrics
	Extractions     *prometheus.CounterVec
	PersistAttempts *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Recording metrics
	Recordings *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		CallsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of media stream sessions accepted",
		}),
		CallsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of currently open media stream sessions",
		}),
		CallsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_closed_total",
			Help:      "Total number of sessions closed, by cause",
		}, []string{"cause"}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of media stream sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		MediaFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_frames_received_total",
			Help:      "Total inbound media frames",
		}),
		MediaBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_bytes_received_total",
			Help:      "Total inbound μ-law audio bytes",
		}),
		MediaFramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_frames_dropped_total",
			Help:      "Total inbound media frames dropped",
		}, []string{"reason"}),
		MediaBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_bytes_sent_total",
			Help:      "Total outbound μ-law audio bytes",
		}),

		Cycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total processing cycles by kind and outcome",
		}, []string{"kind", "outcome"}),
		CycleLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_latency_seconds",
			Help:      "End-to-end processing cycle latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"kind"}),
		Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total degraded replies by reason",
		}, []string{"reason"}),

		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Latency of speech, language and synthesis backends in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"backend", "provider"}),
		BackendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Total backend errors",
		}, []string{"backend", "provider", "kind"}),

		Transcodes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcodes_total",
			Help:      "Total transcodes by transcoder and outcome",
		}, []string{"transcoder", "outcome"}),
		TranscodeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcode_latency_seconds",
			Help:      "Transcode latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"transcoder"}),
		TranscodeWaiting: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcode_waiting",
			Help:      "Transcode requests waiting for a worker slot",
		}),

		Extractions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Total record extractions by tier",
		}, []string{"tier"}),
		PersistAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_attempts_total",
			Help:      "Total storage insert attempts by outcome",
		}, []string{"outcome"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		Recordings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Total call recordings archived by sink and outcome",
		}, []string{"sink", "outcome"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"route", "method", "status"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// RecordCallStart records a new session being accepted.
func (m *Metrics) RecordCallStart() {
	m.CallsTotal.Inc()
	m.CallsActive.Inc()
}

// RecordCallEnd records a session closing.
func (m *Metrics) RecordCallEnd(cause string, durationSeconds float64) {
	m.CallsActive.Dec()
	m.CallsClosed.WithLabelValues(cause).Inc()
	m.CallDuration.Observe(durationSeconds)
}

// RecordMediaReceived records one inbound media frame.
func (m *Metrics) RecordMediaReceived(bytes int) {
	m.MediaFramesReceived.Inc()
	m.MediaBytesReceived.Add(float64(bytes))
}

// RecordMediaDropped records an inbound frame that was discarded.
func (m *Metrics) RecordMediaDropped(reason string) {
	m.MediaFramesDropped.WithLabelValues(reason).Inc()
}

// RecordMediaSent records outbound audio bytes.
func (m *Metrics) RecordMediaSent(bytes int) {
	m.MediaBytesSent.Add(float64(bytes))
}

// RecordCycle records a completed processing cycle.
func (m *Metrics) RecordCycle(kind, outcome string, latencySeconds float64) {
	m.Cycles.WithLabelValues(kind, outcome).Inc()
	m.CycleLatency.WithLabelValues(kind).Observe(latencySeconds)
}

// RecordFallback records a degraded reply.
func (m *Metrics) RecordFallback(reason string) {
	m.Fallbacks.WithLabelValues(reason).Inc()
}

// RecordBackendCall records latency and, on failure, the error kind of a backend call.
func (m *Metrics) RecordBackendCall(backend, provider, errKind string, latencySeconds float64) {
	m.BackendLatency.WithLabelValues(backend, provider).Observe(latencySeconds)
	if errKind != "" && errKind != "none" {
		m.BackendErrors.WithLabelValues(backend, provider, errKind).Inc()
	}
}

// RecordTranscode records one transcode.
func (m *Metrics) RecordTranscode(transcoder string, err error, latencySeconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Transcodes.WithLabelValues(transcoder, outcome).Inc()
	m.TranscodeLatency.WithLabelValues(transcoder).Observe(latencySeconds)
}

// RecordExtraction records which extraction tier matched ("none" when nothing did).
func (m *Metrics) RecordExtraction(tier string) {
	m.Extractions.WithLabelValues(tier).Inc()
}

// RecordPersist records one storage insert attempt.
func (m *Metrics) RecordPersist(outcome string) {
	m.PersistAttempts.WithLabelValues(outcome).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordRecording records an archive attempt.
func (m *Metrics) RecordRecording(sink string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Recordings.WithLabelValues(sink, outcome).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(route, method, status string, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPLatency.WithLabelValues(route, method).Observe(latencySeconds)
}
