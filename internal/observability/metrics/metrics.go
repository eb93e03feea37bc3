// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Orchestration metrics
	TranscriptionsTotal   *prometheus.CounterVec
	TranscriptionFailures *prometheus.CounterVec
	TranscriptionLatency  *prometheus.HistogramVec
	FailoversTotal        *prometheus.CounterVec
	RealtimeTimeouts      *prometheus.CounterVec

	// Crisis scan metrics
	CrisisScansTotal    prometheus.Counter
	CrisisHitsTotal     *prometheus.CounterVec
	CrisisFilterErrors  prometheus.Counter
	CrisisFilterLatency prometheus.Histogram

	// Job queue metrics
	JobsEnqueued  prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsCancelled prometheus.Counter
	JobsRetried   prometheus.Counter
	JobsPurged    prometheus.Counter
	JobsActive    prometheus.Gauge
	JobDuration   prometheus.Histogram

	// Streaming session metrics
	SessionsActive      prometheus.Gauge
	SessionsTotal       prometheus.Counter
	SessionBufferFull   prometheus.Counter
	SessionAudioBytes   prometheus.Counter
	SessionEventsTotal  *prometheus.CounterVec

	// Bias audit metrics
	BiasRecordsTotal prometheus.Counter
	WordErrorRate    *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		TranscriptionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Total number of successful transcriptions",
		}, []string{"provider", "mode"}),
		TranscriptionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_failures_total",
			Help:      "Total number of failed provider transcription attempts",
		}, []string{"provider", "error_type"}),
		TranscriptionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Provider transcription latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		FailoversTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failovers_total",
			Help:      "Total number of failovers from one provider to the next",
		}, []string{"from_provider"}),
		RealtimeTimeouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_timeouts_total",
			Help:      "Total number of realtime latency budget expirations",
		}, []string{"provider"}),

		CrisisScansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crisis_scans_total",
			Help:      "Total number of central crisis scans performed",
		}),
		CrisisHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crisis_hits_total",
			Help:      "Total number of transcripts flagged with critical content",
		}, []string{"severity"}),
		CrisisFilterErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crisis_filter_errors_total",
			Help:      "Total number of crisis filter failures (result returned without assessment)",
		}),
		CrisisFilterLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crisis_filter_latency_seconds",
			Help:      "Crisis filter call latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),

		JobsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Total number of transcription jobs enqueued",
		}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs completed successfully",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of jobs that exhausted retries",
		}),
		JobsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_cancelled_total",
			Help:      "Total number of jobs cancelled while queued",
		}),
		JobsRetried: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_retried_total",
			Help:      "Total number of job retry reschedules",
		}),
		JobsPurged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_purged_total",
			Help:      "Total number of jobs purged past the retention window",
		}),
		JobsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of jobs currently being processed",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of job processing in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active streaming sessions",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of streaming sessions started",
		}),
		SessionBufferFull: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_buffer_full_total",
			Help:      "Total number of session writes rejected by backpressure",
		}),
		SessionAudioBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_audio_bytes_total",
			Help:      "Total audio bytes forwarded through streaming sessions",
		}),
		SessionEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Total transcript events surfaced by streaming sessions",
		}, []string{"type"}),

		BiasRecordsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bias_records_total",
			Help:      "Total number of bias audit records emitted",
		}),
		WordErrorRate: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "word_error_rate",
			Help:      "Word error rate against reference transcripts",
			Buckets:   []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1},
		}, []string{"provider"}),

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
	}
}

// RecordTranscription records a successful transcription.
func (m *Metrics) RecordTranscription(provider, mode string, latencySeconds float64) {
	m.TranscriptionsTotal.WithLabelValues(provider, mode).Inc()
	m.TranscriptionLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordProviderFailure records a failed provider attempt.
func (m *Metrics) RecordProviderFailure(provider, errorType string) {
	m.TranscriptionFailures.WithLabelValues(provider, errorType).Inc()
}

// RecordFailover records a failover away from a provider.
func (m *Metrics) RecordFailover(fromProvider string) {
	m.FailoversTotal.WithLabelValues(fromProvider).Inc()
}

// RecordRealtimeTimeout records a latency budget expiration.
func (m *Metrics) RecordRealtimeTimeout(provider string) {
	m.RealtimeTimeouts.WithLabelValues(provider).Inc()
}

// RecordCrisisScan records a central crisis scan and its outcome.
func (m *Metrics) RecordCrisisScan(hasCriticalContent bool, severity string, latencySeconds float64) {
	m.CrisisScansTotal.Inc()
	m.CrisisFilterLatency.Observe(latencySeconds)
	if hasCriticalContent {
		m.CrisisHitsTotal.WithLabelValues(severity).Inc()
	}
}

// RecordCrisisFilterError records a filter failure.
func (m *Metrics) RecordCrisisFilterError() {
	m.CrisisFilterErrors.Inc()
}

// RecordBiasRecord records a bias audit emission.
func (m *Metrics) RecordBiasRecord(provider string, wer float64) {
	m.BiasRecordsTotal.Inc()
	m.WordErrorRate.WithLabelValues(provider).Observe(wer)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
