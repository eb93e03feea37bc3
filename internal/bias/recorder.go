// Package bias emits per-demographic accuracy records for fairness auditing.
// It is a pure side-effecting observer: it never influences control flow or
// the returned result.
package bias

import (
	"context"
	"time"

	"ai-transcription-service/internal/events"
	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/observability/logging"
	"ai-transcription-service/internal/observability/metrics"
)

// Record is the audit record emitted to the observability sink.
type Record struct {
	Provider         string                      `json:"provider"`
	Confidence       float64                     `json:"confidence"`
	ProcessingTimeMs int64                       `json:"processingTimeMs"`
	Demographics     *models.SpeakerDemographics `json:"demographics"`
	WER              float64                     `json:"wer"`
	Timestamp        int64                       `json:"timestamp"`
}

// Recorder computes word-error-rate against the reference text and publishes
// the record.
type Recorder struct {
	publisher *events.Publisher
	metrics   *metrics.Metrics
}

// NewRecorder creates a recorder emitting through the given publisher.
func NewRecorder(publisher *events.Publisher) *Recorder {
	return &Recorder{
		publisher: publisher,
		metrics:   metrics.DefaultMetrics,
	}
}

// Record emits one audit record when a reference transcript is available.
// Without demographics.expectedText there is nothing to measure.
func (r *Recorder) Record(ctx context.Context, res *models.Result, demo *models.SpeakerDemographics) {
	if demo == nil || demo.ExpectedText == "" {
		return
	}

	wer := WER(res.Text, demo.ExpectedText)
	rec := Record{
		Provider:         res.Provider,
		Confidence:       res.Confidence,
		ProcessingTimeMs: res.ProcessingTimeMs,
		Demographics:     demo,
		WER:              wer,
		Timestamp:        time.Now().UnixMilli(),
	}

	r.metrics.RecordBiasRecord(res.Provider, wer)
	if err := r.publisher.PublishBiasRecord(ctx, res.Provider, rec); err != nil {
		logger := logging.WithProvider(res.Provider)
		logger.Warn().Err(err).Msg("Failed to publish bias record")
	}
}
