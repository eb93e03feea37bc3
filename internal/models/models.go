// Package models defines the data structures shared across the transcription service.
package models

import "time"

// SpeakerDemographics carries optional self-reported speaker attributes used
// for accuracy auditing. ExpectedText, when present, is the reference
// transcript the speaker read; it enables word-error-rate computation.
type SpeakerDemographics struct {
	AgeRange     string `json:"ageRange,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Accent       string `json:"accent,omitempty"`
	ExpectedText string `json:"expectedText,omitempty"`
}

// TranscriptionOptions controls how a request is processed.
type TranscriptionOptions struct {
	Language           string               `json:"language,omitempty"`
	SpeakerDiarization bool                 `json:"speakerDiarization,omitempty"`
	PreferredProvider  string               `json:"preferredProvider,omitempty"`
	Realtime           bool                 `json:"realtime,omitempty"`
	MaxLatencyMs       int64                `json:"maxLatencyMs,omitempty"`
	Demographics       *SpeakerDemographics `json:"speakerDemographics,omitempty"`
}

// TranscriptionRequest is the unit of work handed to the orchestrator, either
// directly (sync) or wrapped in a Job (async). Audio holds the raw bytes;
// AudioURL references stored bytes when the payload was uploaded separately.
type TranscriptionRequest struct {
	Audio    []byte               `json:"-"`
	AudioURL string               `json:"audioUrl,omitempty"`
	Options  TranscriptionOptions `json:"options"`
}

// Word is a single time-aligned word in a transcript.
type Word struct {
	Text       string  `json:"text"`
	StartSec   float64 `json:"startSec"`
	EndSec     float64 `json:"endSec"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Severity levels reported by crisis scanning.
const (
	SeverityNone     = "none"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// CrisisAssessment is the structured risk assessment produced by scanning a
// transcript for self-harm/crisis language. It is never fabricated: when the
// scanner is unavailable the field stays absent rather than defaulting to "no
// risk". Severity is reported exactly as the scanner produced it, never
// normalized.
type CrisisAssessment struct {
	HasCriticalContent      bool     `json:"hasCriticalContent"`
	DetectedPhrases         []string `json:"detectedPhrases"`
	Severity                string   `json:"severity"`
	RequiresImmediateAction bool     `json:"requiresImmediateAction"`
}

// ResultMetadata carries provider-specific enrichments plus the mandatory
// central crisis scan outcome.
type ResultMetadata struct {
	Sentiment       string            `json:"sentiment,omitempty"`
	Entities        []string          `json:"entities,omitempty"`
	CrisisDetection *CrisisAssessment `json:"crisisDetection,omitempty"`
	ContentSafety   *CrisisAssessment `json:"contentSafety,omitempty"`
	CriticalPhrases []string          `json:"criticalPhrases,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// Result is the normalized transcription result returned to callers and
// recorded on jobs. This is the stable wire schema.
type Result struct {
	Text             string         `json:"text"`
	Confidence       float64        `json:"confidence"`
	Language         string         `json:"language"`
	DurationSeconds  float64        `json:"durationSeconds"`
	Words            []Word         `json:"words"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
	Provider         string         `json:"provider"`
	Metadata         ResultMetadata `json:"metadata"`
}

// JobState is the lifecycle state of an asynchronous transcription job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is a durable, asynchronously executed transcription request.
// Progress is 0-100 and never decreases while the job is active.
type Job struct {
	ID         string               `json:"id"`
	State      JobState             `json:"state"`
	Progress   int                  `json:"progress"`
	Attempts   int                  `json:"attempts"`
	Request    TranscriptionRequest `json:"request"`
	Result     *Result              `json:"result,omitempty"`
	LastError  string               `json:"lastError,omitempty"`
	EnqueuedAt time.Time            `json:"enqueuedAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
	NextRunAt  time.Time            `json:"nextRunAt"`
}

// ProviderHealth is an eventually consistent snapshot of one provider's
// availability. Reading it never blocks a transcription call.
type ProviderHealth struct {
	Name             string `json:"name"`
	Configured       bool   `json:"configured"`
	LastKnownHealthy bool   `json:"lastKnownHealthy"`
}
