// Package stt defines the capability contract for speech-to-text provider adapters.
package stt

import (
	"context"

	"ai-transcription-service/internal/models"
)

// TranscribeOptions are the per-call options forwarded to a provider.
type TranscribeOptions struct {
	Language     string
	Diarization  bool
	SampleRateHz int
}

// EventType classifies streaming transcript events.
type EventType string

const (
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
	EventError   EventType = "error"
)

// Event is a single transcript event surfaced by a streaming or realtime call.
type Event struct {
	Type       EventType
	Text       string
	Confidence float64
	Err        error
}

// RealtimeSession is a live duplex transcription session with one provider.
// Send forwards an audio chunk; Events delivers partial/final/error events
// until the session ends. Close is idempotent.
type RealtimeSession interface {
	Send(ctx context.Context, chunk []byte) error
	Events() <-chan Event
	Close() error
}

// Adapter is the common contract every provider variant implements.
//
// Transcribe is mandatory. TranscribeStream and StartRealtimeSession are
// optional capabilities: variants that do not support them must fail
// immediately with ErrNotSupported, never hang. IsHealthy returns a cached
// value and never blocks.
type Adapter interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (*models.Result, error)
	TranscribeStream(ctx context.Context, chunks <-chan []byte, opts TranscribeOptions) (<-chan Event, error)
	StartRealtimeSession(ctx context.Context, opts TranscribeOptions) (RealtimeSession, error)
	IsHealthy() bool
}
