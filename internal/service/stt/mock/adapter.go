// Package mock provides a scripted STT adapter for testing and for running
// the service without cloud credentials. It simulates realistic behavior:
// progressive partial transcripts followed by exactly one final per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/safety"
	"ai-transcription-service/internal/service/stt"
)

// ProviderName identifies this adapter in results and configuration.
const ProviderName = "mock"

// SimulatedUtterance is a scripted utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string
	Final      string
	Confidence float64
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"I want", "I want to", "I want to cancel"},
		Final:      "I want to cancel my subscription",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Yes", "Yes please"},
		Final:      "Yes please go ahead",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"Can you", "Can you help", "Can you help me with"},
		Final:      "Can you help me with my account",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"Thank you"},
		Final:      "Thank you very much",
		Confidence: 0.98,
	},
}

// Adapter implements stt.Adapter with scripted responses.
type Adapter struct {
	mu      sync.Mutex
	counter int
	delay   time.Duration
}

// New creates a new mock adapter.
func New() *Adapter {
	return &Adapter{delay: 20 * time.Millisecond}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return ProviderName }

// IsHealthy always reports healthy.
func (a *Adapter) IsHealthy() bool { return true }

func (a *Adapter) next() SimulatedUtterance {
	a.mu.Lock()
	defer a.mu.Unlock()
	utt := DefaultUtterances[a.counter%len(DefaultUtterances)]
	a.counter++
	return utt
}

// Transcribe returns the next scripted utterance as a batch result.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (*models.Result, error) {
	if len(audio) == 0 {
		return nil, stt.ErrInvalidInput
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.delay):
	}

	utt := a.next()
	lang := opts.Language
	if lang == "" {
		lang = "en-US"
	}

	local := safety.ScanText(utt.Final)
	return &models.Result{
		Text:             utt.Final,
		Confidence:       utt.Confidence,
		Language:         lang,
		DurationSeconds:  float64(len(audio)) / 32000,
		Words:            nil,
		ProcessingTimeMs: a.delay.Milliseconds(),
		Provider:         ProviderName,
		Metadata: models.ResultMetadata{
			ContentSafety:   local,
			CriticalPhrases: local.DetectedPhrases,
		},
	}, nil
}

// TranscribeStream replays the scripted partials then the final.
func (a *Adapter) TranscribeStream(ctx context.Context, chunks <-chan []byte, opts stt.TranscribeOptions) (<-chan stt.Event, error) {
	session, err := a.StartRealtimeSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	go func() {
		for chunk := range chunks {
			if err := session.Send(ctx, chunk); err != nil {
				return
			}
		}
		session.Close()
	}()
	return session.Events(), nil
}

// StartRealtimeSession opens a scripted duplex session. Each received chunk
// advances the partial script; closing the session emits the final.
func (a *Adapter) StartRealtimeSession(_ context.Context, _ stt.TranscribeOptions) (stt.RealtimeSession, error) {
	return &session{
		utterance: a.next(),
		events:    make(chan stt.Event, 16),
	}, nil
}

type session struct {
	mu           sync.Mutex
	utterance    SimulatedUtterance
	partialIndex int
	events       chan stt.Event
	closeOnce    sync.Once
}

func (s *session) Send(_ context.Context, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partialIndex < len(s.utterance.Partials) {
		s.events <- stt.Event{Type: stt.EventPartial, Text: s.utterance.Partials[s.partialIndex]}
		s.partialIndex++
	}
	return nil
}

func (s *session) Events() <-chan stt.Event { return s.events }

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.events <- stt.Event{Type: stt.EventFinal, Text: s.utterance.Final, Confidence: s.utterance.Confidence}
		close(s.events)
	})
	return nil
}
