// Package google provides a Google Cloud Speech-to-Text adapter.
//
// This is the native duplex variant: it supports true bidirectional streaming
// over a persistent session. Batch mode is implemented by sending the full
// buffer and awaiting the terminal event.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/safety"
	"ai-transcription-service/internal/service/stt"
)

// ProviderName identifies this adapter in results and configuration.
const ProviderName = "google"

const sendChunkBytes = 32 * 1024

// Config holds the adapter configuration.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS; Enabled gates the
// adapter so a host without credentials simply omits it from the order.
type Config struct {
	Enabled      bool
	LanguageCode string
	SampleRateHz int
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	client  *speech.Client
	cfg     Config
	healthy atomic.Bool
}

// New creates a new Google STT adapter.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("%s: %w", ProviderName, stt.ErrUnconfigured)
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 16000
	}
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s client: %w", ProviderName, err)
	}
	a := &Adapter{client: c, cfg: cfg}
	a.healthy.Store(true)
	return a, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string { return ProviderName }

// IsHealthy returns the cached health flag from the most recent call.
func (a *Adapter) IsHealthy() bool { return a.healthy.Load() }

// Close releases the underlying client.
func (a *Adapter) Close() error { return a.client.Close() }

func (a *Adapter) streamingConfig(opts stt.TranscribeOptions, interim bool) *speechpb.StreamingRecognizeRequest {
	lang := opts.Language
	if lang == "" {
		lang = a.cfg.LanguageCode
	}
	sampleRate := opts.SampleRateHz
	if sampleRate <= 0 {
		sampleRate = a.cfg.SampleRateHz
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:              speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:       int32(sampleRate),
		LanguageCode:          lang,
		EnableWordTimeOffsets: true,
	}
	if opts.Diarization {
		cfg.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
		}
	}

	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         cfg,
				InterimResults: interim,
			},
		},
	}
}

// Transcribe sends the full buffer over a streaming session and awaits the
// terminal event.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (*models.Result, error) {
	if len(audio) == 0 {
		return nil, stt.ErrInvalidInput
	}
	start := time.Now()

	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, a.classify(err)
	}

	if err := stream.Send(a.streamingConfig(opts, false)); err != nil {
		return nil, a.classify(err)
	}

	for off := 0; off < len(audio); off += sendChunkBytes {
		end := off + sendChunkBytes
		if end > len(audio) {
			end = len(audio)
		}
		req := &speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: audio[off:end],
			},
		}
		if err := stream.Send(req); err != nil {
			return nil, a.classify(err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, a.classify(err)
	}

	var (
		texts      []string
		words      []models.Word
		confSum    float64
		confCount  int
	)
	for {
		resp, err := stream.Recv()
		if err != nil {
			if isEOF(err) {
				break
			}
			return nil, a.classify(err)
		}
		for _, r := range resp.Results {
			if !r.IsFinal || len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			texts = append(texts, alt.Transcript)
			confSum += float64(alt.Confidence)
			confCount++
			for _, w := range alt.Words {
				word := models.Word{
					Text:       w.Word,
					StartSec:   w.StartTime.AsDuration().Seconds(),
					EndSec:     w.EndTime.AsDuration().Seconds(),
					Confidence: float64(alt.Confidence),
				}
				if w.SpeakerTag != 0 {
					word.Speaker = strconv.Itoa(int(w.SpeakerTag))
				}
				words = append(words, word)
			}
		}
	}

	a.healthy.Store(true)

	text := strings.Join(texts, " ")
	confidence := 0.0
	if confCount > 0 {
		confidence = confSum / float64(confCount)
	}
	lang := opts.Language
	if lang == "" {
		lang = a.cfg.LanguageCode
	}
	sampleRate := opts.SampleRateHz
	if sampleRate <= 0 {
		sampleRate = a.cfg.SampleRateHz
	}

	local := safety.ScanText(text)
	return &models.Result{
		Text:             text,
		Confidence:       confidence,
		Language:         lang,
		DurationSeconds:  float64(len(audio)) / float64(2*sampleRate),
		Words:            words,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Provider:         ProviderName,
		Metadata: models.ResultMetadata{
			ContentSafety:   local,
			CriticalPhrases: local.DetectedPhrases,
		},
	}, nil
}

// TranscribeStream forwards chunks over a streaming session and surfaces
// partial and final transcript events.
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

// StartRealtimeSession opens a persistent duplex session.
func (a *Adapter) StartRealtimeSession(ctx context.Context, opts stt.TranscribeOptions) (stt.RealtimeSession, error) {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, a.classify(err)
	}
	if err := stream.Send(a.streamingConfig(opts, true)); err != nil {
		return nil, a.classify(err)
	}

	s := &realtimeSession{
		stream:  stream,
		events:  make(chan stt.Event, 16),
		adapter: a,
	}
	go s.listen()
	return s, nil
}

type realtimeSession struct {
	stream    speechpb.Speech_StreamingRecognizeClient
	events    chan stt.Event
	adapter   *Adapter
	closeOnce sync.Once
}

func (s *realtimeSession) Send(_ context.Context, chunk []byte) error {
	err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	})
	if err != nil {
		return s.adapter.classify(err)
	}
	return nil
}

func (s *realtimeSession) Events() <-chan stt.Event { return s.events }

func (s *realtimeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.stream.CloseSend()
	})
	return err
}

// listen receives transcript responses and forwards them as events until the
// stream ends. Runs in its own goroutine for the session lifetime.
func (s *realtimeSession) listen() {
	defer close(s.events)
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if !isEOF(err) {
				s.adapter.healthy.Store(false)
				s.events <- stt.Event{Type: stt.EventError, Err: s.adapter.classify(err)}
			}
			return
		}
		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			if r.IsFinal {
				s.events <- stt.Event{Type: stt.EventFinal, Text: alt.Transcript, Confidence: float64(alt.Confidence)}
			} else {
				s.events <- stt.Event{Type: stt.EventPartial, Text: alt.Transcript}
			}
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// classify maps gRPC status codes onto the shared error taxonomy so the
// orchestrator and queue can distinguish transient failures.
func (a *Adapter) classify(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		a.healthy.Store(false)
		return fmt.Errorf("%s: %w: %v", ProviderName, stt.ErrTransient, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		a.healthy.Store(false)
		return fmt.Errorf("%s: %w: %v", ProviderName, stt.ErrTransient, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w: %v", ProviderName, stt.ErrInvalidInput, err)
	default:
		return fmt.Errorf("%s: %v", ProviderName, err)
	}
}
