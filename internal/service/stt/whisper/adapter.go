// Package whisper provides an adapter for a local Whisper-compatible server.
//
// This is the file-handle-only variant: the engine's transcription endpoint
// accepts a multipart file upload sourced from an open file handle, not an
// in-memory buffer. The adapter writes the audio to a uniquely named
// temporary file immediately before the call and guarantees its deletion on
// every exit path. Streaming and realtime sessions are rejected immediately.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/safety"
	"ai-transcription-service/internal/service/stt"
)

// ProviderName identifies this adapter in results and configuration.
const ProviderName = "whisper"

// Config holds the adapter configuration. Endpoint is required.
type Config struct {
	Endpoint string // e.g. http://localhost:9000/v1/audio/transcriptions
	Model    string
	TempDir  string // empty means the OS default temp directory
	Timeout  time.Duration
}

// Adapter implements stt.Adapter over a Whisper-compatible HTTP engine.
type Adapter struct {
	cfg     Config
	client  *http.Client
	healthy atomic.Bool
}

// New creates a new adapter. Returns stt.ErrUnconfigured when no endpoint is set.
func New(cfg Config) (*Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%s: %w", ProviderName, stt.ErrUnconfigured)
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	a.healthy.Store(true)
	return a, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string { return ProviderName }

// IsHealthy returns the cached health flag from the most recent call.
func (a *Adapter) IsHealthy() bool { return a.healthy.Load() }

type engineResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

// Transcribe writes the buffer to a scoped temporary file and passes its
// handle to the engine. The file is removed on success, error and panic alike.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (*models.Result, error) {
	if len(audio) == 0 {
		return nil, stt.ErrInvalidInput
	}
	start := time.Now()

	f, err := os.CreateTemp(a.cfg.TempDir, "whisper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("%s temp file: %w", ProviderName, err)
	}
	defer func() {
		f.Close()
		os.Remove(f.Name())
	}()

	if _, err := f.Write(audio); err != nil {
		return nil, fmt.Errorf("%s temp write: %w", ProviderName, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%s temp seek: %w", ProviderName, err)
	}

	engine, err := a.call(ctx, f, opts)
	if err != nil {
		return nil, err
	}

	words := make([]models.Word, 0, len(engine.Words))
	for _, w := range engine.Words {
		words = append(words, models.Word{
			Text:       w.Word,
			StartSec:   w.Start,
			EndSec:     w.End,
			Confidence: 1, // engine reports no per-word confidence
		})
	}

	lang := engine.Language
	if lang == "" {
		lang = opts.Language
	}

	local := safety.ScanText(engine.Text)
	return &models.Result{
		Text:             engine.Text,
		Confidence:       1,
		Language:         lang,
		DurationSeconds:  engine.Duration,
		Words:            words,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Provider:         ProviderName,
		Metadata: models.ResultMetadata{
			ContentSafety:   local,
			CriticalPhrases: local.DetectedPhrases,
		},
	}, nil
}

// TranscribeStream is rejected: the engine only accepts file handles.
func (a *Adapter) TranscribeStream(context.Context, <-chan []byte, stt.TranscribeOptions) (<-chan stt.Event, error) {
	return nil, fmt.Errorf("%s streaming: %w", ProviderName, stt.ErrNotSupported)
}

// StartRealtimeSession is rejected: the engine only accepts file handles.
func (a *Adapter) StartRealtimeSession(context.Context, stt.TranscribeOptions) (stt.RealtimeSession, error) {
	return nil, fmt.Errorf("%s realtime: %w", ProviderName, stt.ErrNotSupported)
}

// call sends the open file handle to the engine as a multipart upload.
func (a *Adapter) call(ctx context.Context, f *os.File, opts stt.TranscribeOptions) (*engineResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", f.Name())
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		mw.WriteField("model", a.cfg.Model)
		if opts.Language != "" {
			mw.WriteField("language", opts.Language)
		}
		mw.WriteField("response_format", "verbose_json")
		mw.WriteField("timestamp_granularities[]", "word")
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		a.healthy.Store(false)
		return nil, fmt.Errorf("%s: %w: %v", ProviderName, stt.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			a.healthy.Store(false)
			return nil, fmt.Errorf("%s: %w: status %d: %s", ProviderName, stt.ErrTransient, resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("%s: status %d: %s", ProviderName, resp.StatusCode, string(body))
	}

	a.healthy.Store(true)
	var engine engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&engine); err != nil {
		return nil, fmt.Errorf("%s response decode: %w", ProviderName, err)
	}
	return &engine, nil
}
