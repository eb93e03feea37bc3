// Package assemblyai provides a remote-queue-and-poll STT adapter.
//
// The provider exposes a REST intake: audio bytes are uploaded to an intake
// endpoint, a remote transcription job is created against the uploaded URL,
// and the job status is polled at a bounded interval until it reaches a
// terminal remote state.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/safety"
	"ai-transcription-service/internal/service/stt"
)

// ProviderName identifies this adapter in results and configuration.
const ProviderName = "assemblyai"

// Config holds the adapter configuration. APIKey is required; an adapter
// without a key is unconfigured and must not be placed in the failover order.
type Config struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Adapter implements stt.Adapter over the remote queue-and-poll protocol.
type Adapter struct {
	cfg     Config
	client  *http.Client
	healthy atomic.Bool
}

// New creates a new adapter. Returns stt.ErrUnconfigured when no API key is set.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", ProviderName, stt.ErrUnconfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.assemblyai.com/v2"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Minute
	}
	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	a.healthy.Store(true)
	return a, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string { return ProviderName }

// IsHealthy returns the cached health flag from the most recent call.
func (a *Adapter) IsHealthy() bool { return a.healthy.Load() }

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type createRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageCode      string `json:"language_code,omitempty"`
	SpeakerLabels     bool   `json:"speaker_labels,omitempty"`
	ContentSafety     bool   `json:"content_safety"`
	SentimentAnalysis bool   `json:"sentiment_analysis"`
	EntityDetection   bool   `json:"entity_detection"`
}

type remoteWord struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"` // milliseconds
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

type remoteTranscript struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"` // queued, processing, completed, error
	Text          string       `json:"text"`
	Confidence    float64      `json:"confidence"`
	AudioDuration float64      `json:"audio_duration"`
	LanguageCode  string       `json:"language_code"`
	Words         []remoteWord `json:"words"`
	Error         string       `json:"error"`

	SentimentAnalysisResults []struct {
		Sentiment string `json:"sentiment"`
	} `json:"sentiment_analysis_results"`
	Entities []struct {
		Text string `json:"text"`
	} `json:"entities"`
	ContentSafetyLabels struct {
		Results []struct {
			Labels []struct {
				Label string `json:"label"`
			} `json:"labels"`
		} `json:"results"`
	} `json:"content_safety_labels"`
}

// Transcribe uploads the audio, creates a remote job and polls it to a
// terminal state, then maps the provider fields into the common result shape.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (*models.Result, error) {
	if len(audio) == 0 {
		return nil, stt.ErrInvalidInput
	}
	start := time.Now()

	audioURL, err := a.upload(ctx, audio)
	if err != nil {
		return nil, err
	}

	id, err := a.createRemoteJob(ctx, audioURL, opts)
	if err != nil {
		return nil, err
	}

	remote, err := a.poll(ctx, id)
	if err != nil {
		return nil, err
	}

	return a.mapResult(remote, time.Since(start)), nil
}

// TranscribeStream is not supported by the queue-and-poll protocol.
func (a *Adapter) TranscribeStream(context.Context, <-chan []byte, stt.TranscribeOptions) (<-chan stt.Event, error) {
	return nil, fmt.Errorf("%s streaming: %w", ProviderName, stt.ErrNotSupported)
}

// StartRealtimeSession is not supported by the queue-and-poll protocol.
func (a *Adapter) StartRealtimeSession(context.Context, stt.TranscribeOptions) (stt.RealtimeSession, error) {
	return nil, fmt.Errorf("%s realtime: %w", ProviderName, stt.ErrNotSupported)
}

func (a *Adapter) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var resp uploadResponse
	if err := a.do(req, &resp); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return resp.UploadURL, nil
}

func (a *Adapter) createRemoteJob(ctx context.Context, audioURL string, opts stt.TranscribeOptions) (string, error) {
	body, err := json.Marshal(createRequest{
		AudioURL:          audioURL,
		LanguageCode:      opts.Language,
		SpeakerLabels:     opts.Diarization,
		ContentSafety:     true,
		SentimentAnalysis: true,
		EntityDetection:   true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var resp remoteTranscript
	if err := a.do(req, &resp); err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}
	return resp.ID, nil
}

// poll fetches the remote job status at the configured interval until it
// reaches completed or error, or the poll timeout expires.
func (a *Adapter) poll(ctx context.Context, id string) (*remoteTranscript, error) {
	deadline := time.Now().Add(a.cfg.PollTimeout)
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/transcript/"+id, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", a.cfg.APIKey)

		var remote remoteTranscript
		if err := a.do(req, &remote); err != nil {
			return nil, fmt.Errorf("poll transcript %s: %w", id, err)
		}

		switch remote.Status {
		case "completed":
			return &remote, nil
		case "error":
			return nil, fmt.Errorf("%s remote job %s failed: %s: %w", ProviderName, id, remote.Error, stt.ErrTransient)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s remote job %s did not complete within %s: %w",
				ProviderName, id, a.cfg.PollTimeout, stt.ErrTransient)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Adapter) do(req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		a.healthy.Store(false)
		return fmt.Errorf("%w: %v", stt.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		a.healthy.Store(false)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", stt.ErrTransient, resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	a.healthy.Store(true)
	return json.NewDecoder(resp.Body).Decode(out)
}

// mapResult maps the remote transcript into the common result shape and
// attaches the adapter-local crisis scan as provider metadata.
func (a *Adapter) mapResult(remote *remoteTranscript, elapsed time.Duration) *models.Result {
	words := make([]models.Word, 0, len(remote.Words))
	for _, w := range remote.Words {
		words = append(words, models.Word{
			Text:       w.Text,
			StartSec:   float64(w.Start) / 1000,
			EndSec:     float64(w.End) / 1000,
			Confidence: w.Confidence,
			Speaker:    w.Speaker,
		})
	}

	meta := models.ResultMetadata{}
	if len(remote.SentimentAnalysisResults) > 0 {
		meta.Sentiment = remote.SentimentAnalysisResults[0].Sentiment
	}
	for _, e := range remote.Entities {
		meta.Entities = append(meta.Entities, e.Text)
	}
	for _, r := range remote.ContentSafetyLabels.Results {
		for _, l := range r.Labels {
			meta.Extra = appendExtra(meta.Extra, "contentSafetyLabel", l.Label)
		}
	}

	// Adapter-local scan, layered under the orchestrator's central scan.
	local := safety.ScanText(remote.Text)
	meta.ContentSafety = local
	meta.CriticalPhrases = local.DetectedPhrases

	lang := remote.LanguageCode
	if lang == "" {
		lang = "en"
	}

	return &models.Result{
		Text:             remote.Text,
		Confidence:       remote.Confidence,
		Language:         lang,
		DurationSeconds:  remote.AudioDuration,
		Words:            words,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Provider:         ProviderName,
		Metadata:         meta,
	}
}

func appendExtra(extra map[string]string, key, value string) map[string]string {
	if extra == nil {
		extra = make(map[string]string)
	}
	if cur, ok := extra[key]; ok && cur != "" {
		extra[key] = cur + "," + value
	} else {
		extra[key] = value
	}
	return extra
}
