package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-transcription-service/internal/models"
)

// Filter is the consumed contract of the crisis detection service. The
// orchestrator calls Detect on every transcript from every successful
// provider call, with no opt-out.
type Filter interface {
	Detect(ctx context.Context, text string) (*models.CrisisAssessment, error)
}

// PhraseFilter implements Filter with the local shared phrase list. It is the
// default when no external filter endpoint is configured, so the mandatory
// central scan still runs.
type PhraseFilter struct{}

// Detect scans text against the shared phrase list. It never fails.
func (PhraseFilter) Detect(_ context.Context, text string) (*models.CrisisAssessment, error) {
	return ScanText(text), nil
}

// HTTPFilterConfig holds the external filter endpoint configuration.
type HTTPFilterConfig struct {
	URL     string
	Timeout time.Duration
}

// HTTPFilter calls the external crisis detection model over HTTP.
type HTTPFilter struct {
	url    string
	client *http.Client
}

// NewHTTPFilter creates a filter client for the given endpoint.
func NewHTTPFilter(cfg HTTPFilterConfig) *HTTPFilter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPFilter{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	Text          string `json:"text"`
	PhraseVersion string `json:"phraseListVersion"`
}

// Detect posts the transcript text and decodes the structured assessment.
// Any transport or decode failure is returned to the caller, which must log
// and proceed without an assessment rather than fabricate one.
func (f *HTTPFilter) Detect(ctx context.Context, text string) (*models.CrisisAssessment, error) {
	payload, err := json.Marshal(detectRequest{Text: text, PhraseVersion: PhraseListVersion})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crisis filter unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("crisis filter returned %d: %s", resp.StatusCode, string(body))
	}

	var assessment models.CrisisAssessment
	if err := json.NewDecoder(resp.Body).Decode(&assessment); err != nil {
		return nil, fmt.Errorf("crisis filter response decode: %w", err)
	}
	if assessment.DetectedPhrases == nil {
		assessment.DetectedPhrases = []string{}
	}
	if assessment.Severity == "" {
		assessment.Severity = models.SeverityNone
	}
	return &assessment, nil
}
