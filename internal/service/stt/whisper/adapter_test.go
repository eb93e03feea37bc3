package whisper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"ai-transcription-service/internal/service/stt"
)

func tempFileCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	return len(entries)
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	if !errors.Is(err, stt.ErrUnconfigured) {
		t.Fatalf("New without endpoint = %v, want ErrUnconfigured", err)
	}
}

func TestTranscribeRemovesTempFileOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart parse: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field = %q", got)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format field = %q", got)
		}
		w.Write([]byte(`{
			"text": "hello from the engine",
			"language": "en",
			"duration": 2.5,
			"words": [
				{"word": "hello", "start": 0.0, "end": 0.4},
				{"word": "from", "start": 0.4, "end": 0.7}
			]
		}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	a, err := New(Config{Endpoint: srv.URL, TempDir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := a.Transcribe(context.Background(), []byte("riff wave bytes"), stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello from the engine" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Provider != ProviderName {
		t.Errorf("Provider = %q, want %q", res.Provider, ProviderName)
	}
	if len(res.Words) != 2 || res.Words[0].Text != "hello" || res.Words[1].EndSec != 0.7 {
		t.Errorf("Words = %+v", res.Words)
	}
	if n := tempFileCount(t, dir); n != 0 {
		t.Errorf("%d temp files left after successful call, want 0", n)
	}
}

func TestTranscribeRemovesTempFileOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	a, err := New(Config{Endpoint: srv.URL, TempDir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = a.Transcribe(context.Background(), []byte("riff wave bytes"), stt.TranscribeOptions{})
	if !errors.Is(err, stt.ErrTransient) {
		t.Fatalf("Transcribe error = %v, want ErrTransient for a 5xx", err)
	}
	if n := tempFileCount(t, dir); n != 0 {
		t.Errorf("%d temp files left after failed call, want 0", n)
	}
	if a.IsHealthy() {
		t.Error("IsHealthy = true after a 5xx, want false")
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	a, err := New(Config{Endpoint: "http://localhost:9"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Transcribe(context.Background(), nil, stt.TranscribeOptions{}); !errors.Is(err, stt.ErrInvalidInput) {
		t.Fatalf("Transcribe(empty) = %v, want ErrInvalidInput", err)
	}
}

func TestStreamingAndRealtimeRejectedImmediately(t *testing.T) {
	a, err := New(Config{Endpoint: "http://localhost:9"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.TranscribeStream(context.Background(), nil, stt.TranscribeOptions{}); !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("TranscribeStream = %v, want ErrNotSupported", err)
	}
	if _, err := a.StartRealtimeSession(context.Background(), stt.TranscribeOptions{}); !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("StartRealtimeSession = %v, want ErrNotSupported", err)
	}
}

func TestTranscribeAttachesLocalContentSafetyScan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "I feel worthless today", "language": "en", "duration": 1.2}`))
	}))
	defer srv.Close()

	a, err := New(Config{Endpoint: srv.URL, TempDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := a.Transcribe(context.Background(), []byte("audio"), stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	cs := res.Metadata.ContentSafety
	if cs == nil || !cs.HasCriticalContent {
		t.Fatalf("ContentSafety = %+v, want local scan hit", cs)
	}
	if len(res.Metadata.CriticalPhrases) != 1 || res.Metadata.CriticalPhrases[0] != "worthless" {
		t.Errorf("CriticalPhrases = %v, want [worthless]", res.Metadata.CriticalPhrases)
	}
}
