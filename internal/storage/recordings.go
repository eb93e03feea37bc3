// Package storage handles uploaded audio recordings: size-bounded,
// content-type allow-listed intake, and resolution of recording references
// back into bytes for transcription. The production object store is an
// external collaborator; this component implements its upload/signed-URL
// contract over local disk.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-transcription-service/internal/observability/logging"
)

var (
	// ErrTooLarge is returned when an upload exceeds the size bound.
	ErrTooLarge = errors.New("audio payload exceeds size limit")

	// ErrUnsupportedType is returned for content types outside the allow list.
	ErrUnsupportedType = errors.New("unsupported content type")

	// ErrRecordingNotFound is returned for unknown recording ids.
	ErrRecordingNotFound = errors.New("recording not found")
)

// defaultAllowedTypes is the content-type allow list.
var defaultAllowedTypes = map[string]bool{
	"audio/wav":  true,
	"audio/wave": true,
	"audio/mpeg": true,
	"audio/mp4":  true,
	"audio/webm": true,
	"audio/ogg":  true,
	"audio/flac": true,
}

// Recording describes one stored audio upload.
type Recording struct {
	ID          string    `json:"recordingId"`
	StoragePath string    `json:"storagePath"`
	SignedURL   string    `json:"signedUrl"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Config holds recording store configuration.
type Config struct {
	Dir           string
	MaxBytes      int64
	SigningSecret string
	BaseURL       string
}

// Store persists uploads and resolves recording references.
type Store struct {
	cfg Config

	mu         sync.Mutex
	recordings map[string]*Recording
}

// NewStore creates a recording store rooted at cfg.Dir.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "transcription-recordings")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 25 * 1024 * 1024
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording dir: %w", err)
	}
	return &Store{
		cfg:        cfg,
		recordings: make(map[string]*Recording),
	}, nil
}

// Save validates and persists one upload, returning its recording record.
func (s *Store) Save(_ context.Context, contentType string, body io.Reader) (*Recording, error) {
	if !defaultAllowedTypes[contentType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	id := uuid.NewString()
	path := filepath.Join(s.cfg.Dir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}
	defer f.Close()

	// One byte past the limit distinguishes "at limit" from "over limit".
	n, err := io.Copy(f, io.LimitReader(body, s.cfg.MaxBytes+1))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write recording: %w", err)
	}
	if n > s.cfg.MaxBytes {
		os.Remove(path)
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, s.cfg.MaxBytes)
	}

	rec := &Recording{
		ID:          id,
		StoragePath: path,
		SignedURL:   s.signURL(id),
		ContentType: contentType,
		SizeBytes:   n,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.recordings[id] = rec
	s.mu.Unlock()

	logger := logging.WithComponent("storage")
	logger.Info().
		Str("recordingId", id).
		Int64("sizeBytes", n).
		Str("contentType", contentType).
		Msg("Recording stored")
	return rec, nil
}

// Get returns the recording record.
func (s *Store) Get(id string) (*Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[id]
	if !ok {
		return nil, ErrRecordingNotFound
	}
	return rec, nil
}

// ReadBytes resolves a recording id into its audio bytes.
func (s *Store) ReadBytes(id string) ([]byte, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(rec.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("read recording %s: %w", id, err)
	}
	return data, nil
}

// signURL builds a download URL carrying an HMAC token over the recording id.
func (s *Store) signURL(id string) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.SigningSecret))
	mac.Write([]byte(id))
	token := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s/v1/recordings/%s?token=%s", s.cfg.BaseURL, id, token)
}

// VerifyToken checks a signed-URL token for the recording id.
func (s *Store) VerifyToken(id, token string) bool {
	mac := hmac.New(sha256.New, []byte(s.cfg.SigningSecret))
	mac.Write([]byte(id))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(token))
}
