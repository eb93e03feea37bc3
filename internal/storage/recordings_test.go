package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := NewStore(Config{
		Dir:           t.TempDir(),
		MaxBytes:      maxBytes,
		SigningSecret: "test-secret",
		BaseURL:       "http://localhost:8080",
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSaveAndReadBack(t *testing.T) {
	s := newTestStore(t, 1024)

	rec, err := s.Save(context.Background(), "audio/wav", strings.NewReader("riff data"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.ID == "" || rec.SizeBytes != 9 {
		t.Errorf("record = %+v", rec)
	}

	data, err := s.ReadBytes(rec.ID)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(data, []byte("riff data")) {
		t.Errorf("ReadBytes = %q", data)
	}
}

func TestSaveRejectsUnsupportedContentType(t *testing.T) {
	s := newTestStore(t, 1024)

	_, err := s.Save(context.Background(), "application/pdf", strings.NewReader("not audio"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Save error = %v, want ErrUnsupportedType", err)
	}
}

func TestSaveEnforcesSizeBound(t *testing.T) {
	s := newTestStore(t, 10)

	// Exactly at the limit is allowed.
	if _, err := s.Save(context.Background(), "audio/wav", strings.NewReader("0123456789")); err != nil {
		t.Fatalf("Save at limit: %v", err)
	}

	_, err := s.Save(context.Background(), "audio/wav", strings.NewReader("0123456789x"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Save over limit = %v, want ErrTooLarge", err)
	}
}

func TestReadBytesUnknownRecording(t *testing.T) {
	s := newTestStore(t, 1024)

	if _, err := s.ReadBytes("missing"); !errors.Is(err, ErrRecordingNotFound) {
		t.Fatalf("ReadBytes = %v, want ErrRecordingNotFound", err)
	}
}

func TestSignedURLTokenRoundTrip(t *testing.T) {
	s := newTestStore(t, 1024)

	rec, err := s.Save(context.Background(), "audio/wav", strings.NewReader("riff data"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Pull the token off the signed URL the store produced.
	idx := strings.Index(rec.SignedURL, "token=")
	if idx < 0 {
		t.Fatalf("SignedURL %q carries no token", rec.SignedURL)
	}
	token := rec.SignedURL[idx+len("token="):]

	if !s.VerifyToken(rec.ID, token) {
		t.Error("VerifyToken rejected the store's own token")
	}
	if s.VerifyToken(rec.ID, "forged") {
		t.Error("VerifyToken accepted a forged token")
	}
	if s.VerifyToken("other-recording", token) {
		t.Error("VerifyToken accepted a token minted for a different recording")
	}
}
