package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/service/stt"
	"ai-transcription-service/internal/service/stt/mock"
)

// blockingSession stalls every Send until released, so tests can fill the
// write buffer deterministically.
type blockingSession struct {
	started   chan struct{}
	release   chan struct{}
	events    chan stt.Event
	startOnce sync.Once
	closeOnce sync.Once
}

func newBlockingSession() *blockingSession {
	return &blockingSession{
		started: make(chan struct{}),
		release: make(chan struct{}),
		events:  make(chan stt.Event),
	}
}

func (s *blockingSession) Send(_ context.Context, _ []byte) error {
	s.startOnce.Do(func() { close(s.started) })
	<-s.release
	return nil
}

func (s *blockingSession) Events() <-chan stt.Event { return s.events }

func (s *blockingSession) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

// rtAdapter hands out a canned realtime session.
type rtAdapter struct {
	name string
	rt   stt.RealtimeSession
	err  error
}

func (a *rtAdapter) Name() string    { return a.name }
func (a *rtAdapter) IsHealthy() bool { return true }

func (a *rtAdapter) Transcribe(context.Context, []byte, stt.TranscribeOptions) (*models.Result, error) {
	return nil, stt.ErrNotSupported
}

func (a *rtAdapter) TranscribeStream(context.Context, <-chan []byte, stt.TranscribeOptions) (<-chan stt.Event, error) {
	return nil, stt.ErrNotSupported
}

func (a *rtAdapter) StartRealtimeSession(context.Context, stt.TranscribeOptions) (stt.RealtimeSession, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.rt, nil
}

func TestWriteBackpressureIsBounded(t *testing.T) {
	rt := newBlockingSession()
	m := NewManager([]stt.Adapter{&rtAdapter{name: "duplex", rt: rt}}, Config{BufferChunks: 2})

	s, err := m.Start(context.Background(), "duplex", stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(rt.release)
		s.End()
	}()

	chunk := []byte("pcm")
	if err := s.Write(chunk); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Wait until the pump has taken the first chunk and is stalled in Send,
	// leaving the full buffer capacity available.
	<-rt.started

	for i := 0; i < 2; i++ {
		if err := s.Write(chunk); err != nil {
			t.Fatalf("write %d into free buffer: %v", i, err)
		}
	}

	if err := s.Write(chunk); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("write past the bound = %v, want ErrBufferFull", err)
	}
}

func TestEndIsIdempotentAndRejectsFurtherWrites(t *testing.T) {
	m := NewManager([]stt.Adapter{mock.New()}, Config{})

	s, err := m.Start(context.Background(), "", stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.End()
	s.End() // must not panic on the already-closed buffer

	if err := s.Write([]byte("late")); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("write after End = %v, want ErrSessionEnded", err)
	}
	if got := s.Status().State; got != StateEnded {
		t.Errorf("State = %q, want %q", got, StateEnded)
	}
	if err := m.End(s.ID); err != nil {
		t.Errorf("Manager.End after session End = %v, want nil", err)
	}
}

func TestSessionForwardsProviderEvents(t *testing.T) {
	m := NewManager([]stt.Adapter{mock.New()}, Config{})

	s, err := m.Start(context.Background(), mock.ProviderName, stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Write([]byte("chunk")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	s.End()

	var events []stt.Event
	timeout := time.After(2 * time.Second)
collect:
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				break collect
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event channel never closed after End")
		}
	}
	if len(events) == 0 {
		t.Fatal("no events forwarded")
	}
	last := events[len(events)-1]
	if last.Type != stt.EventFinal {
		t.Errorf("last event = %+v, want a final transcript", last)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Type != stt.EventPartial {
			t.Errorf("event before final = %+v, want partial", ev)
		}
	}
}

func TestStatusTracksBytesProcessed(t *testing.T) {
	m := NewManager([]stt.Adapter{mock.New()}, Config{})

	s, err := m.Start(context.Background(), "", stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()

	if err := s.Write(make([]byte, 100)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(make([]byte, 50)); err != nil {
		t.Fatalf("write: %v", err)
	}

	status := s.Status()
	if status.BytesProcessed != 150 {
		t.Errorf("BytesProcessed = %d, want 150", status.BytesProcessed)
	}
	if status.State != StateActive {
		t.Errorf("State = %q, want %q", status.State, StateActive)
	}
	if status.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestStartSkipsProvidersWithoutRealtimeSupport(t *testing.T) {
	noRT := &rtAdapter{name: "batchonly", err: stt.ErrNotSupported}
	m := NewManager([]stt.Adapter{noRT, mock.New()}, Config{})

	s, err := m.Start(context.Background(), "", stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()
	if s.Provider != mock.ProviderName {
		t.Errorf("Provider = %q, want fallback to %q", s.Provider, mock.ProviderName)
	}
}

func TestStartNamedProviderWithoutRealtimeFails(t *testing.T) {
	noRT := &rtAdapter{name: "batchonly", err: stt.ErrNotSupported}
	m := NewManager([]stt.Adapter{noRT, mock.New()}, Config{})

	if _, err := m.Start(context.Background(), "batchonly", stt.TranscribeOptions{}); !errors.Is(err, stt.ErrNotSupported) {
		t.Fatalf("Start(batchonly) = %v, want ErrNotSupported", err)
	}
}

func TestGetAndEndUnknownSession(t *testing.T) {
	m := NewManager(nil, Config{})

	if _, err := m.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get = %v, want ErrSessionNotFound", err)
	}
	if err := m.End("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("End = %v, want ErrSessionNotFound", err)
	}
}
