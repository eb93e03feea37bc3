// Package session manages long-lived duplex transcription sessions for
// providers with native realtime support.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ai-transcription-service/internal/observability/logging"
	"ai-transcription-service/internal/observability/metrics"
	"ai-transcription-service/internal/service/stt"
)

// Session states.
const (
	StateActive = "active"
	StateEnded  = "ended"
)

var (
	// ErrBufferFull signals backpressure: the transport is not keeping up and
	// the caller must pause producing audio. Writes are never buffered
	// without bound.
	ErrBufferFull = errors.New("session buffer full, pause audio production")

	// ErrSessionEnded is returned for writes after End.
	ErrSessionEnded = errors.New("session ended")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// Status is a point-in-time view of one session.
type Status struct {
	State          string    `json:"state"`
	StartedAt      time.Time `json:"startedAt"`
	BytesProcessed int64     `json:"bytesProcessed"`
}

// Session is one live duplex flow: audio chunks in, transcript events out.
// Reads and writes proceed asynchronously relative to each other.
type Session struct {
	ID       string
	Provider string

	rt        stt.RealtimeSession
	buffer    chan []byte
	events    chan stt.Event
	startedAt time.Time
	bytes     atomic.Int64
	metrics   *metrics.Metrics

	mu    sync.Mutex
	ended bool
}

// Write buffers one audio chunk for the transport. When the bounded buffer
// is full it fails immediately with ErrBufferFull instead of blocking.
func (s *Session) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	select {
	case s.buffer <- chunk:
		s.bytes.Add(int64(len(chunk)))
		s.metrics.SessionAudioBytes.Add(float64(len(chunk)))
		return nil
	default:
		s.metrics.SessionBufferFull.Inc()
		return ErrBufferFull
	}
}

// Events delivers partial/final/error transcript events until the session
// ends.
func (s *Session) Events() <-chan stt.Event { return s.events }

// End terminates the session. Idempotent: repeated calls are no-ops.
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	close(s.buffer)
	s.mu.Unlock()
	s.metrics.SessionsActive.Dec()
}

// Status reports the session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	state := StateActive
	if s.ended {
		state = StateEnded
	}
	s.mu.Unlock()
	return Status{
		State:          state,
		StartedAt:      s.startedAt,
		BytesProcessed: s.bytes.Load(),
	}
}

// writePump forwards buffered chunks to the provider session, then closes it
// once the buffer is drained after End.
func (s *Session) writePump() {
	for chunk := range s.buffer {
		if err := s.rt.Send(context.Background(), chunk); err != nil {
			logger := logging.WithSession(s.ID, s.Provider)
			logger.Error().Err(err).Msg("Session send failed")
			s.End()
			// Drain remaining chunks so End's close does not strand writers.
			for range s.buffer {
			}
			break
		}
	}
	s.rt.Close()
}

// readPump forwards provider events to the session event channel.
func (s *Session) readPump() {
	for ev := range s.rt.Events() {
		s.metrics.SessionEventsTotal.WithLabelValues(string(ev.Type)).Inc()
		s.events <- ev
	}
	close(s.events)
}

// Config tunes the session manager.
type Config struct {
	// BufferChunks bounds the per-session write buffer.
	BufferChunks int
}

// Manager tracks live sessions and routes them to realtime-capable adapters.
type Manager struct {
	adapters []stt.Adapter
	cfg      Config
	metrics  *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager over the given adapters in priority
// order.
func NewManager(adapters []stt.Adapter, cfg Config) *Manager {
	if cfg.BufferChunks <= 0 {
		cfg.BufferChunks = 64
	}
	return &Manager{
		adapters: adapters,
		cfg:      cfg,
		metrics:  metrics.DefaultMetrics,
		sessions: make(map[string]*Session),
	}
}

// Start opens a session with the named provider, or with the first adapter
// that supports realtime sessions when provider is empty.
func (m *Manager) Start(ctx context.Context, provider string, opts stt.TranscribeOptions) (*Session, error) {
	var lastErr error
	for _, adapter := range m.adapters {
		if provider != "" && adapter.Name() != provider {
			continue
		}
		rt, err := adapter.StartRealtimeSession(ctx, opts)
		if err != nil {
			lastErr = err
			if provider != "" {
				break
			}
			continue
		}

		s := &Session{
			ID:        uuid.NewString(),
			Provider:  adapter.Name(),
			rt:        rt,
			buffer:    make(chan []byte, m.cfg.BufferChunks),
			events:    make(chan stt.Event, 16),
			startedAt: time.Now(),
			metrics:   m.metrics,
		}
		go s.writePump()
		go s.readPump()

		m.mu.Lock()
		m.sessions[s.ID] = s
		m.mu.Unlock()

		m.metrics.SessionsTotal.Inc()
		m.metrics.SessionsActive.Inc()
		logger := logging.WithSession(s.ID, s.Provider)
		logger.Info().Msg("Streaming session started")
		return s, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no realtime-capable provider: %w", stt.ErrNotSupported)
	}
	return nil, lastErr
}

// Get returns the session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End terminates the session by id. The session record stays available for
// status queries.
func (m *Manager) End(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.End()
	logger := logging.WithSession(s.ID, s.Provider)
	logger.Info().
		Int64("bytesProcessed", s.bytes.Load()).
		Msg("Streaming session ended")
	return nil
}
