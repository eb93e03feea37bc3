package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"ai-transcription-service/internal/observability/logging"
	"ai-transcription-service/internal/service/stt"
	"ai-transcription-service/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsEvent is the JSON frame sent to the client for each transcript event.
type wsEvent struct {
	Type       string  `json:"type"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Code       string  `json:"code,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// SessionStream is the duplex transport for one streaming session: binary
// frames carry audio chunks in, JSON frames carry transcript events out.
func (h *Handlers) SessionStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	s, err := h.Sessions.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := logging.WithSession(s.ID, s.Provider)

	// Event writer: provider events out to the client.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for ev := range s.Events() {
			frame := wsEvent{Type: string(ev.Type), Text: ev.Text, Confidence: ev.Confidence}
			if ev.Type == stt.EventError && ev.Err != nil {
				frame.Code = "provider_error"
				frame.Message = ev.Err.Error()
			}
			if err := conn.WriteJSON(frame); err != nil {
				log.Warn().Err(err).Msg("Session event write failed")
				return
			}
		}
	}()

	// Audio reader: client chunks in to the session.
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := s.Write(data); err != nil {
			if errors.Is(err, session.ErrBufferFull) {
				// Backpressure: the caller must pause producing audio.
				_ = conn.WriteJSON(wsEvent{Type: "backpressure", Code: "buffer_full",
					Message: "audio buffer full, pause sending"})
				continue
			}
			break
		}
	}

	s.End()
	<-writeDone
}
