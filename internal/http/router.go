// Package http exposes the service's external interface: upload, async and
// sync transcription, job status/cancel, and streaming session lifecycle.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ai-transcription-service/internal/observability"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger())

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireIdentity)

		r.Post("/recordings", h.UploadRecording)
		r.Get("/recordings/{recordingID}", h.DownloadRecording)

		r.Post("/transcriptions", h.StartTranscription)
		r.Post("/transcriptions/sync", h.TranscribeSync)

		r.Get("/jobs/{jobID}", h.JobStatus)
		r.Delete("/jobs/{jobID}", h.CancelJob)

		r.Post("/sessions", h.StartSession)
		r.Get("/sessions/{sessionID}", h.SessionStatus)
		r.Delete("/sessions/{sessionID}", h.EndSession)
		r.Get("/sessions/{sessionID}/ws", h.SessionStream)

		r.Get("/providers/health", h.ProvidersHealth)
	})

	return r
}

// RequireIdentity enforces the caller-identity header on every API endpoint.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Caller-Identity") == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-Caller-Identity header")
			return
		}
		next.ServeHTTP(w, r)
	})
}
