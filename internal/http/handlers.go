package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/queue"
	"ai-transcription-service/internal/service/orchestrator"
	"ai-transcription-service/internal/service/stt"
	"ai-transcription-service/internal/session"
	"ai-transcription-service/internal/storage"
)

// Transcriber is the orchestration surface the handlers need.
type Transcriber interface {
	Transcribe(ctx context.Context, req models.TranscriptionRequest) (*models.Result, error)
	Health() []models.ProviderHealth
}

// JobQueue is the queue surface the handlers need.
type JobQueue interface {
	Enqueue(ctx context.Context, req models.TranscriptionRequest) (string, error)
	Status(ctx context.Context, id string) (*models.Job, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// Handlers holds the API dependencies.
type Handlers struct {
	Orchestrator Transcriber
	Queue        JobQueue
	Sessions     *session.Manager
	Recordings   *storage.Store
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeDomainError maps domain errors onto machine-readable error codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var allFailed *orchestrator.AllProvidersFailedError
	switch {
	case errors.Is(err, stt.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.As(err, &allFailed):
		writeError(w, http.StatusBadGateway, "all_providers_failed", allFailed.Error())
	case errors.Is(err, stt.ErrNotSupported):
		writeError(w, http.StatusBadRequest, "not_supported", err.Error())
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, storage.ErrRecordingNotFound):
		writeError(w, http.StatusNotFound, "recording_not_found", err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error())
	case errors.Is(err, storage.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// UploadRecording accepts an audio blob and returns its recording reference.
func (h *Handlers) UploadRecording(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	rec, err := h.Recordings.Save(r.Context(), contentType, r.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"recordingId": rec.ID,
		"storagePath": rec.StoragePath,
		"signedUrl":   rec.SignedURL,
	})
}

// DownloadRecording serves stored audio when the signed-URL token matches.
func (h *Handlers) DownloadRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordingID")
	if !h.Recordings.VerifyToken(id, r.URL.Query().Get("token")) {
		writeError(w, http.StatusForbidden, "invalid_token", "signed URL token mismatch")
		return
	}
	rec, err := h.Recordings.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	data, err := h.Recordings.ReadBytes(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", rec.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type transcribeRequest struct {
	RecordingID  string                      `json:"recordingId,omitempty"`
	AudioURL     string                      `json:"audioUrl,omitempty"`
	AudioContent []byte                      `json:"audioContent,omitempty"`
	Provider     string                      `json:"provider,omitempty"`
	Options      models.TranscriptionOptions `json:"options"`
}

// resolveRequest turns the wire request into a TranscriptionRequest with the
// audio bytes resolved from whichever reference was supplied.
func (h *Handlers) resolveRequest(body transcribeRequest) (models.TranscriptionRequest, error) {
	req := models.TranscriptionRequest{
		AudioURL: body.AudioURL,
		Options:  body.Options,
	}
	if body.Provider != "" {
		req.Options.PreferredProvider = body.Provider
	}

	switch {
	case len(body.AudioContent) > 0:
		req.Audio = body.AudioContent
	case body.RecordingID != "":
		data, err := h.Recordings.ReadBytes(body.RecordingID)
		if err != nil {
			return req, err
		}
		req.Audio = data
	case body.AudioURL != "":
		id := recordingIDFromURL(body.AudioURL)
		if id == "" {
			return req, fmt.Errorf("audioUrl does not reference a stored recording: %w", stt.ErrInvalidInput)
		}
		data, err := h.Recordings.ReadBytes(id)
		if err != nil {
			return req, err
		}
		req.Audio = data
	}
	return req, nil
}

// recordingIDFromURL extracts the recording id from one of our signed URLs.
func recordingIDFromURL(url string) string {
	const marker = "/v1/recordings/"
	idx := strings.Index(url, marker)
	if idx < 0 {
		return ""
	}
	rest := url[idx+len(marker):]
	if q := strings.IndexByte(rest, '?'); q >= 0 {
		rest = rest[:q]
	}
	return rest
}

// StartTranscription enqueues an asynchronous transcription job.
func (h *Handlers) StartTranscription(w http.ResponseWriter, r *http.Request) {
	var body transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}
	req, err := h.resolveRequest(body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jobID, err := h.Queue.Enqueue(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"jobId":  jobID,
		"status": string(models.JobQueued),
	})
}

// TranscribeSync runs one orchestration call and returns the result directly.
func (h *Handlers) TranscribeSync(w http.ResponseWriter, r *http.Request) {
	var body transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}
	req, err := h.resolveRequest(body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.Orchestrator.Transcribe(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type jobStatusResponse struct {
	State    models.JobState `json:"state"`
	Progress int             `json:"progress"`
	Attempts int             `json:"attempts"`
	Result   *models.Result  `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// JobStatus reports the job state, progress and result.
func (h *Handlers) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.Queue.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{
		State:    job.State,
		Progress: job.Progress,
		Attempts: job.Attempts,
		Result:   job.Result,
		Error:    job.LastError,
	})
}

// CancelJob cancels a job that has not started yet.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Queue.Cancel(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "job_not_cancellable",
			"job already started; it will run to a terminal state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type startSessionRequest struct {
	Provider string                      `json:"provider,omitempty"`
	Language string                      `json:"language,omitempty"`
	Options  models.TranscriptionOptions `json:"options"`
}

// StartSession opens a streaming transcription session.
func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	var body startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}
	lang := body.Language
	if lang == "" {
		lang = body.Options.Language
	}
	s, err := h.Sessions.Start(r.Context(), body.Provider, stt.TranscribeOptions{
		Language:    lang,
		Diarization: body.Options.SpeakerDiarization,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"sessionId":        s.ID,
		"transportAddress": "/v1/sessions/" + s.ID + "/ws",
	})
}

// SessionStatus reports one session's state.
func (h *Handlers) SessionStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

// EndSession terminates a session. Termination is idempotent.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.End(chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// ProvidersHealth reports the cached provider health snapshot.
func (h *Handlers) ProvidersHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.Health())
}
