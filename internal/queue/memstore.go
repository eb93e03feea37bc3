package queue

import (
	"context"
	"sync"
	"time"

	"ai-transcription-service/internal/models"
)

// MemoryStore is an in-memory Store. It is the default when no database is
// configured and keeps orchestration tests hermetic.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.Job)}
}

func copyJob(j *models.Job) *models.Job {
	c := *j
	return &c
}

// Create persists a new queued job.
func (s *MemoryStore) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// Get returns a snapshot of the job.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

// Dequeue atomically claims the next due queued job.
func (s *MemoryStore) Dequeue(_ context.Context, now time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *models.Job
	for _, job := range s.jobs {
		if job.State != models.JobQueued || job.NextRunAt.After(now) {
			continue
		}
		if next == nil || job.NextRunAt.Before(next.NextRunAt) {
			next = job
		}
	}
	if next == nil {
		return nil, nil
	}
	next.State = models.JobActive
	next.UpdatedAt = now
	return copyJob(next), nil
}

// SetProgress updates progress on an active job, monotonically.
func (s *MemoryStore) SetProgress(_ context.Context, id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.State == models.JobActive && progress > job.Progress {
		job.Progress = progress
		job.UpdatedAt = time.Now()
	}
	return nil
}

// Complete records the result and finishes the job.
func (s *MemoryStore) Complete(_ context.Context, id string, result *models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.State = models.JobCompleted
	job.Progress = 100
	job.Result = result
	job.LastError = ""
	job.UpdatedAt = time.Now()
	return nil
}

// Retry reschedules an active job for another attempt.
func (s *MemoryStore) Retry(_ context.Context, id string, attempts int, lastError string, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.State = models.JobQueued
	job.Attempts = attempts
	job.LastError = lastError
	job.NextRunAt = nextRunAt
	job.UpdatedAt = time.Now()
	return nil
}

// Fail moves the job to the failed terminal state.
func (s *MemoryStore) Fail(_ context.Context, id string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.State = models.JobFailed
	job.LastError = lastError
	job.UpdatedAt = time.Now()
	return nil
}

// CancelQueued removes the job iff it is still queued.
func (s *MemoryStore) CancelQueued(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if job.State != models.JobQueued {
		return false, nil
	}
	delete(s.jobs, id)
	return true, nil
}

// Purge removes terminal jobs not updated since the cutoff.
func (s *MemoryStore) Purge(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, job := range s.jobs {
		if job.State.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			purged++
		}
	}
	return purged, nil
}
