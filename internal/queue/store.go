// Package queue provides durable, retryable asynchronous execution of
// transcription requests.
package queue

import (
	"context"
	"errors"
	"time"

	"ai-transcription-service/internal/models"
)

// ErrNotFound is returned for unknown or already removed job ids.
var ErrNotFound = errors.New("job not found")

// Store is the injected persistence contract of the queue. Implementations
// must make Dequeue an atomic claim: a queued, due job is handed to exactly
// one worker and moved to active in the same step.
//
// An in-memory implementation backs unit tests; the Postgres implementation
// backs production.
type Store interface {
	// Create persists a new queued job.
	Create(ctx context.Context, job *models.Job) error

	// Get returns a snapshot of the job.
	Get(ctx context.Context, id string) (*models.Job, error)

	// Dequeue atomically claims the next due queued job, transitioning it to
	// active. Returns (nil, nil) when no job is due.
	Dequeue(ctx context.Context, now time.Time) (*models.Job, error)

	// SetProgress updates progress on an active job. Progress is monotonic:
	// a value below the current one is ignored, never written.
	SetProgress(ctx context.Context, id string, progress int) error

	// Complete records the result and moves the job to completed with
	// progress 100.
	Complete(ctx context.Context, id string, result *models.Result) error

	// Retry moves an active job back to queued with the given attempt count,
	// last error and next run time.
	Retry(ctx context.Context, id string, attempts int, lastError string, nextRunAt time.Time) error

	// Fail moves the job to the failed terminal state.
	Fail(ctx context.Context, id string, lastError string) error

	// CancelQueued removes the job iff it is still queued. Returns false
	// without error when the job is active or terminal.
	CancelQueued(ctx context.Context, id string) (bool, error)

	// Purge removes jobs in a terminal state not updated since the cutoff.
	// Returns the number of jobs removed.
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}
