package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ai-transcription-service/internal/events"
	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/service/stt"
)

// fakeTranscriber scripts orchestration outcomes per attempt.
type fakeTranscriber struct {
	calls   atomic.Int32
	failGen func(attempt int32) error
	block   chan struct{}
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req models.TranscriptionRequest) (*models.Result, error) {
	attempt := f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.failGen != nil {
		if err := f.failGen(attempt); err != nil {
			return nil, err
		}
	}
	return &models.Result{Text: "done", Provider: "fake", Confidence: 0.95}, nil
}

func testConfig() Config {
	return Config{
		Workers:       2,
		PollInterval:  5 * time.Millisecond,
		RetryBase:     5 * time.Millisecond,
		RetryFactor:   2,
		RetryCap:      50 * time.Millisecond,
		MaxAttempts:   3,
		Retention:     time.Hour,
		SweepInterval: time.Hour,
	}
}

func newTestQueue(t *testing.T, tr Transcriber, cfg Config) (*Queue, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	q := New(store, tr, events.New(nil), cfg)
	return q, store
}

// waitForState polls until the job reaches the wanted state, recording every
// observed progress value along the way.
func waitForState(t *testing.T, q *Queue, id string, want models.JobState) (*models.Job, []int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var seen []int
	for time.Now().Before(deadline) {
		job, err := q.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("Status(%s): %v", id, err)
		}
		seen = append(seen, job.Progress)
		if job.State == want {
			return job, seen
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", id, want)
	return nil, nil
}

func TestQueueCompletesJobWithMonotonicProgress(t *testing.T) {
	q, _ := newTestQueue(t, &fakeTranscriber{}, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, err := q.Enqueue(ctx, models.TranscriptionRequest{Audio: []byte("audio")})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, seen := waitForState(t, q, id, models.JobCompleted)
	if job.Progress != 100 {
		t.Errorf("terminal progress = %d, want exactly 100", job.Progress)
	}
	if job.Result == nil || job.Result.Text != "done" {
		t.Errorf("Result = %+v, want recorded transcript", job.Result)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress decreased: %d -> %d (observed %v)", seen[i-1], seen[i], seen)
		}
	}
}

func TestQueueRetriesTransientFailureThenSucceeds(t *testing.T) {
	tr := &fakeTranscriber{failGen: func(attempt int32) error {
		if attempt == 1 {
			return fmt.Errorf("provider flapped: %w", stt.ErrTransient)
		}
		return nil
	}}
	q, _ := newTestQueue(t, tr, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, err := q.Enqueue(ctx, models.TranscriptionRequest{Audio: []byte("audio")})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, _ := waitForState(t, q, id, models.JobCompleted)
	if job.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 recorded failed attempt", job.Attempts)
	}
	if got := tr.calls.Load(); got != 2 {
		t.Errorf("transcriber called %d times, want 2", got)
	}
}

func TestQueueFailsPermanentlyAfterMaxAttempts(t *testing.T) {
	tr := &fakeTranscriber{failGen: func(int32) error {
		return fmt.Errorf("upstream hard down: %w", stt.ErrTransient)
	}}
	q, _ := newTestQueue(t, tr, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, err := q.Enqueue(ctx, models.TranscriptionRequest{Audio: []byte("audio")})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, _ := waitForState(t, q, id, models.JobFailed)
	if job.Attempts != 3 {
		t.Errorf("Attempts = %d, want MaxAttempts", job.Attempts)
	}
	if !strings.Contains(job.LastError, "upstream hard down") {
		t.Errorf("LastError = %q, want the underlying cause", job.LastError)
	}
}

func TestQueueInvalidInputFailsWithoutRetry(t *testing.T) {
	tr := &fakeTranscriber{failGen: func(int32) error {
		return fmt.Errorf("unreadable payload: %w", stt.ErrInvalidInput)
	}}
	q, _ := newTestQueue(t, tr, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, err := q.Enqueue(ctx, models.TranscriptionRequest{Audio: []byte("audio")})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitForState(t, q, id, models.JobFailed)
	if got := tr.calls.Load(); got != 1 {
		t.Errorf("transcriber called %d times for fatal input, want 1", got)
	}
}

func TestEnqueueRejectsEmptyAudio(t *testing.T) {
	q, _ := newTestQueue(t, &fakeTranscriber{}, testConfig())

	_, err := q.Enqueue(context.Background(), models.TranscriptionRequest{})
	if !errors.Is(err, stt.ErrInvalidInput) {
		t.Fatalf("Enqueue error = %v, want ErrInvalidInput", err)
	}
}

func TestCancelQueuedJobRemovesIt(t *testing.T) {
	// Workers never started: the job stays queued.
	q, _ := newTestQueue(t, &fakeTranscriber{}, testConfig())

	ctx := context.Background()
	id, err := q.Enqueue(ctx, models.TranscriptionRequest{Audio: []byte("audio")})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ok, err := q.Cancel(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Cancel = (%v, %v), want (true, nil)", ok, err)
	}
	if _, err := q.Status(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status after cancel = %v, want ErrNotFound", err)
	}
}

func TestCancelActiveJobHasNoEffect(t *testing.T) {
	tr := &fakeTranscriber{block: make(chan struct{})}
	q, _ := newTestQueue(t, tr, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, err := q.Enqueue(ctx, models.TranscriptionRequest{Audio: []byte("audio")})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForState(t, q, id, models.JobActive)

	ok, err := q.Cancel(ctx, id)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if ok {
		t.Error("Cancel = true for an active job, want false")
	}

	close(tr.block)
	job, _ := waitForState(t, q, id, models.JobCompleted)
	if job.Result == nil {
		t.Error("active job did not run to its terminal state after cancel attempt")
	}
}

func TestCancelUnknownJob(t *testing.T) {
	q, _ := newTestQueue(t, &fakeTranscriber{}, testConfig())

	_, err := q.Cancel(context.Background(), "no-such-job")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cancel error = %v, want ErrNotFound", err)
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	q := New(NewMemoryStore(), &fakeTranscriber{}, events.New(nil), Config{
		RetryBase:   time.Second,
		RetryFactor: 2,
		RetryCap:    10 * time.Second,
	})

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: time.Second},
		{attempts: 1, want: 2 * time.Second},
		{attempts: 2, want: 4 * time.Second},
		{attempts: 3, want: 8 * time.Second},
		{attempts: 4, want: 10 * time.Second}, // capped
		{attempts: 10, want: 10 * time.Second},
	}
	for _, tt := range tests {
		if got := q.backoffDelay(tt.attempts); got != tt.want {
			t.Errorf("backoffDelay(%d) = %s, want %s", tt.attempts, got, tt.want)
		}
	}
}

func TestMemoryStorePurgeRemovesOnlyStaleTerminalJobs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	jobs := []*models.Job{
		{ID: "stale-done", State: models.JobCompleted, UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "fresh-done", State: models.JobCompleted, UpdatedAt: now},
		{ID: "stale-failed", State: models.JobFailed, UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "stale-queued", State: models.JobQueued, UpdatedAt: now.Add(-2 * time.Hour)},
	}
	for _, j := range jobs {
		if err := store.Create(ctx, j); err != nil {
			t.Fatalf("Create(%s): %v", j.ID, err)
		}
	}

	purged, err := store.Purge(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged != 2 {
		t.Errorf("Purge removed %d jobs, want 2", purged)
	}
	for _, id := range []string{"fresh-done", "stale-queued"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("job %s was purged, want kept", id)
		}
	}
	for _, id := range []string{"stale-done", "stale-failed"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("job %s still present, want purged", id)
		}
	}
}

func TestMemoryStoreDequeueRespectsNextRunAt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.Create(ctx, &models.Job{
		ID:        "future",
		State:     models.JobQueued,
		NextRunAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job, err := store.Dequeue(ctx, now); err != nil || job != nil {
		t.Fatalf("Dequeue = (%v, %v), want (nil, nil) before NextRunAt", job, err)
	}

	job, err := store.Dequeue(ctx, now.Add(2*time.Hour))
	if err != nil || job == nil {
		t.Fatalf("Dequeue = (%v, %v), want the due job", job, err)
	}
	if job.State != models.JobActive {
		t.Errorf("dequeued state = %s, want active", job.State)
	}
	// Claimed jobs must not be handed out twice.
	if again, _ := store.Dequeue(ctx, now.Add(2*time.Hour)); again != nil {
		t.Errorf("Dequeue returned an already-claimed job: %+v", again)
	}
}

func TestMemoryStoreProgressMonotonic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &models.Job{ID: "j1", State: models.JobActive}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, p := range []int{10, 30, 20, 90} {
		if err := store.SetProgress(ctx, "j1", p); err != nil {
			t.Fatalf("SetProgress(%d): %v", p, err)
		}
	}
	job, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Progress != 90 {
		t.Errorf("Progress = %d, want 90 (regression to 20 must be ignored)", job.Progress)
	}
}
