package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-transcription-service/internal/events"
	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/observability/logging"
	"ai-transcription-service/internal/observability/metrics"
	"ai-transcription-service/internal/service/stt"
)

// Transcriber executes one orchestration call. Implemented by the
// orchestrator; faked in tests.
type Transcriber interface {
	Transcribe(ctx context.Context, req models.TranscriptionRequest) (*models.Result, error)
}

// Config tunes the worker pool, retry policy and retention sweep.
type Config struct {
	Workers       int
	PollInterval  time.Duration
	RetryBase     time.Duration
	RetryFactor   float64
	RetryCap      time.Duration
	MaxAttempts   int
	Retention     time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		PollInterval:  250 * time.Millisecond,
		RetryBase:     2 * time.Second,
		RetryFactor:   2,
		RetryCap:      time.Minute,
		MaxAttempts:   3,
		Retention:     24 * time.Hour,
		SweepInterval: 10 * time.Minute,
	}
}

// jobEvent is the lifecycle record published to the jobs topic.
type jobEvent struct {
	EventType string `json:"eventType"`
	JobID     string `json:"jobId"`
	State     string `json:"state"`
	Attempts  int    `json:"attempts,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Queue decouples "audio available" from "transcript ready": requests are
// persisted as jobs and processed by a bounded worker pool with exponential
// backoff retries and a retention sweep.
type Queue struct {
	store       Store
	transcriber Transcriber
	publisher   *events.Publisher
	cfg         Config
	metrics     *metrics.Metrics
	stop        chan struct{}
	done        chan struct{}
}

// New creates a queue over the given store and transcriber.
func New(store Store, transcriber Transcriber, publisher *events.Publisher, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.RetryFactor < 1 {
		cfg.RetryFactor = 2
	}
	return &Queue{
		store:       store,
		transcriber: transcriber,
		publisher:   publisher,
		cfg:         cfg,
		metrics:     metrics.DefaultMetrics,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Enqueue persists the request as a queued job and returns its id.
// Empty audio is rejected up front: InvalidInput is fatal and never retried,
// so it must not occupy the queue at all.
func (q *Queue) Enqueue(ctx context.Context, req models.TranscriptionRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", fmt.Errorf("empty audio payload: %w", stt.ErrInvalidInput)
	}

	now := time.Now()
	job := &models.Job{
		ID:         uuid.NewString(),
		State:      models.JobQueued,
		Request:    req,
		EnqueuedAt: now,
		UpdatedAt:  now,
		NextRunAt:  now,
	}
	if err := q.store.Create(ctx, job); err != nil {
		return "", err
	}

	q.metrics.JobsEnqueued.Inc()
	q.publishEvent(ctx, job.ID, "transcription.job.queued", models.JobQueued, 0, "")
	return job.ID, nil
}

// Status returns a snapshot of the job.
func (q *Queue) Status(ctx context.Context, id string) (*models.Job, error) {
	return q.store.Get(ctx, id)
}

// Cancel removes the job iff it has not started. Once active, cancellation
// is a no-op and the job runs to a terminal state; this is documented
// behavior, not a bug.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := q.store.CancelQueued(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		q.metrics.JobsCancelled.Inc()
		q.publishEvent(ctx, id, "transcription.job.cancelled", "cancelled", 0, "")
	}
	return ok, nil
}

// Start launches the worker pool and the retention sweeper.
func (q *Queue) Start(ctx context.Context) {
	log := logging.WithComponent("queue")
	log.Info().
		Int("workers", q.cfg.Workers).
		Dur("retention", q.cfg.Retention).
		Int("maxAttempts", q.cfg.MaxAttempts).
		Msg("Starting job queue")

	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.workerLoop(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.sweepLoop(ctx)
	}()
	go func() {
		wg.Wait()
		close(q.done)
	}()
}

// Stop signals all workers to finish their current job and waits for them.
func (q *Queue) Stop() {
	close(q.stop)
	<-q.done
}

func (q *Queue) workerLoop(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				job, err := q.store.Dequeue(ctx, time.Now())
				if err != nil {
					logger := logging.WithComponent("queue")
					logger.Error().Err(err).Msg("Dequeue failed")
					break
				}
				if job == nil {
					break
				}
				q.process(ctx, job)
			}
		}
	}
}

// process runs one claimed job through the orchestrator, updating progress
// at the defined milestones.
func (q *Queue) process(ctx context.Context, job *models.Job) {
	log := logging.WithJob(job.ID)
	start := time.Now()
	q.metrics.JobsActive.Inc()
	defer q.metrics.JobsActive.Dec()
	defer func() {
		q.metrics.JobDuration.Observe(time.Since(start).Seconds())
	}()

	q.publishEvent(ctx, job.ID, "transcription.job.active", models.JobActive, job.Attempts, "")

	// Input resolved
	q.setProgress(ctx, job.ID, 10)
	// Provider invocation starting
	q.setProgress(ctx, job.ID, 30)

	res, err := q.transcriber.Transcribe(ctx, job.Request)
	if err != nil {
		q.handleFailure(ctx, job, err)
		return
	}

	// Provider completed
	q.setProgress(ctx, job.ID, 90)

	if err := q.store.Complete(ctx, job.ID, res); err != nil {
		log.Error().Err(err).Msg("Failed to record job result")
		return
	}
	q.metrics.JobsCompleted.Inc()
	q.publishEvent(ctx, job.ID, "transcription.job.completed", models.JobCompleted, job.Attempts, "")
	log.Info().
		Str("sttProvider", res.Provider).
		Dur("duration", time.Since(start)).
		Msg("Job completed")
}

func (q *Queue) handleFailure(ctx context.Context, job *models.Job, cause error) {
	log := logging.WithJob(job.ID)
	attempts := job.Attempts + 1

	// Invalid input can never succeed on retry.
	fatal := errors.Is(cause, stt.ErrInvalidInput)

	if fatal || attempts >= q.cfg.MaxAttempts {
		if err := q.store.Fail(ctx, job.ID, cause.Error()); err != nil {
			log.Error().Err(err).Msg("Failed to mark job failed")
			return
		}
		q.metrics.JobsFailed.Inc()
		q.publishEvent(ctx, job.ID, "transcription.job.failed", models.JobFailed, attempts, cause.Error())
		log.Error().
			Err(cause).
			Int("attempts", attempts).
			Msg("Job failed permanently")
		return
	}

	delay := q.backoffDelay(attempts)
	if err := q.store.Retry(ctx, job.ID, attempts, cause.Error(), time.Now().Add(delay)); err != nil {
		log.Error().Err(err).Msg("Failed to reschedule job")
		return
	}
	q.metrics.JobsRetried.Inc()
	q.publishEvent(ctx, job.ID, "transcription.job.retrying", models.JobQueued, attempts, cause.Error())
	log.Warn().
		Err(cause).
		Int("attempts", attempts).
		Dur("delay", delay).
		Msg("Job rescheduled with backoff")
}

// backoffDelay computes base * factor^attempts, capped.
func (q *Queue) backoffDelay(attempts int) time.Duration {
	delay := time.Duration(float64(q.cfg.RetryBase) * math.Pow(q.cfg.RetryFactor, float64(attempts)))
	if q.cfg.RetryCap > 0 && delay > q.cfg.RetryCap {
		delay = q.cfg.RetryCap
	}
	return delay
}

func (q *Queue) setProgress(ctx context.Context, id string, progress int) {
	if err := q.store.SetProgress(ctx, id, progress); err != nil {
		logger := logging.WithJob(id)
		logger.Warn().Err(err).Int("progress", progress).Msg("Progress update failed")
	}
}

func (q *Queue) sweepLoop(ctx context.Context) {
	interval := q.cfg.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Startup sweep, then periodic.
	q.sweep(ctx)
	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep(ctx)
		}
	}
}

func (q *Queue) sweep(ctx context.Context) {
	if q.cfg.Retention <= 0 {
		return
	}
	purged, err := q.store.Purge(ctx, time.Now().Add(-q.cfg.Retention))
	if err != nil {
		logger := logging.WithComponent("queue")
		logger.Error().Err(err).Msg("Retention sweep failed")
		return
	}
	if purged > 0 {
		q.metrics.JobsPurged.Add(float64(purged))
		logger := logging.WithComponent("queue")
		logger.Info().Int("purged", purged).Msg("Purged jobs past retention")
	}
}

func (q *Queue) publishEvent(ctx context.Context, jobID, eventType string, state models.JobState, attempts int, errText string) {
	ev := jobEvent{
		EventType: eventType,
		JobID:     jobID,
		State:     string(state),
		Attempts:  attempts,
		Error:     errText,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := q.publisher.PublishJobEvent(ctx, jobID, ev); err != nil {
		logger := logging.WithJob(jobID)
		logger.Warn().Err(err).Msg("Failed to publish job event")
	}
}
