package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"ai-transcription-service/internal/models"
)

// schema is the job table DDL, applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS transcription_jobs (
    id          TEXT PRIMARY KEY,
    state       TEXT NOT NULL,
    progress    INTEGER NOT NULL DEFAULT 0,
    attempts    INTEGER NOT NULL DEFAULT 0,
    request     JSONB NOT NULL,
    audio       BYTEA,
    result      JSONB,
    last_error  TEXT NOT NULL DEFAULT '',
    enqueued_at TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    next_run_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcription_jobs_due
    ON transcription_jobs(state, next_run_at);
`

// PostgresStore is the durable Store implementation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Create persists a new queued job.
func (s *PostgresStore) Create(ctx context.Context, job *models.Job) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcription_jobs
			(id, state, progress, attempts, request, audio, last_error, enqueued_at, updated_at, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.State, job.Progress, job.Attempts, request, job.Request.Audio,
		job.LastError, job.EnqueuedAt, job.UpdatedAt, job.NextRunAt)
	return err
}

func (s *PostgresStore) scanJob(row interface{ Scan(...any) error }) (*models.Job, error) {
	var (
		job     models.Job
		request []byte
		audio   []byte
		result  []byte
	)
	err := row.Scan(&job.ID, &job.State, &job.Progress, &job.Attempts,
		&request, &audio, &result, &job.LastError,
		&job.EnqueuedAt, &job.UpdatedAt, &job.NextRunAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, err
	}
	job.Request.Audio = audio
	if len(result) > 0 {
		job.Result = &models.Result{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

const jobColumns = `id, state, progress, attempts, request, audio, result, last_error, enqueued_at, updated_at, next_run_at`

// Get returns a snapshot of the job.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM transcription_jobs WHERE id = $1`, id)
	return s.scanJob(row)
}

// Dequeue atomically claims the next due queued job using SKIP LOCKED so
// concurrent workers never claim the same job.
func (s *PostgresStore) Dequeue(ctx context.Context, now time.Time) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE transcription_jobs SET state = $1, updated_at = $2
		WHERE id = (
			SELECT id FROM transcription_jobs
			WHERE state = $3 AND next_run_at <= $2
			ORDER BY next_run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		models.JobActive, now, models.JobQueued)
	job, err := s.scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return job, err
}

// SetProgress updates progress on an active job; the WHERE clause enforces
// monotonicity.
func (s *PostgresStore) SetProgress(ctx context.Context, id string, progress int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transcription_jobs SET progress = $1, updated_at = $2
		WHERE id = $3 AND state = $4 AND progress < $1`,
		progress, time.Now(), id, models.JobActive)
	return err
}

// Complete records the result and finishes the job.
func (s *PostgresStore) Complete(ctx context.Context, id string, result *models.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE transcription_jobs
		SET state = $1, progress = 100, result = $2, last_error = '', updated_at = $3
		WHERE id = $4`,
		models.JobCompleted, payload, time.Now(), id)
	return err
}

// Retry reschedules an active job for another attempt.
func (s *PostgresStore) Retry(ctx context.Context, id string, attempts int, lastError string, nextRunAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transcription_jobs
		SET state = $1, attempts = $2, last_error = $3, next_run_at = $4, updated_at = $5
		WHERE id = $6`,
		models.JobQueued, attempts, lastError, nextRunAt, time.Now(), id)
	return err
}

// Fail moves the job to the failed terminal state.
func (s *PostgresStore) Fail(ctx context.Context, id string, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transcription_jobs SET state = $1, last_error = $2, updated_at = $3
		WHERE id = $4`,
		models.JobFailed, lastError, time.Now(), id)
	return err
}

// CancelQueued removes the job iff it is still queued.
func (s *PostgresStore) CancelQueued(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transcription_jobs WHERE id = $1 AND state = $2`,
		id, models.JobQueued)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish "running or finished" from "unknown id".
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM transcription_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

// Purge removes terminal jobs not updated since the cutoff.
func (s *PostgresStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transcription_jobs
		WHERE state IN ($1, $2) AND updated_at < $3`,
		models.JobCompleted, models.JobFailed, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
