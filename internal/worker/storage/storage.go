package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// Schema creates the job journal shared by the worker and the API
const Schema = `
CREATE TABLE IF NOT EXISTS image_jobs (
	job_id            TEXT PRIMARY KEY,
	image_url         TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	attempts          INTEGER NOT NULL DEFAULT 0,
	worker_id         TEXT,
	derivative_key    TEXT NOT NULL DEFAULT '',
	error_message     TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS image_jobs_created_at_idx ON image_jobs (created_at DESC, job_id DESC);
`

// Storage records processing attempts in the job journal
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the journal table if it does not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// MarkRunning records the start of an attempt. Jobs published without going
// through the API have no row yet, so the row is created on demand.
func (s *Storage) MarkRunning(ctx context.Context, job *domain.Job, workerID string) error {
	query := `
		INSERT INTO image_jobs (job_id, image_url, status, attempts, worker_id, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status,
		    image_url = EXCLUDED.image_url,
		    attempts = GREATEST(image_jobs.attempts, EXCLUDED.attempts),
		    worker_id = EXCLUDED.worker_id,
		    started_at = NOW(),
		    updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query, job.ID, job.ImageURL, domain.JobStatusRunning, job.DeliveryCount, workerID)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	return nil
}

// RecordOutcome stores the status reached by an attempt
func (s *Storage) RecordOutcome(ctx context.Context, jobID, status, derivativeKey, errorMsg string) error {
	query := `
		UPDATE image_jobs
		SET status = $1::text,
			derivative_key = CASE WHEN $2 <> '' THEN $2 ELSE derivative_key END,
			error_message = $3,
			completed_at = CASE
				WHEN $1::text IN ($4::text, $5::text) THEN NOW()
				ELSE NULL
			END,
			updated_at = NOW()
		WHERE job_id = $6
	`

	result, err := s.db.ExecContext(ctx, query, status, derivativeKey, errorMsg, domain.JobStatusCompleted, domain.JobStatusDeadLettered, jobID)
	if err != nil {
		return fmt.Errorf("failed to record job outcome: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job outcome not recorded - no journal row",
			slog.String("job_id", jobID),
			slog.String("status", status),
		)
	}

	return nil
}
