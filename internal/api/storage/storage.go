package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/image-worker/internal/api/domain"
	"github.com/cuongbtq/image-worker/internal/api/model"
	journal "github.com/cuongbtq/image-worker/internal/worker/storage"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, image_url, status, attempts, derivative_key,
	error_message, created_at, updated_at, completed_at
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// EnsureSchema creates the journal table shared with the worker
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, journal.Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Storage) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO image_jobs (
			job_id, image_url, status, attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.ImageURL,
		job.Status,
		job.Attempts,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// DeleteJob removes a job that never reached the queue
func (s *Storage) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM image_jobs WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM image_jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 rows, newest first, so the caller can
// tell whether another page exists.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM image_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
