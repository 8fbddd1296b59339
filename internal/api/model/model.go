package model

import "time"

// Job is a row of the image_jobs journal
type Job struct {
	JobID         string     `db:"job_id"`
	ImageURL      string     `db:"image_url"`
	Status        string     `db:"status"`
	Attempts      int        `db:"attempts"`
	DerivativeKey string     `db:"derivative_key"`
	ErrorMessage  string     `db:"error_message"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	CompletedAt   *time.Time `db:"completed_at"`
}
