package dto

import (
	"time"

	"github.com/cuongbtq/image-worker/internal/api/model"
)

type CreateJobRequest struct {
	ImageURL string `json:"image_url" binding:"required,url"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID         string `json:"job_id"`
	ImageURL      string `json:"image_url"`
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	DerivativeKey string `json:"derivative_key,omitempty"`
	Error         string `json:"error,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// NewJobDTO converts a journal row into its API representation
func NewJobDTO(job *model.Job) JobDTO {
	out := JobDTO{
		JobID:         job.JobID,
		ImageURL:      job.ImageURL,
		Status:        job.Status,
		Attempts:      job.Attempts,
		DerivativeKey: job.DerivativeKey,
		Error:         job.ErrorMessage,
		CreatedAt:     job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     job.UpdatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		out.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return out
}
