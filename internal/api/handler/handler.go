package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/image-worker/internal/api/model"
	"github.com/cuongbtq/image-worker/internal/api/storage"
)

// JobStore is the journal the handlers read and write
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	DeleteJob(ctx context.Context, jobID string) error
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
}

// Publisher sends job messages to the work queue
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// HealthChecker reports whether a dependency is usable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     JobStore
	Publisher Publisher
	Checks    map[string]HealthChecker
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	store     JobStore
	publisher Publisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		publisher: deps.Publisher,
	}
}
