package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/image-worker/internal/api/domain"
	"github.com/cuongbtq/image-worker/internal/api/dto"
	"github.com/cuongbtq/image-worker/internal/api/model"
	"github.com/cuongbtq/image-worker/internal/api/storage"
	workerdomain "github.com/cuongbtq/image-worker/internal/worker/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var listableStatuses = map[string]bool{
	workerdomain.JobStatusPending:      true,
	workerdomain.JobStatusRunning:      true,
	workerdomain.JobStatusCompleted:    true,
	workerdomain.JobStatusRetrying:     true,
	workerdomain.JobStatusDeadLettered: true,
}

// CreateJob handles POST /api/v1/jobs
// Records a PENDING job and publishes it to the work queue
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "image_url must be an absolute URL",
		})
		return
	}

	now := time.Now().UTC()
	job := model.Job{
		JobID:     uuid.New().String(),
		ImageURL:  req.ImageURL,
		Status:    workerdomain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx := c.Request.Context()
	if err := h.store.CreateJob(ctx, &job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	body, err := json.Marshal(workerdomain.JobMessage{ID: job.JobID, ImageURL: job.ImageURL})
	if err != nil {
		h.logger.Error("Failed to encode job message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	if err := h.publisher.Publish(ctx, body, "application/json"); err != nil {
		h.logger.Error("Failed to publish job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		if delErr := h.store.DeleteJob(ctx, job.JobID); delErr != nil {
			h.logger.Error("Failed to remove unpublished job",
				slog.String("job_id", job.JobID),
				slog.String("error", delErr.Error()),
			)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Job queue unavailable",
		})
		return
	}

	h.logger.Info("Job submitted",
		slog.String("job_id", job.JobID),
		slog.String("image_url", job.ImageURL),
	)

	c.JSON(http.StatusAccepted, dto.NewJobDTO(&job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if !workerdomain.ValidJobID(jobID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid job_id",
		})
		return
	}

	job, err := h.store.GetJobByID(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with cursor pagination and an optional status filter
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !listableStatuses[req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown status",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), storage.JobFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = dto.NewJobDTO(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}
