package handler

import (
	"cmp"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/cuongbtq/answer-relay/internal/api/dto"
	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListJobs handles GET /api/v1/users/:userId/jobs
// Lists the owner's jobs oldest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	owner := c.Param("userId")

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
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
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to list jobs",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	slices.SortStableFunc(jobs, func(a, b domain.Job) int {
		if byTime := a.CreatedAt.Compare(b.CreatedAt); byTime != 0 {
			return byTime
		}
		return cmp.Compare(a.JobID, b.JobID)
	})

	var (
		page       = make([]dto.JobDTO, 0, req.PageSize)
		last       domain.Job
		nextCursor string
	)
	for _, job := range jobs {
		if !cursor.After(job.CreatedAt, job.JobID) {
			continue
		}
		if len(page) == req.PageSize {
			nextCursor = EncodeJobCursor(&JobCursor{CreatedAt: last.CreatedAt, JobID: last.JobID})
			break
		}
		page = append(page, toJobDTO(job))
		last = job
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       page,
		NextCursor: nextCursor,
	})
}

// GetJob handles GET /api/v1/users/:userId/jobs/:jobId
func (h *JobHandler) GetJob(c *gin.Context) {
	owner := c.Param("userId")
	jobID := c.Param("jobId")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "jobId must be a valid UUID"})
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), owner, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found"})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("owner", owner),
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(*job))
}

func toJobDTO(job domain.Job) dto.JobDTO {
	return dto.JobDTO{
		JobID:     job.JobID,
		Owner:     job.Owner,
		Status:    job.Status,
		Request:   job.Request,
		Result:    job.Result,
		Links:     job.Links,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
