package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/answer-relay/internal/ask"
	"github.com/cuongbtq/answer-relay/internal/domain"
)

// JobReader is the read side of the job store used by the job views
type JobReader interface {
	GetJob(ctx context.Context, owner, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, owner string) ([]domain.Job, error)
}

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string
	Coordinator *ask.Coordinator
	Jobs        JobReader
	Store       Pinger
}

// ActionHandler serves the question endpoints
type ActionHandler struct {
	logger      *slog.Logger
	coordinator *ask.Coordinator
}

// NewActionHandler creates a new ActionHandler instance
func NewActionHandler(deps *Dependencies) *ActionHandler {
	return &ActionHandler{
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
	}
}

// JobHandler serves the read-only job views
type JobHandler struct {
	logger *slog.Logger
	jobs   JobReader
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}

// HealthHandler serves the liveness probe
type HealthHandler struct {
	service string
	store   Pinger
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		service: deps.ServiceName,
		store:   deps.Store,
	}
}
