package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/answer-relay/internal/domain"
)

// JobCreator creates PENDING jobs and returns the generated id
type JobCreator interface {
	CreateJob(ctx context.Context, owner, request string) (string, error)
}

// Publisher announces new jobs to the answer producer
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Submitter turns a request into a PENDING job
type Submitter struct {
	store     JobCreator
	publisher Publisher
	logger    *slog.Logger
}

// NewSubmitter creates a Submitter. publisher may be nil, in which case the
// producer only learns about jobs through its pending scan.
func NewSubmitter(store JobCreator, publisher Publisher, logger *slog.Logger) *Submitter {
	return &Submitter{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Submit creates exactly one job for owner and returns its id. A failed store
// write is reported as domain.ErrCreateFailed and never retried here.
func (s *Submitter) Submit(ctx context.Context, owner, request string) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", fmt.Errorf("%w: owner is required", domain.ErrBadRequest)
	}

	jobID, err := s.store.CreateJob(ctx, owner, request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCreateFailed, err)
	}
	if jobID == "" {
		return "", fmt.Errorf("%w: store returned no job id", domain.ErrCreateFailed)
	}

	s.logger.Info("Created job",
		slog.String("owner", owner),
		slog.String("job_id", jobID),
	)

	s.enqueue(ctx, owner, jobID)

	return jobID, nil
}

// enqueue publishes the job message; failures are logged only
func (s *Submitter) enqueue(ctx context.Context, owner, jobID string) {
	if s.publisher == nil {
		return
	}

	body, err := json.Marshal(domain.JobMessage{Owner: owner, JobID: jobID})
	if err != nil {
		s.logger.Error("Failed to encode job message",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		s.logger.Warn("Failed to publish job message, relying on pending scan",
			slog.String("owner", owner),
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
