package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/answer-relay/internal/domain"
)

// processJob answers one job. A job that is no longer PENDING is skipped.
func (w *Worker) processJob(ctx context.Context, msg domain.JobMessage) error {
	logger := w.logger.With(
		slog.String("owner", msg.Owner),
		slog.String("job_id", msg.JobID),
	)

	job, err := w.store.GetJob(ctx, msg.Owner, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("failed to load job: %w", err))
	}

	if job.Status != domain.JobStatusPending {
		logger.Debug("Skipping job that is not pending", slog.String("status", job.Status))
		return nil
	}

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	answer, err := w.source.Query(jobCtx, job.Request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return domain.NewRetryableError(fmt.Errorf("answer timed out after %s: %w", w.jobTimeout, err))
		}
		return fmt.Errorf("failed to answer job: %w", err)
	}

	err = w.store.CompleteJob(ctx, job.Owner, job.JobID, answer.Output, answer.Links)
	switch {
	case err == nil:
		logger.Info("Job completed",
			slog.Int("links", len(answer.Links)),
		)
		return nil
	case errors.Is(err, domain.ErrJobNotPending):
		logger.Info("Job was completed elsewhere")
		return nil
	case errors.Is(err, domain.ErrJobNotFound):
		return err
	default:
		return domain.NewRetryableError(fmt.Errorf("failed to complete job: %w", err))
	}
}
