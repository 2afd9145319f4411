package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
)

// JobLister reads every job of an owner
type JobLister interface {
	ListJobs(ctx context.Context, owner string) ([]domain.Job, error)
}

// JobGetter reads a single job. Stores implementing it are polled by id
// instead of scanning the owner's whole collection.
type JobGetter interface {
	GetJob(ctx context.Context, owner, jobID string) (*domain.Job, error)
}

// PollOption customizes a single WaitForCompletion call
type PollOption func(*pollOptions)

type pollOptions struct {
	onAttempt func(attempt int)
}

// WithAttemptHook registers fn to run before every attempt
func WithAttemptHook(fn func(attempt int)) PollOption {
	return func(o *pollOptions) {
		o.onAttempt = fn
	}
}

// Poller waits for a job to reach COMPLETED within an attempt budget
type Poller struct {
	store  JobLister
	logger *slog.Logger
}

// NewPoller creates a Poller reading from store
func NewPoller(store JobLister, logger *slog.Logger) *Poller {
	return &Poller{
		store:  store,
		logger: logger,
	}
}

// WaitForCompletion reads the job up to maxAttempts times, pausing interval
// between reads. Absent and PENDING jobs both keep the loop going; read errors
// are logged and count as an attempt. The budget is attempt-counted, so a slow
// store stretches the total wait without changing how many reads happen.
func (p *Poller) WaitForCompletion(ctx context.Context, owner, jobID string, maxAttempts int, interval time.Duration, opts ...PollOption) (*domain.CompletedJob, error) {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	var o pollOptions
	for _, opt := range opts {
		opt(&o)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	observed := false
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("polling job %s stopped: %w", jobID, err)
		}

		if o.onAttempt != nil {
			o.onAttempt(attempt)
		}

		job, err := p.lookup(ctx, owner, jobID)
		switch {
		case err == nil:
			observed = true
			if job.IsCompleted() {
				p.logger.Debug("Job completed",
					slog.String("job_id", jobID),
					slog.Int("attempt", attempt),
				)
				return &domain.CompletedJob{
					JobID:  job.JobID,
					Result: job.Result,
					Links:  job.Links,
				}, nil
			}
		case errors.Is(err, domain.ErrJobNotFound):
		default:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("polling job %s stopped: %w", jobID, ctx.Err())
			}
			readErr := fmt.Errorf("%w: %v", domain.ErrStoreReadFailed, err)
			p.logger.Warn("Continuing to poll after read error",
				slog.String("owner", owner),
				slog.String("job_id", jobID),
				slog.Int("attempt", attempt),
				slog.Any("error", readErr),
			)
		}

		p.logger.Debug("Job is pending",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt),
			slog.Bool("observed", observed),
		)

		if attempt >= maxAttempts {
			return nil, &domain.RetryExhaustedError{
				Owner:    owner,
				JobID:    jobID,
				Attempts: attempt,
				Observed: observed,
			}
		}

		if timer == nil {
			timer = time.NewTimer(interval)
		} else {
			timer.Reset(interval)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("polling job %s stopped: %w", jobID, ctx.Err())
		case <-timer.C:
		}
	}
}

// lookup finds jobID among the owner's jobs. Without a JobGetter the whole
// collection is scanned and the last matching record wins.
func (p *Poller) lookup(ctx context.Context, owner, jobID string) (*domain.Job, error) {
	if getter, ok := p.store.(JobGetter); ok {
		return getter.GetJob(ctx, owner, jobID)
	}

	jobs, err := p.store.ListJobs(ctx, owner)
	if err != nil {
		return nil, err
	}

	var found *domain.Job
	for i := range jobs {
		if jobs[i].JobID == jobID {
			found = &jobs[i]
		}
	}
	if found == nil {
		return nil, domain.ErrJobNotFound
	}
	return found, nil
}
