package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
)

// Response statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Progress stages reported to a ProgressFunc
const (
	StageSubmitted = "submitted"
	StageWaiting   = "waiting"
)

// Response is the outcome of one request. Status is StatusOK with Answer and
// Links set, or StatusError with Message and Err set.
type Response struct {
	Status  string
	JobID   string
	Answer  *string
	Links   []string
	Message string
	Err     error
}

// Progress describes a step of an in-flight request
type Progress struct {
	Stage   string
	JobID   string
	Attempt int
}

// ProgressFunc receives progress updates while a request is handled
type ProgressFunc func(Progress)

// Config holds coordinator dependencies and the polling policy
type Config struct {
	Submitter    *Submitter
	Poller       *Poller
	Logger       *slog.Logger
	MaxAttempts  int
	PollInterval time.Duration
	// IncludeLinks selects the response variant carrying supporting links
	IncludeLinks bool
}

// Coordinator drives submit, poll and response assembly for one request
type Coordinator struct {
	submitter    *Submitter
	poller       *Poller
	logger       *slog.Logger
	maxAttempts  int
	pollInterval time.Duration
	includeLinks bool
}

// NewCoordinator creates a Coordinator, falling back to the default budget
// of 100 attempts at 500ms
func NewCoordinator(cfg *Config) *Coordinator {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = domain.DefaultPollInterval
	}

	return &Coordinator{
		submitter:    cfg.Submitter,
		poller:       cfg.Poller,
		logger:       cfg.Logger,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
		includeLinks: cfg.IncludeLinks,
	}
}

// WithLinks returns a copy of the coordinator using the given response variant
func (c *Coordinator) WithLinks(include bool) *Coordinator {
	clone := *c
	clone.includeLinks = include
	return &clone
}

// Handle submits the question and waits for its answer. It never returns an
// error or panics: every failure becomes a StatusError response.
func (c *Coordinator) Handle(ctx context.Context, owner, question string) *Response {
	return c.HandleWithProgress(ctx, owner, question, nil)
}

// HandleWithProgress is Handle with progress reported to fn
func (c *Coordinator) HandleWithProgress(ctx context.Context, owner, question string, fn ProgressFunc) (resp *Response) {
	state := "start"
	logger := c.logger.With(slog.String("owner", owner))

	defer func() {
		if r := recover(); r != nil {
			resp = c.fail(logger, state, "", fmt.Errorf("panic: %v", r))
		}
	}()

	if strings.TrimSpace(owner) == "" || strings.TrimSpace(question) == "" {
		return c.fail(logger, state, "", fmt.Errorf("%w: userId and question are required", domain.ErrBadRequest))
	}

	state = "submitted"
	jobID, err := c.submitter.Submit(ctx, owner, question)
	if err != nil {
		if !errors.Is(err, domain.ErrBadRequest) {
			err = fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
		}
		return c.fail(logger, state, "", err)
	}
	notify(fn, Progress{Stage: StageSubmitted, JobID: jobID})

	state = "polling"
	logger.Debug("Polling for job completion",
		slog.String("job_id", jobID),
		slog.Int("max_attempts", c.maxAttempts),
		slog.Duration("interval", c.pollInterval),
	)

	completed, err := c.poller.WaitForCompletion(ctx, owner, jobID, c.maxAttempts, c.pollInterval,
		WithAttemptHook(func(attempt int) {
			notify(fn, Progress{Stage: StageWaiting, JobID: jobID, Attempt: attempt})
		}),
	)
	if err != nil {
		return c.fail(logger, state, jobID, err)
	}

	logger.Info("Job is ready",
		slog.String("job_id", jobID),
	)

	resp = &Response{
		Status: StatusOK,
		JobID:  jobID,
		Answer: completed.Result,
	}
	if c.includeLinks {
		resp.Links = completed.Links
	}
	return resp
}

func (c *Coordinator) fail(logger *slog.Logger, state, jobID string, err error) *Response {
	logger.Error("Request failed",
		slog.String("state", state),
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)

	return &Response{
		Status:  StatusError,
		JobID:   jobID,
		Message: "issue processing the request: " + err.Error(),
		Err:     err,
	}
}

func notify(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}
