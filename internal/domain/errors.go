package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest is returned when owner or question is missing
	ErrBadRequest = errors.New("bad request")

	// ErrCreateFailed is returned when the store did not yield a job id
	ErrCreateFailed = errors.New("unable to create new job")

	// ErrSubmissionFailed is the request-level form of ErrCreateFailed
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrRetryExhausted is returned when polling consumed its budget without seeing COMPLETED
	ErrRetryExhausted = errors.New("too many retries for request")

	// ErrStoreReadFailed marks a read error while polling
	ErrStoreReadFailed = errors.New("job store read failed")

	// ErrJobNotFound is returned when a job cannot be found for the owner
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotPending is returned when completing a job that already left PENDING
	ErrJobNotPending = errors.New("job is not in PENDING status")

	// ErrInvalidMessage is returned when a broker message cannot be decoded
	ErrInvalidMessage = errors.New("invalid job message")
)

// RetryExhaustedError carries the context of a poll that gave up
type RetryExhaustedError struct {
	Owner    string
	JobID    string
	Attempts int
	// Observed is false when the job never appeared in the store during polling
	Observed bool
}

func (e *RetryExhaustedError) Error() string {
	state := "still pending"
	if !e.Observed {
		state = "never observed"
	}
	return fmt.Sprintf("%s: job %s of owner %s %s after %d attempts",
		ErrRetryExhausted.Error(), e.JobID, e.Owner, state, e.Attempts)
}

func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
