package worker

import (
	"errors"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
)

const defaultRetryBackoffMax = time.Minute

// retryState tracks consecutive failures of a job the scanner keeps finding
type retryState struct {
	failures  int
	notBefore time.Time
}

// retryDelay starts at the scan interval and doubles per failure up to backoffMax
func (w *Worker) retryDelay(failures int) time.Duration {
	delay := w.scanInterval
	for i := 1; i < failures && delay < w.backoffMax; i++ {
		delay *= 2
	}
	if delay > w.backoffMax {
		delay = w.backoffMax
	}
	return delay
}

// recordOutcome schedules the next scan of a failed job. Success or a job
// that is gone clears its history.
func (w *Worker) recordOutcome(msg domain.JobMessage, err error, now time.Time) {
	key := jobKey(msg)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err == nil || errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrInvalidMessage) {
		delete(w.retries, key)
		return
	}

	state := w.retries[key]
	state.failures++
	state.notBefore = now.Add(w.retryDelay(state.failures))
	w.retries[key] = state
}

// due reports whether the scanner may dispatch the job at now
func (w *Worker) due(msg domain.JobMessage, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, ok := w.retries[jobKey(msg)]
	return !ok || !now.Before(state.notBefore)
}
