package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
)

// runScanner feeds PENDING jobs from the store into the pool every scan
// interval. It picks up jobs whose broker message was lost or dropped.
func (w *Worker) runScanner(ctx context.Context) {
	w.logger.Info("Pending scanner started",
		slog.Duration("interval", w.scanInterval),
		slog.Int("batch_size", w.scanBatchSize),
	)

	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()

	for {
		if !w.scanOnce(ctx) {
			return
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Pending scanner stopped - context canceled")
			return
		case <-ticker.C:
		}
	}
}

// scanOnce sweeps the whole pending set page by page so jobs that keep
// failing cannot hide newer ones. Jobs waiting out a retry delay are
// skipped. It returns false once ctx is done.
func (w *Worker) scanOnce(ctx context.Context) bool {
	now := time.Now()

	for offset := 0; ; {
		jobs, err := w.store.ListPending(ctx, offset, w.scanBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			w.logger.Warn("Failed to list pending jobs",
				slog.Int("offset", offset),
				slog.String("error", err.Error()),
			)
			return true
		}

		for _, job := range jobs {
			msg := domain.JobMessage{Owner: job.Owner, JobID: job.JobID}
			if !w.due(msg, now) || !w.claim(msg) {
				continue
			}

			select {
			case w.jobsChan <- &task{msg: msg}:
			case <-ctx.Done():
				w.release(msg)
				return false
			}
		}

		if len(jobs) < w.scanBatchSize {
			break
		}
		offset += len(jobs)
	}

	return ctx.Err() == nil
}
