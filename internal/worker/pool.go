package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"golang.org/x/sync/errgroup"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context, g *errgroup.Group) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		i := i
		g.Go(func() error {
			w.workerLoop(ctx, i)
			return nil
		})
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case t := <-w.jobsChan:
			w.handleTask(ctx, workerName, t)
		}
	}
}

func (w *Worker) handleTask(ctx context.Context, workerName string, t *task) {
	defer w.release(t.msg)

	err := w.processJob(ctx, t.msg)
	w.recordOutcome(t.msg, err, time.Now())
	if err == nil {
		w.settle(t.delivery, true, false)
		return
	}

	redelivered := t.delivery != nil && t.delivery.Redelivered
	requeue := shouldRequeueJob(err, redelivered)

	w.logger.Error("Job processing failed",
		slog.String("worker_name", workerName),
		slog.String("owner", t.msg.Owner),
		slog.String("job_id", t.msg.JobID),
		slog.Bool("requeue", requeue),
		slog.String("error", err.Error()),
	)

	w.settle(t.delivery, false, requeue)
}

// shouldRequeueJob requeues transient failures once. Anything else is left
// PENDING in the store for the scanner to retry.
func shouldRequeueJob(err error, redelivered bool) bool {
	if redelivered {
		return false
	}

	if errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrInvalidMessage) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
