// Package worker is the answer producer: it takes PENDING jobs from the
// broker and from a periodic store scan, asks the indexer for an answer and
// completes the job.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/cuongbtq/answer-relay/internal/indexer"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

const defaultScanBatchSize = 50

// JobStore is the part of the job store the producer needs
type JobStore interface {
	GetJob(ctx context.Context, owner, jobID string) (*domain.Job, error)
	ListPending(ctx context.Context, offset, limit int) ([]domain.Job, error)
	CompleteJob(ctx context.Context, owner, jobID, result string, links []string) error
}

// AnswerSource produces an answer for a question
type AnswerSource interface {
	Query(ctx context.Context, question string) (*indexer.Answer, error)
}

// DeliverySource yields broker deliveries announcing new jobs
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         JobStore
	Source        AnswerSource
	Deliveries    DeliverySource // optional
	WorkerID      string
	Concurrency   int
	JobTimeout    time.Duration
	ScanInterval  time.Duration
	ScanBatchSize int

	// RetryBackoffMax caps the delay before the scanner retries a failed job
	RetryBackoffMax time.Duration
}

// Worker represents the background answer producer
type Worker struct {
	logger        *slog.Logger
	store         JobStore
	source        AnswerSource
	deliveries    DeliverySource
	workerID      string
	concurrency   int
	jobTimeout    time.Duration
	scanInterval  time.Duration
	scanBatchSize int
	backoffMax    time.Duration

	jobsChan chan *task

	mu       sync.Mutex
	inFlight map[string]struct{}
	retries  map[string]retryState
}

// task is one job handed to the pool. delivery is nil for jobs found by
// the pending scan.
type task struct {
	msg      domain.JobMessage
	delivery *amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	scanInterval := cfg.ScanInterval
	if scanInterval <= 0 {
		scanInterval = domain.DefaultPollInterval
	}

	scanBatchSize := cfg.ScanBatchSize
	if scanBatchSize <= 0 {
		scanBatchSize = defaultScanBatchSize
	}

	backoffMax := cfg.RetryBackoffMax
	if backoffMax <= 0 {
		backoffMax = defaultRetryBackoffMax
	}
	if backoffMax < scanInterval {
		backoffMax = scanInterval
	}

	return &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		source:        cfg.Source,
		deliveries:    cfg.Deliveries,
		workerID:      workerID,
		concurrency:   concurrency,
		jobTimeout:    cfg.JobTimeout,
		scanInterval:  scanInterval,
		scanBatchSize: scanBatchSize,
		backoffMax:    backoffMax,
		jobsChan:      make(chan *task),
		inFlight:      make(map[string]struct{}),
		retries:       make(map[string]retryState),
	}
}

// ID returns the worker identifier used as the consumer tag
func (w *Worker) ID() string {
	return w.workerID
}

// Start runs the pool, the pending scanner and, when configured, the broker
// dispatcher until ctx is canceled or one of them fails.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Duration("scan_interval", w.scanInterval),
	)

	g, gctx := errgroup.WithContext(ctx)

	w.spawnWorkerPool(gctx, g)

	if w.deliveries != nil {
		deliveries, err := w.setupConsumer()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return w.startMessageDispatcher(gctx, deliveries)
		})
	}

	g.Go(func() error {
		w.runScanner(gctx)
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("Worker stopped with error",
			slog.String("worker_id", w.workerID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("worker %s: %w", w.workerID, err)
	}

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return nil
}

// claim marks a job as in flight and reports whether the caller owns it
func (w *Worker) claim(msg domain.JobMessage) bool {
	key := jobKey(msg)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, busy := w.inFlight[key]; busy {
		return false
	}
	w.inFlight[key] = struct{}{}
	return true
}

func (w *Worker) release(msg domain.JobMessage) {
	w.mu.Lock()
	delete(w.inFlight, jobKey(msg))
	w.mu.Unlock()
}

func jobKey(msg domain.JobMessage) string {
	return msg.Owner + "/" + msg.JobID
}
