// Package storage holds the job store used by the API and worker services.
//
// Jobs are partitioned by owner. Each implementation assigns the job id and
// creation timestamp itself and only allows the PENDING -> COMPLETED
// transition once.
package storage

import (
	"context"

	"github.com/cuongbtq/answer-relay/internal/domain"
)

// Supported storage drivers
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// JobStore is the durable store of job records keyed by (owner, job id)
type JobStore interface {
	// CreateJob stores a new PENDING job and returns its generated id
	CreateJob(ctx context.Context, owner, request string) (string, error)

	// GetJob returns a single job or domain.ErrJobNotFound
	GetJob(ctx context.Context, owner, jobID string) (*domain.Job, error)

	// ListJobs returns all jobs of an owner in creation order
	ListJobs(ctx context.Context, owner string) ([]domain.Job, error)

	// ListPending returns up to limit PENDING jobs across all owners, oldest
	// first, skipping the first offset of them. A non-positive limit returns
	// nothing.
	ListPending(ctx context.Context, offset, limit int) ([]domain.Job, error)

	// CompleteJob moves a PENDING job to COMPLETED with its result and links
	CompleteJob(ctx context.Context, owner, jobID, result string, links []string) error

	// Ping checks that the backing store is reachable
	Ping(ctx context.Context) error
}
