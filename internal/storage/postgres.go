package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/cuongbtq/answer-relay/shared/postgresql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Schema creates the jobs table when it does not exist yet
const Schema = `
	CREATE TABLE IF NOT EXISTS ask_jobs (
		job_id       TEXT PRIMARY KEY,
		owner        TEXT NOT NULL,
		status       TEXT NOT NULL,
		request      TEXT NOT NULL,
		result       TEXT,
		links        TEXT[],
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_ask_jobs_owner_created ON ask_jobs (owner, created_at);
	CREATE INDEX IF NOT EXISTS idx_ask_jobs_pending ON ask_jobs (created_at) WHERE status = 'PENDING';
`

type jobRow struct {
	JobID     string         `db:"job_id"`
	Owner     string         `db:"owner"`
	Status    string         `db:"status"`
	Request   string         `db:"request"`
	Result    sql.NullString `db:"result"`
	Links     pq.StringArray `db:"links"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r *jobRow) toDomain() domain.Job {
	job := domain.Job{
		JobID:     r.JobID,
		Owner:     r.Owner,
		Status:    r.Status,
		Request:   r.Request,
		CreatedAt: r.CreatedAt,
	}
	if r.Result.Valid {
		result := r.Result.String
		job.Result = &result
	}
	if r.Links != nil {
		job.Links = []string(r.Links)
	}
	return job
}

// PostgresStore keeps jobs in the ask_jobs table
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a store on top of the shared PostgreSQL client
func NewPostgresStore(pg *postgresql.Client, logger *slog.Logger) *PostgresStore {
	return NewPostgresStoreFromDB(pg.GetDB(), logger)
}

// NewPostgresStoreFromDB creates a store from an existing sqlx handle
func NewPostgresStoreFromDB(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Migrate applies the jobs schema
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, owner, request string) (string, error) {
	query := `
		INSERT INTO ask_jobs (job_id, owner, status, request, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING job_id
	`

	var jobID string
	err := s.db.QueryRowxContext(ctx, query, uuid.New().String(), owner, domain.JobStatusPending, request).Scan(&jobID)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	return jobID, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, owner, jobID string) (*domain.Job, error) {
	query := `
		SELECT job_id, owner, status, request, result, links, created_at
		FROM ask_jobs
		WHERE owner = $1 AND job_id = $2
	`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, owner, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job := row.toDomain()
	return &job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, owner string) ([]domain.Job, error) {
	query := `
		SELECT job_id, owner, status, request, result, links, created_at
		FROM ask_jobs
		WHERE owner = $1
		ORDER BY created_at ASC, job_id ASC
	`

	return s.selectJobs(ctx, query, owner)
}

func (s *PostgresStore) ListPending(ctx context.Context, offset, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT job_id, owner, status, request, result, links, created_at
		FROM ask_jobs
		WHERE status = $1
		ORDER BY created_at ASC, job_id ASC
		LIMIT $2 OFFSET $3
	`

	return s.selectJobs(ctx, query, domain.JobStatusPending, limit, offset)
}

func (s *PostgresStore) selectJobs(ctx context.Context, query string, args ...interface{}) ([]domain.Job, error) {
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toDomain()
	}
	return jobs, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, owner, jobID, result string, links []string) error {
	query := `
		UPDATE ask_jobs
		SET status = $1,
			result = $2,
			links = $3,
			completed_at = NOW()
		WHERE owner = $4 AND job_id = $5 AND status = $6
	`

	res, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCompleted, result, pq.StringArray(links), owner, jobID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := s.GetJob(ctx, owner, jobID); err != nil {
			return err
		}
		return domain.ErrJobNotPending
	}

	s.logger.Info("Job completed",
		slog.String("owner", owner),
		slog.String("job_id", jobID),
		slog.Int("links", len(links)),
	)

	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
