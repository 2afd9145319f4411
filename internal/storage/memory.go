package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore is a process-local JobStore for tests and single-process setups
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string][]*domain.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string][]*domain.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, owner, request string) (string, error) {
	job := &domain.Job{
		JobID:     uuid.New().String(),
		Owner:     owner,
		Status:    domain.JobStatusPending,
		Request:   request,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.jobs[owner] = append(s.jobs[owner], job)
	s.mu.Unlock()

	return job.JobID, nil
}

func (s *MemoryStore) GetJob(_ context.Context, owner, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job := s.find(owner, jobID)
	if job == nil {
		return nil, domain.ErrJobNotFound
	}

	c := copyJob(job)
	return &c, nil
}

func (s *MemoryStore) ListJobs(_ context.Context, owner string) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]domain.Job, len(s.jobs[owner]))
	for i, job := range s.jobs[owner] {
		jobs[i] = copyJob(job)
	}
	return jobs, nil
}

func (s *MemoryStore) ListPending(_ context.Context, offset, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []domain.Job
	for _, jobs := range s.jobs {
		for _, job := range jobs {
			if job.Status == domain.JobStatusPending {
				pending = append(pending, copyJob(job))
			}
		}
	}

	sortByCreatedAt(pending)
	if offset >= len(pending) {
		return nil, nil
	}
	pending = pending[offset:]
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *MemoryStore) CompleteJob(_ context.Context, owner, jobID, result string, links []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.find(owner, jobID)
	if job == nil {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		return domain.ErrJobNotPending
	}

	job.Status = domain.JobStatusCompleted
	job.Result = &result
	if links != nil {
		job.Links = append([]string{}, links...)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// find returns the last job matching jobID in the owner's collection
func (s *MemoryStore) find(owner, jobID string) *domain.Job {
	var found *domain.Job
	for _, job := range s.jobs[owner] {
		if job.JobID == jobID {
			found = job
		}
	}
	return found
}

func copyJob(job *domain.Job) domain.Job {
	c := *job
	if job.Result != nil {
		result := *job.Result
		c.Result = &result
	}
	if job.Links != nil {
		c.Links = append([]string{}, job.Links...)
	}
	return c
}

func sortByCreatedAt(jobs []domain.Job) {
	slices.SortStableFunc(jobs, func(a, b domain.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.JobID, b.JobID)
	})
}
