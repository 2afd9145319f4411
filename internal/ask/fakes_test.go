package ask

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/cuongbtq/answer-relay/internal/storage"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore wraps the memory store with read counting, scripted read errors
// and an optional completion triggered on the nth read.
type fakeStore struct {
	*storage.MemoryStore

	mu             sync.Mutex
	reads          int
	creates        int
	completeOnRead int
	result         string
	links          []string
	readErrs       map[int]error
	createErr      error
	emptyID        bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		MemoryStore: storage.NewMemoryStore(),
		readErrs:    map[int]error{},
	}
}

func (f *fakeStore) CreateJob(ctx context.Context, owner, request string) (string, error) {
	f.mu.Lock()
	f.creates++
	createErr, emptyID := f.createErr, f.emptyID
	f.mu.Unlock()

	if createErr != nil {
		return "", createErr
	}
	if emptyID {
		return "", nil
	}
	return f.MemoryStore.CreateJob(ctx, owner, request)
}

func (f *fakeStore) GetJob(ctx context.Context, owner, jobID string) (*domain.Job, error) {
	f.mu.Lock()
	f.reads++
	n := f.reads
	readErr := f.readErrs[n]
	complete := f.completeOnRead > 0 && n == f.completeOnRead
	f.mu.Unlock()

	if complete {
		_ = f.MemoryStore.CompleteJob(ctx, owner, jobID, f.result, f.links)
	}
	if readErr != nil {
		return nil, readErr
	}
	return f.MemoryStore.GetJob(ctx, owner, jobID)
}

func (f *fakeStore) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeStore) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

// listOnlyStore exposes ListJobs only, forcing the poller to scan
type listOnlyStore struct {
	jobs []domain.Job
}

func (s *listOnlyStore) ListJobs(context.Context, string) ([]domain.Job, error) {
	return s.jobs, nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	args := m.Called(ctx, body, contentType)
	return args.Error(0)
}
