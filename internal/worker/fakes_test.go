package worker

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/cuongbtq/answer-relay/internal/indexer"
	"github.com/cuongbtq/answer-relay/internal/storage"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// errStore wraps the memory store and injects errors per operation
type errStore struct {
	*storage.MemoryStore
	getErr      error
	completeErr error
}

func (s *errStore) GetJob(ctx context.Context, owner, jobID string) (*domain.Job, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.GetJob(ctx, owner, jobID)
}

func (s *errStore) CompleteJob(ctx context.Context, owner, jobID, result string, links []string) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	return s.MemoryStore.CompleteJob(ctx, owner, jobID, result, links)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Query(ctx context.Context, question string) (*indexer.Answer, error) {
	args := m.Called(ctx, question)
	answer, _ := args.Get(0).(*indexer.Answer)
	return answer, args.Error(1)
}

// echoSource answers every question with its own text
type echoSource struct{}

func (echoSource) Query(_ context.Context, question string) (*indexer.Answer, error) {
	return &indexer.Answer{Output: "echo: " + question, Links: []string{"https://docs.example/" + question}}, nil
}

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

// fakeAcknowledger records acks and nacks issued on deliveries
type fakeAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, ack: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) all() []settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]settlement(nil), a.settled...)
}

// chanDeliveries hands out a test controlled delivery channel
type chanDeliveries struct {
	ch  chan amqp.Delivery
	tag string
}

func (d *chanDeliveries) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	d.tag = consumerTag
	return d.ch, nil
}

// failingSource rejects questions with a given prefix and counts every call
type failingSource struct {
	prefix string

	mu    sync.Mutex
	calls map[string]int
}

func (s *failingSource) Query(_ context.Context, question string) (*indexer.Answer, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[question]++
	s.mu.Unlock()

	if strings.HasPrefix(question, s.prefix) {
		return nil, &indexer.QueryError{Message: "no documents match"}
	}
	return &indexer.Answer{Output: "answer: " + question, Links: []string{}}, nil
}

func (s *failingSource) count(question string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[question]
}
