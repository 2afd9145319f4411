package ask

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func TestPoller_CompletesWithinBudget(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.completeOnRead = 3
	store.result = "4"
	store.links = []string{"math.md"}

	jobID, err := store.CreateJob(ctx, "u1", "what is 2+2")
	require.NoError(t, err)

	poller := NewPoller(store, newTestLogger())

	completed, err := poller.WaitForCompletion(ctx, "u1", jobID, 10, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, jobID, completed.JobID)
	assert.Equal(t, "4", *completed.Result)
	assert.Equal(t, []string{"math.md"}, completed.Links)
	assert.Equal(t, 3, store.readCount())

	// a completed job reads back identically on the first attempt
	again, err := poller.WaitForCompletion(ctx, "u1", jobID, 10, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, completed, again)
	assert.Equal(t, 4, store.readCount())
}

func TestPoller_RetryExhausted(t *testing.T) {
	tests := []struct {
		name         string
		jobID        func(t *testing.T, s *fakeStore) string
		wantObserved bool
	}{
		{
			name: "job stays pending",
			jobID: func(t *testing.T, s *fakeStore) string {
				id, err := s.CreateJob(context.Background(), "u2", "slow question")
				require.NoError(t, err)
				return id
			},
			wantObserved: true,
		},
		{
			name: "job never found",
			jobID: func(*testing.T, *fakeStore) string {
				return "missing"
			},
			wantObserved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			jobID := tt.jobID(t, store)
			poller := NewPoller(store, newTestLogger())

			completed, err := poller.WaitForCompletion(context.Background(), "u2", jobID, 5, time.Millisecond)
			require.Error(t, err)
			assert.Nil(t, completed)
			assert.ErrorIs(t, err, domain.ErrRetryExhausted)

			var exhausted *domain.RetryExhaustedError
			require.True(t, errors.As(err, &exhausted))
			assert.Equal(t, 5, exhausted.Attempts)
			assert.Equal(t, "u2", exhausted.Owner)
			assert.Equal(t, jobID, exhausted.JobID)
			assert.Equal(t, tt.wantObserved, exhausted.Observed)
			assert.Equal(t, 5, store.readCount())
		})
	}
}

func TestPoller_SwallowsReadErrors(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.readErrs[1] = errors.New("deadline exceeded")
	store.readErrs[2] = errors.New("unavailable")
	store.completeOnRead = 3
	store.result = "ok"

	jobID, err := store.CreateJob(ctx, "u1", "q")
	require.NoError(t, err)

	poller := NewPoller(store, newTestLogger())

	completed, err := poller.WaitForCompletion(ctx, "u1", jobID, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "ok", *completed.Result)
}

func TestPoller_ReadErrorsCountAsAttempts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	for i := 1; i <= 4; i++ {
		store.readErrs[i] = errors.New("unavailable")
	}

	jobID, err := store.CreateJob(ctx, "u1", "q")
	require.NoError(t, err)

	poller := NewPoller(store, newTestLogger())

	_, err = poller.WaitForCompletion(ctx, "u1", jobID, 4, time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrRetryExhausted)
	assert.Equal(t, 4, store.readCount())
}

func TestPoller_StopsOnCancel(t *testing.T) {
	store := newFakeStore()
	jobID, err := store.CreateJob(context.Background(), "u1", "q")
	require.NoError(t, err)

	poller := NewPoller(store, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err = poller.WaitForCompletion(ctx, "u1", jobID, 100, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, store.readCount())
}

func TestPoller_ScanFallbackLastMatchWins(t *testing.T) {
	t.Run("completed record last", func(t *testing.T) {
		store := &listOnlyStore{jobs: []domain.Job{
			{JobID: "other", Status: domain.JobStatusCompleted, Result: strPtr("nope")},
			{JobID: "dup", Status: domain.JobStatusPending},
			{JobID: "dup", Status: domain.JobStatusCompleted, Result: strPtr("b"), Links: []string{}},
		}}
		poller := NewPoller(store, newTestLogger())

		completed, err := poller.WaitForCompletion(context.Background(), "u1", "dup", 2, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "b", *completed.Result)
	})

	t.Run("pending record last", func(t *testing.T) {
		store := &listOnlyStore{jobs: []domain.Job{
			{JobID: "dup", Status: domain.JobStatusCompleted, Result: strPtr("a")},
			{JobID: "dup", Status: domain.JobStatusPending},
		}}
		poller := NewPoller(store, newTestLogger())

		_, err := poller.WaitForCompletion(context.Background(), "u1", "dup", 2, time.Millisecond)
		assert.ErrorIs(t, err, domain.ErrRetryExhausted)
	})
}

func TestPoller_AttemptHookAndDefaultBudget(t *testing.T) {
	store := &listOnlyStore{}
	poller := NewPoller(store, newTestLogger())

	var attempts []int
	_, err := poller.WaitForCompletion(context.Background(), "u1", "x", 0, time.Microsecond,
		WithAttemptHook(func(attempt int) {
			attempts = append(attempts, attempt)
		}),
	)

	var exhausted *domain.RetryExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, domain.DefaultMaxAttempts, exhausted.Attempts)
	require.Len(t, attempts, domain.DefaultMaxAttempts)
	assert.Equal(t, 1, attempts[0])
	assert.Equal(t, domain.DefaultMaxAttempts, attempts[len(attempts)-1])
}
