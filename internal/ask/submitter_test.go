package ask

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSubmitter_Submit(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	publisher := &mockPublisher{}

	var published domain.JobMessage
	publisher.On("PublishWithRetry", mock.Anything, mock.MatchedBy(func(body []byte) bool {
		return json.Unmarshal(body, &published) == nil
	}), "application/json").Return(nil).Once()

	submitter := NewSubmitter(store, publisher, newTestLogger())

	jobID, err := submitter.Submit(ctx, "u1", "what is 2+2")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := store.MemoryStore.GetJob(ctx, "u1", jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, "what is 2+2", job.Request)
	assert.Nil(t, job.Result)
	assert.Nil(t, job.Links)

	assert.Equal(t, domain.JobMessage{Owner: "u1", JobID: jobID}, published)
	publisher.AssertExpectations(t)
}

func TestSubmitter_PublishFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	publisher := &mockPublisher{}
	publisher.On("PublishWithRetry", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker down")).Once()

	submitter := NewSubmitter(store, publisher, newTestLogger())

	jobID, err := submitter.Submit(context.Background(), "u1", "q")
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	publisher.AssertExpectations(t)
}

func TestSubmitter_Errors(t *testing.T) {
	tests := []struct {
		name        string
		owner       string
		setup       func(s *fakeStore)
		wantErr     error
		wantCreates int
	}{
		{
			name:        "blank owner",
			owner:       "  ",
			wantErr:     domain.ErrBadRequest,
			wantCreates: 0,
		},
		{
			name:        "store write fails",
			owner:       "u1",
			setup:       func(s *fakeStore) { s.createErr = errors.New("permission denied") },
			wantErr:     domain.ErrCreateFailed,
			wantCreates: 1,
		},
		{
			name:        "store returns no id",
			owner:       "u1",
			setup:       func(s *fakeStore) { s.emptyID = true },
			wantErr:     domain.ErrCreateFailed,
			wantCreates: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			if tt.setup != nil {
				tt.setup(store)
			}

			submitter := NewSubmitter(store, nil, newTestLogger())

			jobID, err := submitter.Submit(context.Background(), tt.owner, "q")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, jobID)
			assert.Equal(t, tt.wantCreates, store.createCount())
		})
	}
}
