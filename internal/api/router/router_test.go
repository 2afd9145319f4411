package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/answer-relay/internal/api/dto"
	"github.com/cuongbtq/answer-relay/internal/api/handler"
	"github.com/cuongbtq/answer-relay/internal/ask"
	"github.com/cuongbtq/answer-relay/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type jobStore interface {
	ask.JobCreator
	ask.JobLister
	handler.JobReader
	handler.Pinger
}

// answeringStore completes every job as soon as it is created
type answeringStore struct {
	*storage.MemoryStore
	answer string
	links  []string
}

func (s *answeringStore) CreateJob(ctx context.Context, owner, request string) (string, error) {
	jobID, err := s.MemoryStore.CreateJob(ctx, owner, request)
	if err != nil {
		return "", err
	}
	return jobID, s.MemoryStore.CompleteJob(ctx, owner, jobID, s.answer, s.links)
}

type brokenStore struct {
	*storage.MemoryStore
}

func (brokenStore) CreateJob(context.Context, string, string) (string, error) {
	return "", errors.New("connection refused")
}

func (brokenStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func newTestRouter(store jobStore) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	coordinator := ask.NewCoordinator(&ask.Config{
		Submitter:    ask.NewSubmitter(store, nil, logger),
		Poller:       ask.NewPoller(store, logger),
		Logger:       logger,
		MaxAttempts:  3,
		PollInterval: time.Millisecond,
	})

	return SetupRouter(&handler.Dependencies{
		Logger:      logger,
		ServiceName: "answer-relay-api",
		Coordinator: coordinator,
		Jobs:        store,
		Store:       store,
	}, nil)
}

func newAnsweringStore() *answeringStore {
	return &answeringStore{
		MemoryStore: storage.NewMemoryStore(),
		answer:      "4",
		links:       []string{"https://docs.example/arithmetic"},
	}
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestActions_Process(t *testing.T) {
	answer := "4"

	tests := []struct {
		name     string
		request  func() *http.Request
		expected dto.ActionOKResponse
	}{
		{
			name: "query string with links",
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/actions/process?userId=u1&question=2%2B2", nil)
			},
			expected: dto.ActionOKResponse{Status: "ok", LocalAnswer: &answer, Links: []string{"https://docs.example/arithmetic"}},
		},
		{
			name: "json body with links",
			request: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/process", strings.NewReader(`{"userId":"u1","question":"2+2"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			expected: dto.ActionOKResponse{Status: "ok", LocalAnswer: &answer, Links: []string{"https://docs.example/arithmetic"}},
		},
		{
			name: "form body without links",
			request: func() *http.Request {
				form := url.Values{"userId": {"u1"}, "question": {"2+2"}}
				req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/process-text", strings.NewReader(form.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			expected: dto.ActionOKResponse{Status: "ok", LocalAnswer: &answer},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newTestRouter(newAnsweringStore()), tt.request())

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.expected, decode[dto.ActionOKResponse](t, w))
		})
	}
}

func TestActions_ProcessText_LinksAreNull(t *testing.T) {
	w := serve(newTestRouter(newAnsweringStore()),
		httptest.NewRequest(http.MethodGet, "/api/v1/actions/process-text?userId=u1&question=q", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","localAnswer":"4","links":null}`, w.Body.String())
}

func TestActions_Process_EmptyLinks(t *testing.T) {
	store := &answeringStore{
		MemoryStore: storage.NewMemoryStore(),
		answer:      "4",
		links:       []string{},
	}

	w := serve(newTestRouter(store),
		httptest.NewRequest(http.MethodGet, "/api/v1/actions/process?userId=u1&question=what+is+2%2B2", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","localAnswer":"4","links":[]}`, w.Body.String())

	jobs, err := store.ListJobs(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "what is 2+2", jobs[0].Request)
}

func TestActions_ProcessErrors(t *testing.T) {
	tests := []struct {
		name       string
		store      jobStore
		request    func() *http.Request
		wantStatus int
		wantAnswer string
	}{
		{
			name:  "missing userId",
			store: newAnsweringStore(),
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/actions/process?question=q", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantAnswer: "bad request",
		},
		{
			name:  "missing question",
			store: newAnsweringStore(),
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/actions/process?userId=u1", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantAnswer: "bad request",
		},
		{
			name:  "malformed json",
			store: newAnsweringStore(),
			request: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/process", strings.NewReader(`{"userId":`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantAnswer: "bad request",
		},
		{
			name:  "never answered",
			store: storage.NewMemoryStore(),
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/actions/process?userId=u1&question=q", nil)
			},
			wantStatus: http.StatusGatewayTimeout,
			wantAnswer: "too many retries",
		},
		{
			name:  "store write fails",
			store: brokenStore{MemoryStore: storage.NewMemoryStore()},
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/actions/process?userId=u1&question=q", nil)
			},
			wantStatus: http.StatusInternalServerError,
			wantAnswer: "unable to create new job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newTestRouter(tt.store), tt.request())

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			body := decode[map[string]any](t, w)
			assert.Len(t, body, 2)
			assert.Equal(t, "error", body["status"])
			assert.Contains(t, body["answer"], "issue processing the request")
			assert.Contains(t, body["answer"], tt.wantAnswer)
		})
	}
}

func TestActions_Stream(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(newAnsweringStore()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/actions/stream?userId=u1&question=q")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	submitted := strings.Index(body, `"stage":"submitted"`)
	result := strings.Index(body, "event:result")
	complete := strings.Index(body, "event:complete")

	require.NotEqual(t, -1, submitted, body)
	require.NotEqual(t, -1, result, body)
	require.NotEqual(t, -1, complete, body)
	assert.Less(t, submitted, result)
	assert.Less(t, result, complete)
	assert.Contains(t, body, `"localAnswer":"4"`)
	assert.NotContains(t, body, "event:error")
}

func TestActions_Stream_Error(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(storage.NewMemoryStore()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/actions/stream?userId=u1&question=q")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Equal(t, 3, strings.Count(body, `"stage":"waiting"`), body)
	assert.Contains(t, body, "event:error")
	assert.Contains(t, body, "too many retries")
	assert.Contains(t, body, "event:complete")
}

func TestUsers_Jobs(t *testing.T) {
	store := newAnsweringStore()
	r := newTestRouter(store)
	ctx := context.Background()

	var ids []string
	for _, q := range []string{"a", "b", "c"} {
		id, err := store.CreateJob(ctx, "u1", q)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := store.CreateJob(ctx, "u2", "other")
	require.NoError(t, err)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/jobs?page_size=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[dto.ListJobsResponse](t, w)
	require.Len(t, first.Jobs, 2)
	require.NotEmpty(t, first.NextCursor)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/jobs?page_size=2&cursor="+first.NextCursor, nil))
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[dto.ListJobsResponse](t, w)
	require.Len(t, second.Jobs, 1)
	assert.Empty(t, second.NextCursor)

	var seen []string
	for _, j := range append(first.Jobs, second.Jobs...) {
		assert.Equal(t, "u1", j.Owner)
		assert.Equal(t, "COMPLETED", j.Status)
		seen = append(seen, j.JobID)
	}
	assert.ElementsMatch(t, ids, seen)

	t.Run("get one", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/jobs/"+ids[0], nil))
		require.Equal(t, http.StatusOK, w.Code)
		job := decode[dto.JobDTO](t, w)
		assert.Equal(t, ids[0], job.JobID)
		assert.Equal(t, "a", job.Request)
		require.NotNil(t, job.Result)
		assert.Equal(t, "4", *job.Result)
	})

	t.Run("other owner cannot see job", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/users/u2/jobs/"+ids[0], nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/jobs/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid job id", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/jobs/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/jobs?cursor=bm9waXBl", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("owner without jobs", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/users/nobody/jobs", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"jobs":[]}`, w.Body.String())
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		w := serve(newTestRouter(newAnsweringStore()), httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"healthy","service":"answer-relay-api","store":"ok"}`, w.Body.String())
	})

	t.Run("store unreachable", func(t *testing.T) {
		w := serve(newTestRouter(brokenStore{MemoryStore: storage.NewMemoryStore()}), httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "unhealthy", body["status"])
	})
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/actions/process", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w := serve(newTestRouter(newAnsweringStore()), req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
