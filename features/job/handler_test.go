package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenkindex/features/job"
	"tenkindex/internal/config"
	"tenkindex/internal/middleware"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockRepo) List(ctx context.Context, opts job.ListOptions) ([]job.Job, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

func newHandler() (*job.Handler, *MockRepo, *MockPublisher) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return job.NewHandler(job.NewService(repo, pub, logger)), repo, pub
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		CorrelationID string `json:"correlationId"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error.Code, resp.CorrelationID
}

func TestHandler_List(t *testing.T) {
	t.Run("Filters by ticker", func(t *testing.T) {
		h, repo, _ := newHandler()
		repo.On("List", mock.Anything, job.ListOptions{Ticker: "ACME", Limit: 5}).Return([]job.Job{
			{ID: "a", Ticker: "ACME", Handler: "ingest-worker", Payload: json.RawMessage(`{"path":"/data/acme.pdf"}`)},
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/jobs/failed?ticker=acme&limit=5", nil)
		w := httptest.NewRecorder()
		h.List(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data []job.Job     `json:"data"`
			Meta map[string]int `json:"meta"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 1, resp.Meta["count"])
		assert.Equal(t, "ACME", resp.Data[0].Ticker)
		assert.JSONEq(t, `{"path":"/data/acme.pdf"}`, string(resp.Data[0].Payload))
		repo.AssertExpectations(t)
	})

	t.Run("Default limit and empty list", func(t *testing.T) {
		h, repo, _ := newHandler()
		repo.On("List", mock.Anything, job.ListOptions{Limit: job.DefaultListLimit}).Return(nil, nil)

		w := httptest.NewRecorder()
		h.List(w, httptest.NewRequest(http.MethodGet, "/jobs/failed", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"data":[]`)
	})

	t.Run("Bad limit", func(t *testing.T) {
		h, repo, _ := newHandler()
		w := httptest.NewRecorder()
		h.List(w, httptest.NewRequest(http.MethodGet, "/jobs/failed?limit=ten", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		code, _ := decodeError(t, w)
		assert.Equal(t, "VALIDATION_ERROR", code)
		repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})

	t.Run("Repository error", func(t *testing.T) {
		h, repo, _ := newHandler()
		repo.On("List", mock.Anything, mock.Anything).Return(nil, errors.New("database error"))

		req := httptest.NewRequest(http.MethodGet, "/jobs/failed", nil)
		req = req.WithContext(middleware.WithCorrelationID(req.Context(), "corr-1"))
		w := httptest.NewRecorder()
		h.List(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		code, corr := decodeError(t, w)
		assert.Equal(t, "INTERNAL_ERROR", code)
		assert.Equal(t, "corr-1", corr)
	})
}

func TestHandler_Retry(t *testing.T) {
	payload := json.RawMessage(`{"path":"/data/acme.pdf","ticker":"ACME"}`)

	tests := []struct {
		name     string
		setup    func(repo *MockRepo, pub *MockPublisher)
		wantCode int
		wantErr  string
	}{
		{
			name: "Requeued",
			setup: func(repo *MockRepo, pub *MockPublisher) {
				repo.On("Get", mock.Anything, "job-1").Return(&job.Job{ID: "job-1", Ticker: "ACME", Payload: payload}, nil)
				pub.On("Publish", config.TopicIngestFiling, []byte(payload)).Return(nil)
				repo.On("Delete", mock.Anything, "job-1").Return(nil)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "Not found",
			setup: func(repo *MockRepo, pub *MockPublisher) {
				repo.On("Get", mock.Anything, "job-1").Return(nil, job.ErrNotFound)
			},
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
		{
			name: "Payload without path",
			setup: func(repo *MockRepo, pub *MockPublisher) {
				repo.On("Get", mock.Anything, "job-1").Return(&job.Job{ID: "job-1", Payload: json.RawMessage(`{}`)}, nil)
			},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "UNPROCESSABLE",
		},
		{
			name: "Publish error keeps job",
			setup: func(repo *MockRepo, pub *MockPublisher) {
				repo.On("Get", mock.Anything, "job-1").Return(&job.Job{ID: "job-1", Payload: payload}, nil)
				pub.On("Publish", config.TopicIngestFiling, mock.Anything).Return(errors.New("nsq error"))
			},
			wantCode: http.StatusInternalServerError,
			wantErr:  "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, repo, pub := newHandler()
			tt.setup(repo, pub)

			req := httptest.NewRequest(http.MethodPost, "/jobs/job-1/retry", nil)
			req.SetPathValue("id", "job-1")
			w := httptest.NewRecorder()
			h.Retry(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != "" {
				code, _ := decodeError(t, w)
				assert.Equal(t, tt.wantErr, code)
				repo.AssertNotCalled(t, "Delete", mock.Anything, "job-1")
			} else {
				assert.JSONEq(t, `{"data":{"id":"job-1","status":"requeued"}}`, w.Body.String())
			}
			repo.AssertExpectations(t)
			pub.AssertExpectations(t)
		})
	}
}

func TestHandler_Dismiss(t *testing.T) {
	t.Run("Deleted", func(t *testing.T) {
		h, repo, pub := newHandler()
		repo.On("Delete", mock.Anything, "job-1").Return(nil)

		req := httptest.NewRequest(http.MethodDelete, "/jobs/job-1", nil)
		req.SetPathValue("id", "job-1")
		w := httptest.NewRecorder()
		h.Dismiss(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("Missing", func(t *testing.T) {
		h, repo, _ := newHandler()
		repo.On("Delete", mock.Anything, "job-2").Return(job.ErrNotFound)

		req := httptest.NewRequest(http.MethodDelete, "/jobs/job-2", nil)
		req.SetPathValue("id", "job-2")
		w := httptest.NewRecorder()
		h.Dismiss(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
