package retrieval_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenkindex/internal/middleware"
	"tenkindex/internal/retrieval"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) Search(ctx context.Context, query string, vector []float32, alpha float32, limit int, filters map[string]string) ([]retrieval.SearchResult, error) {
	args := m.Called(ctx, query, vector, alpha, limit, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.SearchResult), args.Error(1)
}

func ptr[T any](v T) *T { return &v }

func TestService_Search(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		opts    *retrieval.SearchOptions
		setup   func(*MockEmbedder, *MockStore)
		wantLen int
		wantErr error
	}{
		{
			name:  "Defaults",
			query: "cloud revenue growth",
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "cloud revenue growth").Return([]float32{0.1}, nil)
				s.On("Search", mock.Anything, "cloud revenue growth", []float32{0.1}, float32(0.5), 10, map[string]string(nil)).
					Return([]retrieval.SearchResult{{Content: "A", Score: 0.9}}, nil)
			},
			wantLen: 1,
		},
		{
			name:  "Options and filters",
			query: "supply chain risk",
			opts: &retrieval.SearchOptions{
				Alpha:   ptr(float32(0.8)),
				Limit:   ptr(5),
				Filters: map[string]string{"ticker": "acme", "section_type": "risk_factors"},
			},
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "supply chain risk").Return([]float32{0.1}, nil)
				s.On("Search", mock.Anything, "supply chain risk", []float32{0.1}, float32(0.8), 5,
					map[string]string{"ticker": "ACME", "section_type": "risk_factors"}).
					Return([]retrieval.SearchResult{}, nil)
			},
			wantLen: 0,
		},
		{
			name:  "Limit is capped",
			query: "margins",
			opts:  &retrieval.SearchOptions{Limit: ptr(500)},
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "margins").Return([]float32{0.1}, nil)
				s.On("Search", mock.Anything, "margins", []float32{0.1}, float32(0.5), retrieval.MaxLimit, map[string]string(nil)).
					Return([]retrieval.SearchResult{}, nil)
			},
		},
		{
			name:    "Empty query",
			query:   "   ",
			setup:   func(e *MockEmbedder, s *MockStore) {},
			wantErr: retrieval.ErrEmptyQuery,
		},
		{
			name:    "Unknown filter",
			query:   "x",
			opts:    &retrieval.SearchOptions{Filters: map[string]string{"url": "http://"}},
			setup:   func(e *MockEmbedder, s *MockStore) {},
			wantErr: retrieval.ErrInvalidFilter,
		},
		{
			name:    "Alpha out of range",
			query:   "x",
			opts:    &retrieval.SearchOptions{Alpha: ptr(float32(1.5))},
			setup:   func(e *MockEmbedder, s *MockStore) {},
			wantErr: retrieval.ErrInvalidFilter,
		},
		{
			name:  "Embedder error",
			query: "x",
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "x").Return(nil, errors.New("embed error"))
			},
			wantErr: errors.New("embed error"),
		},
		{
			name:  "Store error",
			query: "x",
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "x").Return([]float32{0.1}, nil)
				s.On("Search", mock.Anything, "x", []float32{0.1}, float32(0.5), 10, map[string]string(nil)).
					Return(nil, errors.New("store error"))
			},
			wantErr: errors.New("store error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := new(MockEmbedder)
			s := new(MockStore)
			tt.setup(e, s)

			res, err := retrieval.NewService(e, s, nil).Search(context.Background(), tt.query, tt.opts)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			} else {
				require.NoError(t, err)
				assert.Len(t, res, tt.wantLen)
			}
			e.AssertExpectations(t)
			s.AssertExpectations(t)
		})
	}
}

func TestService_Search_Logging(t *testing.T) {
	e := new(MockEmbedder)
	s := new(MockStore)
	e.On("Embed", mock.Anything, "test").Return([]float32{0.1}, nil)
	s.On("Search", mock.Anything, "test", []float32{0.1}, float32(0.5), 10, map[string]string(nil)).
		Return([]retrieval.SearchResult{{Content: "A"}}, nil)

	var buf bytes.Buffer
	svc := retrieval.NewService(e, s, retrieval.NewQueryLogger(&buf))

	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
	_, err := svc.Search(ctx, "test", nil)
	require.NoError(t, err)

	var entry retrieval.QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry.Query)
	assert.Equal(t, 1, entry.NumResults)
	assert.Equal(t, "corr-1", entry.CorrelationID)
}
