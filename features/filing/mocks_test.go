package filing_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tenkindex/features/filing"
	"tenkindex/internal/retrieval"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Upsert(ctx context.Context, f *filing.Filing) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockRepo) Get(ctx context.Context, ticker string) (*filing.Filing, error) {
	args := m.Called(ctx, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*filing.Filing), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context, opts filing.ListOptions) ([]filing.Filing, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]filing.Filing), args.Error(1)
}

func (m *MockRepo) Comparables(ctx context.Context, sector, excludeTicker string, minRevenue, maxRevenue float64, limit int) ([]filing.Filing, error) {
	args := m.Called(ctx, sector, excludeTicker, minRevenue, maxRevenue, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]filing.Filing), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, ticker string) error {
	return m.Called(ctx, ticker).Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

type MockChunkStore struct{ mock.Mock }

func (m *MockChunkStore) GetChunks(ctx context.Context, ticker string, limit int) ([]retrieval.SearchResult, error) {
	args := m.Called(ctx, ticker, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.SearchResult), args.Error(1)
}

func (m *MockChunkStore) DeleteByTicker(ctx context.Context, ticker string) error {
	return m.Called(ctx, ticker).Error(0)
}
