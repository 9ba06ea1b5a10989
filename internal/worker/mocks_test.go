package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tenkindex/features/job"
	facts "tenkindex/internal/filing"
	"tenkindex/internal/ingest"
)

type MockIngester struct{ mock.Mock }

func (m *MockIngester) Ingest(ctx context.Context, path, companyName, ticker string) (*ingest.Result, error) {
	args := m.Called(ctx, path, companyName, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Result), args.Error(1)
}

type MockRecordSaver struct{ mock.Mock }

func (m *MockRecordSaver) SaveRecord(ctx context.Context, rec *facts.Record, chunkCount int, sourcePath string) error {
	return m.Called(ctx, rec, chunkCount, sourcePath).Error(0)
}

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

type MockTaskPublisher struct{ mock.Mock }

func (m *MockTaskPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}
