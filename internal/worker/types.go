package worker

import (
	"context"

	"tenkindex/features/job"
	facts "tenkindex/internal/filing"
	"tenkindex/internal/ingest"
)

type FilingIngester interface {
	Ingest(ctx context.Context, path, companyName, ticker string) (*ingest.Result, error)
}

type RecordSaver interface {
	SaveRecord(ctx context.Context, rec *facts.Record, chunkCount int, sourcePath string) error
}

// FailureRecorder stores tasks the worker gave up on.
type FailureRecorder interface {
	Save(ctx context.Context, j *job.Job) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
