package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"tenkindex/features/job"
	"tenkindex/internal/adapter/pdf"
	"tenkindex/internal/config"
	"tenkindex/internal/ingest"
	"tenkindex/internal/middleware"
)

const (
	// MaxAttempts is how often NSQ delivers a task before it is parked in
	// failed_jobs.
	MaxAttempts = 5

	// IngestTimeout bounds one pipeline run.
	IngestTimeout = 15 * time.Minute

	HandlerName = "ingest-worker"
)

type IngestConsumer struct {
	pipeline FilingIngester
	records  RecordSaver
	jobRepo  FailureRecorder
	pub      TaskPublisher
	timeout  time.Duration
}

func NewIngestConsumer(p FilingIngester, r RecordSaver, j FailureRecorder, pub TaskPublisher) *IngestConsumer {
	return &IngestConsumer{
		pipeline: p,
		records:  r,
		jobRepo:  j,
		pub:      pub,
		timeout:  IngestTimeout,
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestFilingPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON is never retried.
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	if payload.CorrelationID == "" {
		payload.CorrelationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), payload.CorrelationID)
	payload.Ticker = strings.ToUpper(strings.TrimSpace(payload.Ticker))
	if payload.Ticker != "" {
		ctx = middleware.WithTicker(ctx, payload.Ticker)
	}

	if payload.Path == "" {
		slog.ErrorContext(ctx, "missing path, dropping task")
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.pipeline.Ingest(runCtx, payload.Path, payload.CompanyName, payload.Ticker)
	if err != nil {
		if permanent(err) || int(m.Attempts) >= MaxAttempts {
			slog.ErrorContext(ctx, "ingestion failed", "path", payload.Path, "attempts", m.Attempts, "error", err)
			h.fail(ctx, m.Body, payload, res, err)
			return nil
		}
		slog.WarnContext(ctx, "ingestion failed, requeueing", "path", payload.Path, "attempts", m.Attempts, "error", err)
		return err
	}

	ctx = middleware.WithTicker(ctx, res.Record.Ticker)
	if err := h.records.SaveRecord(ctx, res.Record, res.Chunks, payload.Path); err != nil {
		// The index write is idempotent, so a full rerun is safe.
		slog.ErrorContext(ctx, "failed to save filing record", "error", err)
		return err
	}

	slog.InfoContext(ctx, "filing ingested", "path", payload.Path, "chunks", res.Chunks, "zero_vector_batches", res.ZeroVectorBatches)
	h.publishResult(ctx, newResultEvent(payload, res, nil))
	return nil
}

func (h *IngestConsumer) fail(ctx context.Context, body []byte, payload IngestFilingPayload, res *ingest.Result, cause error) {
	failed := &job.Job{
		Ticker:  payload.Ticker,
		Handler: HandlerName,
		Payload: json.RawMessage(body),
		Error:   cause.Error(),
	}
	if err := h.jobRepo.Save(ctx, failed); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
	} else {
		slog.InfoContext(ctx, "saved failed job for retry", "job_id", failed.ID)
	}
	h.publishResult(ctx, newResultEvent(payload, res, cause))
}

func (h *IngestConsumer) publishResult(ctx context.Context, event IngestResultEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal result event", "error", err)
		return
	}
	if err := h.pub.Publish(config.TopicIngestResult, body); err != nil {
		slog.WarnContext(ctx, "failed to publish result event", "error", err)
	}
}

func newResultEvent(payload IngestFilingPayload, res *ingest.Result, cause error) IngestResultEvent {
	event := IngestResultEvent{
		Path:          payload.Path,
		Ticker:        payload.Ticker,
		CompanyName:   payload.CompanyName,
		Status:        StatusSuccess,
		CorrelationID: payload.CorrelationID,
	}
	if res != nil {
		event.Chunks = res.Chunks
		event.Uploaded = res.Uploaded
		event.ZeroVectorBatches = res.ZeroVectorBatches
		if res.Record != nil {
			event.Ticker = res.Record.Ticker
			event.CompanyName = res.Record.CompanyName
			event.FilingYear = res.Record.FilingYear
		}
	}
	if cause != nil {
		event.Status = StatusFailed
		event.Error = cause.Error()
	}
	return event
}

// permanent reports errors that a redelivery cannot fix.
func permanent(err error) bool {
	return errors.Is(err, ingest.ErrTextTooShort) ||
		errors.Is(err, pdf.ErrUnsupportedFormat) ||
		errors.Is(err, fs.ErrNotExist)
}
