package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tenkindex/internal/config"
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

const (
	// PublishTimeout bounds a retry's publish; go-nsq's Publish has no context.
	PublishTimeout = 5 * time.Second

	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo    Repository
	pub     EventPublisher
	logger  *slog.Logger
	timeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, logger: logger, timeout: PublishTimeout}
}

func (s *Service) List(ctx context.Context, opts ListOptions) ([]Job, error) {
	opts.Ticker = strings.ToUpper(strings.TrimSpace(opts.Ticker))
	switch {
	case opts.Limit <= 0:
		opts.Limit = DefaultListLimit
	case opts.Limit > MaxListLimit:
		opts.Limit = MaxListLimit
	}
	return s.repo.List(ctx, opts)
}

// Retry republishes the stored task and removes the job once NSQ accepted it.
// The worker records a fresh job if the task fails again.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	path := payloadPath(job.Payload)
	if path == "" {
		return fmt.Errorf("%w: %s", ErrUnretryable, id)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestFiling, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(s.timeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "job republished", "id", id, "ticker", job.Ticker, "path", path)
	return s.repo.Delete(ctx, id)
}

// Dismiss drops a failed job without retrying it.
func (s *Service) Dismiss(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "job dismissed", "id", id)
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
