package filing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"tenkindex/internal/config"
	"tenkindex/internal/middleware"
	"tenkindex/internal/retrieval"
	"tenkindex/internal/worker"
)

const (
	DefaultListLimit  = 50
	MaxListLimit      = 500
	DefaultComparable = 10
	DefaultChunkLimit = 100

	// Comparable companies report revenue within this band of the reference.
	MinRevenueRatio = 0.25
	MaxRevenueRatio = 4.0

	PublishTimeout = 5 * time.Second
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

var supportedExtensions = map[string]bool{".pdf": true, ".txt": true, ".text": true, ".md": true}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type ChunkStore interface {
	GetChunks(ctx context.Context, ticker string, limit int) ([]retrieval.SearchResult, error)
	DeleteByTicker(ctx context.Context, ticker string) error
}

// Comparison pairs a reference filing with its peers.
type Comparison struct {
	Reference   *Filing  `json:"reference"`
	Comparables []Filing `json:"comparables"`
}

type Service struct {
	repo    Repository
	pub     TaskPublisher
	chunks  ChunkStore
	logger  *slog.Logger
	timeout time.Duration
}

func NewService(repo Repository, pub TaskPublisher, chunks ChunkStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, chunks: chunks, logger: logger, timeout: PublishTimeout}
}

// Submit queues a filing for the ingestion worker.
func (s *Service) Submit(ctx context.Context, req IngestRequest) (*worker.IngestFilingPayload, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	if ext := strings.ToLower(filepath.Ext(path)); !supportedExtensions[ext] {
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidRequest, ext)
	}

	payload := &worker.IngestFilingPayload{
		Path:          path,
		CompanyName:   strings.TrimSpace(req.CompanyName),
		Ticker:        strings.ToUpper(strings.TrimSpace(req.Ticker)),
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestFiling, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("publish ingest task: %w", err)
		}
	case <-time.After(s.timeout):
		return nil, ErrPublishTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.logger.InfoContext(ctx, "filing queued", "path", path, "ticker", payload.Ticker)
	return payload, nil
}

func (s *Service) Get(ctx context.Context, ticker string) (*Filing, error) {
	return s.repo.Get(ctx, normalizeTicker(ticker))
}

func (s *Service) List(ctx context.Context, opts ListOptions) ([]Filing, error) {
	switch {
	case opts.Limit <= 0:
		opts.Limit = DefaultListLimit
	case opts.Limit > MaxListLimit:
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.repo.List(ctx, opts)
}

// Comparables finds same-sector companies whose revenue is between 25% and
// 400% of the reference company's. A reference without revenue has no peers.
func (s *Service) Comparables(ctx context.Context, ticker string, limit int) (*Comparison, error) {
	if limit <= 0 {
		limit = DefaultComparable
	}
	ref, err := s.repo.Get(ctx, normalizeTicker(ticker))
	if err != nil {
		return nil, err
	}

	out := &Comparison{Reference: ref, Comparables: []Filing{}}
	if ref.Revenue == nil || *ref.Revenue <= 0 {
		s.logger.InfoContext(ctx, "reference has no revenue, skipping comparables", "ticker", ref.Ticker)
		return out, nil
	}

	revenue := *ref.Revenue
	peers, err := s.repo.Comparables(ctx, ref.Sector, ref.Ticker, revenue*MinRevenueRatio, revenue*MaxRevenueRatio, limit)
	if err != nil {
		return nil, err
	}
	if peers != nil {
		out.Comparables = peers
	}
	return out, nil
}

// Chunks lists the indexed chunks of a filing in document order.
func (s *Service) Chunks(ctx context.Context, ticker string, limit int) ([]retrieval.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	ticker = normalizeTicker(ticker)
	if _, err := s.repo.Get(ctx, ticker); err != nil {
		return nil, err
	}
	return s.chunks.GetChunks(ctx, ticker, limit)
}

// Delete removes a company's records and its indexed chunks.
func (s *Service) Delete(ctx context.Context, ticker string) error {
	ticker = normalizeTicker(ticker)
	if err := s.repo.Delete(ctx, ticker); err != nil {
		return err
	}
	if err := s.chunks.DeleteByTicker(ctx, ticker); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", ticker, err)
	}
	s.logger.InfoContext(ctx, "filing deleted", "ticker", ticker)
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func normalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
