package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenkindex/internal/middleware"
)

const (
	DefaultAlpha = 0.5
	DefaultLimit = 10
	MaxLimit     = 50
)

var (
	ErrEmptyQuery    = errors.New("query must not be empty")
	ErrInvalidFilter = errors.New("invalid search filter")
)

// FilterKeys are the chunk properties a search may be narrowed by.
var FilterKeys = map[string]bool{
	"ticker":       true,
	"sector":       true,
	"industry":     true,
	"section_type": true,
}

type SearchResult struct {
	Content     string         `json:"content"`
	Score       float32        `json:"score"`
	ChunkID     string         `json:"chunkId"`
	Ticker      string         `json:"ticker"`
	CompanyName string         `json:"companyName,omitempty"`
	SectionType string         `json:"sectionType,omitempty"`
	ChunkIndex  int            `json:"chunkIndex"`
	Metadata    map[string]any `json:"metadata"`
}

type SearchOptions struct {
	Alpha   *float32
	Limit   *int
	Filters map[string]string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Search(ctx context.Context, query string, vector []float32, alpha float32, limit int, filters map[string]string) ([]SearchResult, error)
}

// Service answers hybrid keyword and vector queries over indexed filing chunks.
type Service struct {
	embedder Embedder
	store    VectorStore
	logger   *QueryLogger
}

func NewService(e Embedder, s VectorStore, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, logger: l}
}

func (s *Service) Search(ctx context.Context, query string, opts *SearchOptions) ([]SearchResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	alpha := float32(DefaultAlpha)
	limit := DefaultLimit
	var filters map[string]string
	if opts != nil {
		if opts.Alpha != nil {
			alpha = *opts.Alpha
		}
		if opts.Limit != nil {
			limit = *opts.Limit
		}
		filters = opts.Filters
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("%w: alpha must be between 0 and 1", ErrInvalidFilter)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	filters, err := normalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	docs, err := s.store.Search(ctx, query, vec, alpha, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:         query,
			Filters:       filters,
			NumResults:    len(docs),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return docs, nil
}

func normalizeFilters(in map[string]string) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if !FilterKeys[k] {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, k)
		}
		if k == "ticker" {
			v = strings.ToUpper(v)
		}
		out[k] = v
	}
	return out, nil
}
