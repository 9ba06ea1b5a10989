package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tenkindex/internal/filing"
	"tenkindex/internal/middleware"
	"tenkindex/internal/text"
)

var (
	ErrTextTooShort = errors.New("extracted text too short")
	ErrUpload       = errors.New("upload failed")
)

type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type DocumentStore interface {
	Upsert(ctx context.Context, docs []Document) error
	// PruneChunks removes chunks of ticker whose index is keep or higher.
	PruneChunks(ctx context.Context, ticker string, keep int) error
}

type Options struct {
	ChunkSize        int
	ChunkOverlap     int
	MinTextLength    int
	EmbedBatchSize   int
	EmbedConcurrency int
	EmbedTimeout     time.Duration
	UploadBatchSize  int
	Dimensions       int
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:        1500,
		ChunkOverlap:     200,
		MinTextLength:    1000,
		EmbedBatchSize:   16,
		EmbedConcurrency: 1,
		EmbedTimeout:     60 * time.Second,
		UploadBatchSize:  50,
		Dimensions:       3072,
	}
}

type Result struct {
	Record *filing.Record
	Chunks int
	// Uploaded counts documents the store accepted.
	Uploaded int
	// ZeroVectorBatches counts embedding batches that fell back to zero vectors.
	ZeroVectorBatches int
}

func (r *Result) OK() bool {
	return r != nil && r.Record != nil && r.Uploaded == r.Chunks
}

// Pipeline runs one filing through extraction, chunking, embedding and upload.
// Runs share no mutable state.
type Pipeline struct {
	source   TextExtractor
	facts    *filing.Extractor
	chunker  *text.Chunker
	embedder BatchEmbedder
	store    DocumentStore
	opts     Options
	now      func() time.Time
}

func NewPipeline(source TextExtractor, facts *filing.Extractor, embedder BatchEmbedder, store DocumentStore, opts Options) *Pipeline {
	return &Pipeline{
		source:   source,
		facts:    facts,
		chunker:  text.NewChunker(facts.Library().Sections),
		embedder: embedder,
		store:    store,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = d.EmbedBatchSize
	}
	if o.EmbedConcurrency <= 0 {
		o.EmbedConcurrency = 1
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = d.EmbedTimeout
	}
	if o.UploadBatchSize <= 0 {
		o.UploadBatchSize = d.UploadBatchSize
	}
	if o.Dimensions <= 0 {
		o.Dimensions = d.Dimensions
	}
	return o
}

// Ingest reads the filing at path and indexes it. Empty companyName or ticker
// are identified from the document header.
func (p *Pipeline) Ingest(ctx context.Context, path, companyName, ticker string) (*Result, error) {
	slog.InfoContext(ctx, "extracting filing text", "path", path)
	raw, err := p.source.ExtractText(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return p.IngestText(ctx, raw, companyName, ticker)
}

func (p *Pipeline) IngestText(ctx context.Context, raw, companyName, ticker string) (*Result, error) {
	if n := len(strings.TrimSpace(raw)); n < p.opts.MinTextLength {
		return nil, fmt.Errorf("%w: %d characters, need %d", ErrTextTooShort, n, p.opts.MinTextLength)
	}

	companyName, ticker = p.identity(raw, companyName, ticker)
	ctx = middleware.WithTicker(ctx, ticker)

	rec := p.facts.Extract(raw, companyName, ticker)
	filing.Derive(rec)
	slog.InfoContext(ctx, "facts extracted", "company", companyName, "industry", rec.Industry, "fields", len(rec.Fields()))

	chunks := p.chunker.Chunk(raw, companyName, ticker, p.opts.ChunkSize, p.opts.ChunkOverlap)
	result := &Result{Record: rec, Chunks: len(chunks)}
	slog.InfoContext(ctx, "document chunked", "chunks", len(chunks))

	vectors, degraded, err := p.embed(ctx, chunks)
	if err != nil {
		return result, err
	}
	result.ZeroVectorBatches = degraded

	ingestedAt := p.now()
	docs := make([]Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = NewDocument(ch, vectors[i], rec, ingestedAt)
	}

	for start := 0; start < len(docs); start += p.opts.UploadBatchSize {
		end := min(start+p.opts.UploadBatchSize, len(docs))
		if err := p.store.Upsert(ctx, docs[start:end]); err != nil {
			slog.ErrorContext(ctx, "upload batch failed", "start", start, "end", end, "error", err)
			return result, fmt.Errorf("%w: documents %d-%d: %w", ErrUpload, start, end, err)
		}
		result.Uploaded = end
		slog.InfoContext(ctx, "uploaded batch", "uploaded", end, "total", len(docs))
	}

	if err := p.store.PruneChunks(ctx, ticker, len(chunks)); err != nil {
		slog.WarnContext(ctx, "failed to prune stale chunks", "error", err)
	}

	return result, nil
}

func (p *Pipeline) identity(raw, companyName, ticker string) (string, string) {
	if companyName != "" && ticker != "" {
		return companyName, strings.ToUpper(ticker)
	}
	name, sym := p.facts.Identify(raw)
	if companyName == "" {
		companyName = name
	}
	if ticker == "" {
		ticker = sym
	}
	return companyName, strings.ToUpper(ticker)
}

// embed vectorizes chunk contents in batches. A failed batch is replaced with
// zero vectors so the document is still indexed.
func (p *Pipeline) embed(ctx context.Context, chunks []text.Chunk) ([][]float32, int, error) {
	vectors := make([][]float32, len(chunks))
	var degraded atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(p.opts.EmbedConcurrency)

	for start := 0; start < len(chunks); start += p.opts.EmbedBatchSize {
		end := min(start+p.opts.EmbedBatchSize, len(chunks))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			texts := make([]string, 0, end-start)
			for _, ch := range chunks[start:end] {
				texts = append(texts, ch.Content)
			}

			batchCtx, cancel := context.WithTimeout(ctx, p.opts.EmbedTimeout)
			defer cancel()

			got, err := p.embedder.EmbedBatch(batchCtx, texts)
			if err == nil && len(got) != len(texts) {
				err = fmt.Errorf("embedder returned %d vectors for %d texts", len(got), len(texts))
			}
			if err != nil {
				slog.WarnContext(ctx, "embedding batch failed, using zero vectors", "start", start, "size", len(texts), "error", err)
				degraded.Add(1)
				for i := start; i < end; i++ {
					vectors[i] = make([]float32, p.opts.Dimensions)
				}
				return nil
			}
			copy(vectors[start:end], got)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("embed chunks: %w", err)
	}
	return vectors, int(degraded.Load()), nil
}
