package app

import (
	"context"

	"tenkindex/internal/ingest"
	"tenkindex/internal/retrieval"
)

// MockVectorStore is a canned VectorStore for wiring tests.
type MockVectorStore struct {
	EnsureSchemaErr error
	ChunkCount      int
	CountedTicker   string
	Searched        string
}

func (m *MockVectorStore) EnsureSchema(ctx context.Context) error { return m.EnsureSchemaErr }

func (m *MockVectorStore) Upsert(ctx context.Context, docs []ingest.Document) error { return nil }

func (m *MockVectorStore) PruneChunks(ctx context.Context, ticker string, keep int) error {
	return nil
}

func (m *MockVectorStore) DeleteByTicker(ctx context.Context, ticker string) error { return nil }

func (m *MockVectorStore) Search(ctx context.Context, query string, vector []float32, alpha float32, limit int, filters map[string]string) ([]retrieval.SearchResult, error) {
	m.Searched = query
	return []retrieval.SearchResult{{Content: "match", ChunkID: "acme_0", Ticker: "ACME"}}, nil
}

func (m *MockVectorStore) GetChunks(ctx context.Context, ticker string, limit int) ([]retrieval.SearchResult, error) {
	return nil, nil
}

func (m *MockVectorStore) CountChunks(ctx context.Context, ticker string) (int, error) {
	m.CountedTicker = ticker
	return m.ChunkCount, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type stubPublisher struct {
	topics []string
}

func (p *stubPublisher) Publish(topic string, body []byte) error {
	p.topics = append(p.topics, topic)
	return nil
}
