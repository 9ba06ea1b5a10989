package ingest

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type mockSource struct{ mock.Mock }

func (m *mockSource) ExtractText(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

type mockEmbedder struct{ mock.Mock }

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// lengthEmbedder encodes each text's length as its vector so tests can check
// vectors stay attached to the right chunk.
type lengthEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *lengthEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type fakeStore struct {
	mu       sync.Mutex
	batches  [][]Document
	failAt   int // 1-based batch number that fails; 0 never fails
	err      error
	pruned   map[string]int
	pruneErr error
}

func (s *fakeStore) Upsert(_ context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.batches)+1 == s.failAt {
		s.batches = append(s.batches, nil)
		return s.err
	}
	s.batches = append(s.batches, docs)
	return nil
}

func (s *fakeStore) PruneChunks(_ context.Context, ticker string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pruned == nil {
		s.pruned = map[string]int{}
	}
	s.pruned[ticker] = keep
	return s.pruneErr
}

func (s *fakeStore) docs() []Document {
	var out []Document
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}
