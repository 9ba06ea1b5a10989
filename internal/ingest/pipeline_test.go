package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenkindex/internal/filing"
	"tenkindex/internal/text"
)

const header = `ACME ENERGY CORP
(Exact name of registrant as specified in its charter)
Trading Symbol(s): ACME

For the fiscal year ended December 31, 2023

ITEM 1. BUSINESS
We produce oil and gas and renewable energy. We employ approximately 12,500 full-time employees.

Total revenues: $5,000,000

Gross profit: $2,000,000`

func filingText(n int) string {
	paras := []string{header}
	for i := 0; i < n; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %02d. %s", i, strings.Repeat("lorem ipsum ", 16)))
	}
	return strings.Join(paras, "\n\n")
}

func testOptions() Options {
	o := DefaultOptions()
	o.ChunkSize = 500
	o.ChunkOverlap = 50
	o.EmbedBatchSize = 2
	o.UploadBatchSize = 3
	o.Dimensions = 8
	return o
}

func newTestPipeline(src TextExtractor, emb BatchEmbedder, store DocumentStore, opts Options) *Pipeline {
	p := NewPipeline(src, filing.NewExtractor(filing.DefaultLibrary()), emb, store, opts)
	p.now = func() time.Time { return time.Date(2024, 3, 1, 7, 0, 0, 0, time.FixedZone("EST", -5*3600)) }
	return p
}

func TestPipeline_IngestText(t *testing.T) {
	ctx := context.Background()
	raw := filingText(12)

	t.Run("Success", func(t *testing.T) {
		store := &fakeStore{}
		emb := &lengthEmbedder{}
		p := newTestPipeline(nil, emb, store, testOptions())

		res, err := p.IngestText(ctx, raw, "Acme Energy Corp", "acme")
		require.NoError(t, err)
		require.True(t, res.OK())
		assert.Greater(t, res.Chunks, 3)
		assert.Equal(t, res.Chunks, res.Uploaded)
		assert.Equal(t, 0, res.ZeroVectorBatches)
		assert.Equal(t, (res.Chunks+1)/2, emb.calls)

		assert.Equal(t, "ACME", res.Record.Ticker)
		require.NotNil(t, res.Record.GrossMargin)
		assert.InDelta(t, 40.0, *res.Record.GrossMargin, 1e-9)

		docs := store.docs()
		require.Len(t, docs, res.Chunks)
		assert.Len(t, store.batches, (res.Chunks+2)/3)
		for i, d := range docs {
			assert.Equal(t, fmt.Sprintf("acme_%d", i), d.ID)
			assert.Equal(t, i, d.Properties["chunk_index"])
			assert.Equal(t, float32(len(d.Properties["content"].(string))), d.Vector[0])
			assert.Equal(t, "2024-03-01T12:00:00Z", d.Properties["ingestion_timestamp"])
			assert.Equal(t, 5_000_000.0, d.Properties["revenue"])
			assert.Equal(t, "Energy", d.Properties["sector"])
		}
		assert.Equal(t, "business_overview", docs[0].Properties["section_type"])
		assert.Equal(t, res.Chunks, store.pruned["ACME"])
	})

	t.Run("Text too short", func(t *testing.T) {
		store := &fakeStore{}
		p := newTestPipeline(nil, &lengthEmbedder{}, store, testOptions())

		res, err := p.IngestText(ctx, "   short filing   ", "Acme", "ACME")
		assert.ErrorIs(t, err, ErrTextTooShort)
		assert.False(t, res.OK())
		assert.Empty(t, store.batches)
		assert.Empty(t, store.pruned)
	})

	t.Run("Embedding failure degrades to zero vectors", func(t *testing.T) {
		store := &fakeStore{}
		emb := new(mockEmbedder)
		emb.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

		opts := testOptions()
		opts.EmbedConcurrency = 3
		p := newTestPipeline(nil, emb, store, opts)

		res, err := p.IngestText(ctx, raw, "Acme Energy Corp", "ACME")
		require.NoError(t, err)
		assert.True(t, res.OK())
		assert.Equal(t, (res.Chunks+1)/2, res.ZeroVectorBatches)
		for _, d := range store.docs() {
			assert.Equal(t, make([]float32, 8), d.Vector)
		}
	})

	t.Run("Short vector batch counts as failure", func(t *testing.T) {
		store := &fakeStore{}
		emb := new(mockEmbedder)
		emb.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)

		opts := testOptions()
		opts.EmbedBatchSize = 100
		p := newTestPipeline(nil, emb, store, opts)

		res, err := p.IngestText(ctx, raw, "Acme Energy Corp", "ACME")
		require.NoError(t, err)
		assert.Equal(t, 1, res.ZeroVectorBatches)
	})

	t.Run("Upload failure aborts remaining batches", func(t *testing.T) {
		cause := errors.New("weaviate unavailable")
		store := &fakeStore{failAt: 2, err: cause}
		p := newTestPipeline(nil, &lengthEmbedder{}, store, testOptions())

		res, err := p.IngestText(ctx, raw, "Acme Energy Corp", "ACME")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUpload)
		assert.ErrorIs(t, err, cause)
		assert.False(t, res.OK())
		assert.Equal(t, 3, res.Uploaded)
		assert.Len(t, store.batches, 2)
		assert.Empty(t, store.pruned)
	})

	t.Run("Prune failure is not fatal", func(t *testing.T) {
		store := &fakeStore{pruneErr: errors.New("boom")}
		p := newTestPipeline(nil, &lengthEmbedder{}, store, testOptions())

		res, err := p.IngestText(ctx, raw, "Acme Energy Corp", "ACME")
		require.NoError(t, err)
		assert.True(t, res.OK())
	})

	t.Run("Identity from header", func(t *testing.T) {
		store := &fakeStore{}
		p := newTestPipeline(nil, &lengthEmbedder{}, store, testOptions())

		res, err := p.IngestText(ctx, raw, "", "")
		require.NoError(t, err)
		assert.Equal(t, "ACME ENERGY CORP", res.Record.CompanyName)
		assert.Equal(t, "ACME", res.Record.Ticker)
		assert.Equal(t, "acme_0", store.docs()[0].ID)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		store := &fakeStore{}
		p := newTestPipeline(nil, &lengthEmbedder{}, store, testOptions())

		_, err := p.IngestText(cctx, raw, "Acme Energy Corp", "ACME")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, store.batches)
	})
}

func TestPipeline_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("Reads the file", func(t *testing.T) {
		src := new(mockSource)
		src.On("ExtractText", mock.Anything, "/filings/acme.pdf").Return(filingText(8), nil)
		store := &fakeStore{}
		p := newTestPipeline(src, &lengthEmbedder{}, store, testOptions())

		res, err := p.Ingest(ctx, "/filings/acme.pdf", "Acme Energy Corp", "ACME")
		require.NoError(t, err)
		assert.True(t, res.OK())
		src.AssertExpectations(t)
	})

	t.Run("Extraction error", func(t *testing.T) {
		src := new(mockSource)
		src.On("ExtractText", mock.Anything, "missing.pdf").Return("", errors.New("no such file"))
		p := newTestPipeline(src, &lengthEmbedder{}, &fakeStore{}, testOptions())

		res, err := p.Ingest(ctx, "missing.pdf", "Acme", "ACME")
		assert.Error(t, err)
		assert.Nil(t, res)
	})
}

func TestNewDocument(t *testing.T) {
	rec := filing.NewRecord("Record Name", "REC")
	rev := 1_000_000.0
	rec.Revenue = &rev
	rec.Industry, rec.Sector = "Energy", "Energy"
	rec.CIK, rec.Exchange = "0000012345", "Nasdaq"
	rec.TickerSymbols = []string{"REC", "RECW"}

	ch := text.Chunk{ID: "acme_3", CompanyName: "Acme", Ticker: "ACME", Content: "body", SectionType: "risk_factors", ChunkIndex: 3}
	doc := NewDocument(ch, []float32{0.5}, rec, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	assert.Equal(t, "acme_3", doc.ID)
	assert.Equal(t, []float32{0.5}, doc.Vector)
	assert.Equal(t, map[string]any{
		"chunk_id":            "acme_3",
		"company_name":        "Acme",
		"ticker":              "ACME",
		"section_type":        "risk_factors",
		"content":             "body",
		"chunk_index":         3,
		"ingestion_timestamp": "2024-01-02T03:04:05Z",
		"revenue":             1_000_000.0,
		"industry":            "Energy",
		"sector":              "Energy",
		"cik":                 "0000012345",
		"exchange":            "Nasdaq",
		"ticker_symbols":      []string{"REC", "RECW"},
	}, doc.Properties)
}

func TestResult_OK(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.OK())
	assert.False(t, (&Result{Chunks: 2, Uploaded: 2}).OK())
	assert.True(t, (&Result{Record: &filing.Record{}, Chunks: 2, Uploaded: 2}).OK())
	assert.True(t, (&Result{Record: &filing.Record{}}).OK())
}
