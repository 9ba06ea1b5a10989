package ingest

import (
	"time"

	"tenkindex/internal/filing"
	"tenkindex/internal/text"
)

// Document is one index entry: a chunk, its vector and the filing's facts.
type Document struct {
	ID         string
	Vector     []float32
	Properties map[string]any
}

// NewDocument flattens the record's present fields next to the chunk's own
// keys. Chunk keys are written last so record fields never overwrite them.
func NewDocument(ch text.Chunk, vector []float32, rec *filing.Record, ingestedAt time.Time) Document {
	props := make(map[string]any)
	if rec != nil {
		for k, v := range rec.Fields() {
			props[k] = v
		}
	}

	props["chunk_id"] = ch.ID
	props["company_name"] = ch.CompanyName
	props["ticker"] = ch.Ticker
	props["section_type"] = ch.SectionType
	props["content"] = ch.Content
	props["chunk_index"] = ch.ChunkIndex
	props["ingestion_timestamp"] = ingestedAt.UTC().Format(time.RFC3339)

	return Document{ID: ch.ID, Vector: vector, Properties: props}
}
