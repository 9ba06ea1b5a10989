package filing

import (
	"errors"
	"time"

	facts "tenkindex/internal/filing"
)

var (
	ErrNotFound       = errors.New("filing not found")
	ErrInvalidRequest = errors.New("invalid ingest request")
)

// Filing is a persisted financial record plus bookkeeping about the indexed
// document it came from.
type Filing struct {
	ID int64 `json:"id"`
	facts.Record
	ChunkCount int       `json:"chunk_count"`
	SourcePath string    `json:"source_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IngestRequest asks the worker to index one filing. Company name and ticker
// are optional; the worker reads them from the filing header when empty.
type IngestRequest struct {
	Path        string `json:"path"`
	CompanyName string `json:"company_name,omitempty"`
	Ticker      string `json:"ticker,omitempty"`
}

type ListOptions struct {
	Sector string
	Limit  int
	Offset int
}
