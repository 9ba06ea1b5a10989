package job

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrUnretryable marks a stored task body that cannot be queued again.
	ErrUnretryable = errors.New("job payload cannot be retried")
)

// Job is an ingestion task that exhausted its deliveries or failed for good.
// Payload is the original task body, republished verbatim on retry.
type Job struct {
	ID        string          `json:"id"`
	Ticker    string          `json:"ticker"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListOptions narrows the failed-job listing. An empty Ticker lists all.
type ListOptions struct {
	Ticker string
	Limit  int
}
