package worker

// IngestFilingPayload is the body of an ingest.filing task.
type IngestFilingPayload struct {
	Path        string `json:"path"`
	CompanyName string `json:"company_name,omitempty"`
	Ticker      string `json:"ticker,omitempty"`

	CorrelationID string `json:"correlation_id"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// IngestResultEvent is published on ingest.result after every run that
// reaches a final outcome.
type IngestResultEvent struct {
	Path        string `json:"path"`
	Ticker      string `json:"ticker,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	FilingYear  *int   `json:"filing_year,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`

	Chunks            int `json:"chunks"`
	Uploaded          int `json:"uploaded"`
	ZeroVectorBatches int `json:"zero_vector_batches,omitempty"`

	CorrelationID string `json:"correlation_id"`
}
