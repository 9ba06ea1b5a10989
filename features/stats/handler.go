package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"tenkindex/internal/middleware"
)

type FilingRepo interface {
	Count(ctx context.Context) (int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

// ChunkCounter counts indexed chunks; an empty ticker counts all of them.
type ChunkCounter interface {
	CountChunks(ctx context.Context, ticker string) (int, error)
}

type Handler struct {
	filingRepo FilingRepo
	jobRepo    JobRepo
	chunks     ChunkCounter
}

func NewHandler(f FilingRepo, j JobRepo, c ChunkCounter) *Handler {
	return &Handler{filingRepo: f, jobRepo: j, chunks: c}
}

type StatsResponse struct {
	Filings       int    `json:"filings"`
	IndexedChunks int    `json:"indexed_chunks"`
	FailedJobs    int    `json:"failed_jobs"`
	Ticker        string `json:"ticker,omitempty"`
}

// GetStats reports corpus totals. With ?ticker= the chunk count is limited to
// that company.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))

	slog.InfoContext(ctx, "getting stats", "ticker", ticker)

	fCount, err := h.filingRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count filings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count filings", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	cCount, err := h.chunks.CountChunks(ctx, ticker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count indexed chunks", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Filings:       fCount,
		IndexedChunks: cCount,
		FailedJobs:    jCount,
		Ticker:        ticker,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
