package filing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"tenkindex/internal/middleware"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Create queues a filing for ingestion and answers 202 with the task.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "request body must be JSON", http.StatusBadRequest)
		return
	}

	task, err := h.service.Submit(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "failed to queue filing", "path", req.Path, "error", err)
		h.writeServiceError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusAccepted, map[string]any{"data": task})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	opts := ListOptions{Sector: q.Get("sector")}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "limit must be an integer", http.StatusBadRequest)
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "offset must be an integer", http.StatusBadRequest)
		return
	}

	filings, err := h.service.List(ctx, opts)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list filings", "error", err)
		h.writeServiceError(ctx, w, err)
		return
	}
	if filings == nil {
		filings = []Filing{}
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{
		"data": filings,
		"meta": map[string]int{"count": len(filings)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := r.PathValue("ticker")

	f, err := h.service.Get(ctx, ticker)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"data": f})
}

func (h *Handler) Comparables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := r.PathValue("ticker")

	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "limit must be an integer", http.StatusBadRequest)
		return
	}

	cmp, err := h.service.Comparables(ctx, ticker, limit)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{
		"data": cmp,
		"meta": map[string]int{"count": len(cmp.Comparables)},
	})
}

func (h *Handler) Chunks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := r.PathValue("ticker")

	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "limit must be an integer", http.StatusBadRequest)
		return
	}

	chunks, err := h.service.Chunks(ctx, ticker, limit)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{
		"data": chunks,
		"meta": map[string]int{"count": len(chunks)},
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := r.PathValue("ticker")

	if err := h.service.Delete(ctx, ticker); err != nil {
		slog.ErrorContext(ctx, "failed to delete filing", "ticker", ticker, "error", err)
		h.writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeError(ctx, w, "NOT_FOUND", err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidRequest):
		h.writeError(ctx, w, "INVALID_REQUEST", err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPublishTimeout):
		h.writeError(ctx, w, "QUEUE_UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
	default:
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
