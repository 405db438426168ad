package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"paperbase/backend/internal/answer"
	"paperbase/backend/internal/apperr"
	"paperbase/backend/internal/middleware"
)

// Answerer runs the retrieval pipeline for one question.
type Answerer interface {
	Answer(ctx context.Context, query string, k int) (*answer.Result, error)
}

type Handler struct {
	answerer Answerer
}

// askResponse echoes the question back with the answer. The assembled prompt
// context stays internal and is never returned to clients.
type askResponse struct {
	Answer  string          `json:"answer"`
	Sources []answer.Source `json:"sources"`
	Query   string          `json:"query"`
}

func NewHandler(a Answerer) *Handler {
	return &Handler{answerer: a}
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.K <= 0 {
		req.K = answer.DefaultK
	}

	result, err := h.answerer.Answer(ctx, req.Query, req.K)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			h.writeError(ctx, w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "answer pipeline failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := askResponse{Answer: result.Answer, Sources: result.Sources, Query: req.Query}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
