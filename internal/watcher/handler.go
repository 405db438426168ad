package watcher

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	watcher *Watcher
}

func NewHandler(w *Watcher) *Handler {
	return &Handler{watcher: w}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": h.watcher.Status()}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) ForceCheck(w http.ResponseWriter, r *http.Request) {
	h.watcher.ForceCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]string{"status": "check completed"},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
