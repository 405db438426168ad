package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"paperbase/backend/features/document"
)

// Payload is the MinIO bucket-notification envelope. Only the fields the
// sync logic reads are modeled.
type Payload struct {
	EventName string   `json:"EventName"`
	Key       string   `json:"Key"`
	Records   []Record `json:"Records"`
}

type Record struct {
	EventName string `json:"eventName"`
	S3        struct {
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// Ingestor is the slice of the document service the webhook needs.
type Ingestor interface {
	ProcessObject(ctx context.Context, objectName string) (string, error)
	ExistsByLocator(ctx context.Context, objectName string) (*document.Document, bool, error)
	DeleteByObjectName(ctx context.Context, objectName string) (int, error)
}

// ProcessedSet coordinates with the storage watcher so webhook-handled
// objects are not re-ingested on the next scan.
type ProcessedSet interface {
	MarkProcessed(objectName string)
	Unmark(objectName string)
}

type Handler struct {
	ingestor  Ingestor
	processed ProcessedSet
}

func NewHandler(ingestor Ingestor, processed ProcessedSet) *Handler {
	return &Handler{ingestor: ingestor, processed: processed}
}

// HandleStorageEvent processes bucket notifications. It always responds
// 200: a non-2xx answer would make MinIO retry the notification, and every
// failure here is recoverable through the poll loop or reconciliation.
func (h *Handler) HandleStorageEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.ErrorContext(ctx, "webhook payload decode failed", "error", err)
		h.writeSoftFailure(ctx, w, err)
		return
	}

	var processedObjects, deletedObjects []string

	for _, record := range payload.Records {
		objectName := record.S3.Object.Key
		if !strings.HasSuffix(strings.ToLower(objectName), ".pdf") {
			continue
		}

		switch {
		case strings.HasPrefix(record.EventName, "s3:ObjectCreated:"):
			if name, ok := h.handleCreated(ctx, objectName, record.EventName); ok {
				processedObjects = append(processedObjects, name)
			}
		case strings.HasPrefix(record.EventName, "s3:ObjectRemoved:"):
			if name, ok := h.handleRemoved(ctx, objectName, record.EventName); ok {
				deletedObjects = append(deletedObjects, name)
			}
		}
	}

	if processedObjects == nil {
		processedObjects = []string{}
	}
	if deletedObjects == nil {
		deletedObjects = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"processed_objects": processedObjects,
		"deleted_objects":   deletedObjects,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) handleCreated(ctx context.Context, objectName, eventName string) (string, bool) {
	_, exists, err := h.ingestor.ExistsByLocator(ctx, objectName)
	if err != nil {
		slog.ErrorContext(ctx, "webhook existing-document check failed", "object", objectName, "error", err)
		return "", false
	}
	if exists {
		slog.InfoContext(ctx, "webhook object already ingested", "object", objectName)
		h.processed.MarkProcessed(objectName)
		return "", false
	}

	slog.InfoContext(ctx, "webhook detected new object", "object", objectName, "event", eventName)
	if _, err := h.ingestor.ProcessObject(ctx, objectName); err != nil {
		slog.ErrorContext(ctx, "webhook ingest failed", "object", objectName, "error", err)
		return "", false
	}

	h.processed.MarkProcessed(objectName)
	return objectName, true
}

func (h *Handler) handleRemoved(ctx context.Context, objectName, eventName string) (string, bool) {
	slog.InfoContext(ctx, "webhook detected removed object", "object", objectName, "event", eventName)

	removed, err := h.ingestor.DeleteByObjectName(ctx, objectName)
	if err != nil {
		slog.ErrorContext(ctx, "webhook delete failed", "object", objectName, "removed", removed, "error", err)
	}

	// Unmark regardless so a re-upload of the same name is picked up.
	h.processed.Unmark(objectName)
	if err != nil && removed == 0 {
		return "", false
	}
	return objectName, true
}

func (h *Handler) writeSoftFailure(ctx context.Context, w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if encErr := json.NewEncoder(w).Encode(map[string]string{
		"error":  err.Error(),
		"status": "failed",
	}); encErr != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", encErr)
	}
}
