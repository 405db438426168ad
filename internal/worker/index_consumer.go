package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"paperbase/backend/features/job"
	"paperbase/backend/internal/config"
	"paperbase/backend/internal/middleware"
)

// Indexer is the embed-and-upsert half of the pipeline.
type Indexer interface {
	Index(ctx context.Context, documentID string) error
}

// IndexConsumer processes index.task messages. Failures are dead-lettered
// to the jobs table rather than requeued; a broken embedding credential
// would otherwise spin the same message forever.
type IndexConsumer struct {
	indexer Indexer
	jobRepo job.Repository
}

func NewIndexConsumer(indexer Indexer, jobRepo job.Repository) *IndexConsumer {
	return &IndexConsumer{indexer: indexer, jobRepo: jobRepo}
}

func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload struct {
		DocumentID    string `json:"document_id"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format, dropping", "error", err)
		return nil
	}

	if payload.DocumentID == "" {
		slog.ErrorContext(ctx, "missing document_id, dropping")
		return nil
	}

	if err := h.indexer.Index(ctx, payload.DocumentID); err != nil {
		slog.ErrorContext(ctx, "indexing failed, dead-lettering", "document_id", payload.DocumentID, "error", err)

		saveErr := h.jobRepo.Save(ctx, &job.Job{
			DocumentID: payload.DocumentID,
			Topic:      config.TopicIndexTask,
			Payload:    m.Body,
			Error:      err.Error(),
		})
		if saveErr != nil {
			slog.ErrorContext(ctx, "failed to save dead-letter job", "document_id", payload.DocumentID, "error", saveErr)
		}
		return nil
	}

	slog.InfoContext(ctx, "index task completed", "document_id", payload.DocumentID)
	return nil
}
