package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"paperbase/backend/internal/apperr"
	"paperbase/backend/internal/config"
	"paperbase/backend/internal/middleware"
	"paperbase/backend/internal/pdfx"
	"paperbase/backend/internal/text"
	"paperbase/backend/internal/vector"
)

// Document lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

type Document struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	FilePath    string     `json:"file_path"`
	FileSize    int64      `json:"file_size"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	PageNumber int       `json:"page_number"`
	CreatedAt  time.Time `json:"created_at"`
}

type Repository interface {
	// Documents
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	GetByFilename(ctx context.Context, filename string) (*Document, error)
	GetByLocator(ctx context.Context, locator string) (*Document, error)
	FindByLocatorSuffix(ctx context.Context, objectName string) ([]Document, error)
	List(ctx context.Context, limit, offset int) ([]Document, error)
	Count(ctx context.Context) (int, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkCompleted(ctx context.Context, id string) error
	DeleteWithChunks(ctx context.Context, id string) error

	// Chunks
	InsertChunks(ctx context.Context, chunks []Chunk) error
	GetChunks(ctx context.Context, documentID string) ([]Chunk, error)
	CountChunks(ctx context.Context, documentID string) (int, error)
}

type ObjectStore interface {
	Get(ctx context.Context, objectName string) ([]byte, error)
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, objectName string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	PresignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
	Locator(objectName string) string
}

type Extractor interface {
	Extract(data []byte) ([]pdfx.Page, error)
}

type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
}

type ChunkIndex interface {
	UpsertEntries(ctx context.Context, entries []vector.Entry) error
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo     Repository
	store    ObjectStore
	extract  Extractor
	embedder Embedder
	index    ChunkIndex
	pub      EventPublisher
	splitter *text.Splitter
}

func NewService(repo Repository, store ObjectStore, extract Extractor, embedder Embedder, index ChunkIndex, pub EventPublisher, splitter *text.Splitter) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		extract:  extract,
		embedder: embedder,
		index:    index,
		pub:      pub,
		splitter: splitter,
	}
}

// Ingest runs the synchronous half of the pipeline for an object already
// present in storage: register the document, extract text, chunk it, and
// persist the chunks. Embedding happens later via EnqueueIndex.
//
// If a document with the same locator already exists, the existing id is
// returned and nothing is re-ingested. A PDF that yields no text is a
// terminal "error" document, not a failure.
func (s *Service) Ingest(ctx context.Context, objectName string) (string, error) {
	data, err := s.store.Get(ctx, objectName)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", objectName, err)
	}

	locator := s.store.Locator(objectName)
	doc := &Document{
		Filename: objectName,
		FilePath: locator,
		FileSize: int64(len(data)),
		Status:   StatusProcessing,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			existing, getErr := s.repo.GetByLocator(ctx, locator)
			if getErr != nil {
				return "", fmt.Errorf("locator %s taken but unreadable: %w", locator, getErr)
			}
			slog.InfoContext(ctx, "document already ingested", "document_id", existing.ID, "object", objectName)
			return existing.ID, nil
		}
		return "", err
	}
	slog.InfoContext(ctx, "document registered", "document_id", doc.ID, "object", objectName, "size", doc.FileSize)

	pages, err := s.extract.Extract(data)
	if err != nil || len(pages) == 0 {
		if err != nil {
			slog.ErrorContext(ctx, "text extraction failed", "document_id", doc.ID, "error", err)
		} else {
			slog.WarnContext(ctx, "no extractable text", "document_id", doc.ID, "object", objectName)
		}
		if stErr := s.repo.UpdateStatus(ctx, doc.ID, StatusError); stErr != nil {
			slog.ErrorContext(ctx, "failed to mark document as error", "document_id", doc.ID, "error", stErr)
		}
		return doc.ID, nil
	}

	var chunks []Chunk
	idx := 0
	for _, page := range pages {
		for _, part := range s.splitter.Split(page.Text) {
			chunks = append(chunks, Chunk{
				DocumentID: doc.ID,
				ChunkIndex: idx,
				Content:    part,
				PageNumber: page.Number,
			})
			idx++
		}
	}

	if err := s.repo.InsertChunks(ctx, chunks); err != nil {
		if stErr := s.repo.UpdateStatus(ctx, doc.ID, StatusError); stErr != nil {
			slog.ErrorContext(ctx, "failed to mark document as error", "document_id", doc.ID, "error", stErr)
		}
		return doc.ID, fmt.Errorf("persist chunks: %w", err)
	}

	if err := s.repo.MarkCompleted(ctx, doc.ID); err != nil {
		return doc.ID, err
	}

	slog.InfoContext(ctx, "document ingested", "document_id", doc.ID, "pages", len(pages), "chunks", len(chunks))
	return doc.ID, nil
}

// Index embeds a document's stored chunks and upserts them into the vector
// index. It is the consumer-side counterpart of EnqueueIndex.
func (s *Service) Index(ctx context.Context, documentID string) error {
	chunks, err := s.repo.GetChunks(ctx, documentID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		slog.WarnContext(ctx, "no chunks to index", "document_id", documentID)
		return nil
	}

	entries := make([]vector.Entry, 0, len(chunks))
	for _, c := range chunks {
		vec, err := s.embedder.Embed(ctx, c.Content)
		if err != nil {
			return fmt.Errorf("embed chunk %d of document %s: %w", c.ChunkIndex, documentID, err)
		}
		entries = append(entries, vector.Entry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			PageNumber: c.PageNumber,
			Content:    c.Content,
			Vector:     vec,
		})
	}

	if err := s.index.UpsertEntries(ctx, entries); err != nil {
		return fmt.Errorf("upsert %d entries for document %s: %w", len(entries), documentID, err)
	}

	slog.InfoContext(ctx, "document indexed", "document_id", documentID, "entries", len(entries))
	return nil
}

// EnqueueIndex publishes an index task for the document. Publish failures
// are logged, not returned: ingestion already succeeded and the task can
// be replayed from the jobs surface.
func (s *Service) EnqueueIndex(ctx context.Context, documentID string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"document_id":    documentID,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIndexTask, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish index.task event", "document_id", documentID, "error", err)
	} else {
		slog.InfoContext(ctx, "published index.task event", "document_id", documentID)
	}
}

// ProcessObject is the ingest-then-enqueue composite used by every trigger
// (upload, watcher, webhook, manual endpoint).
func (s *Service) ProcessObject(ctx context.Context, objectName string) (string, error) {
	id, err := s.Ingest(ctx, objectName)
	if err != nil {
		return "", err
	}
	s.EnqueueIndex(ctx, id)
	return id, nil
}

// Upload stores a new PDF and runs it through the pipeline. Filename
// collisions short-circuit to the existing document; the boolean reports
// whether that happened.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*Document, bool, error) {
	existing, err := s.repo.GetByFilename(ctx, filename)
	if err == nil {
		slog.InfoContext(ctx, "upload matched existing document", "document_id", existing.ID, "filename", filename)
		return existing, true, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}

	objectName := uuid.New().String() + filepath.Ext(filename)
	if err := s.store.Put(ctx, objectName, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return nil, false, err
	}

	id, err := s.ProcessObject(ctx, objectName)
	if err != nil {
		return nil, false, err
	}

	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return doc, false, nil
}

type DocumentDetail struct {
	Document
	ChunkCount int `json:"chunk_count"`
}

func (s *Service) Get(ctx context.Context, id string) (*DocumentDetail, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := s.repo.CountChunks(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "failed to count chunks", "document_id", id, "error", err)
		count = 0
	}

	return &DocumentDetail{Document: *doc, ChunkCount: count}, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Document, int, error) {
	docs, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// Delete removes a document's vector entries, chunks, and row. The vector
// delete runs first; if it fails the relational state is left untouched so
// a retry can finish the job.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.index.DeleteByDocumentID(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteWithChunks(ctx, id)
}

// DeleteByObjectName removes every document whose locator ends with the
// given object name. Vector-index failures are logged and skipped so a
// degraded index never blocks relational cleanup; relational failures are
// reported as a partial result.
func (s *Service) DeleteByObjectName(ctx context.Context, objectName string) (int, error) {
	docs, err := s.repo.FindByLocatorSuffix(ctx, objectName)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		slog.InfoContext(ctx, "no documents match removed object", "object", objectName)
		return 0, nil
	}

	removed := 0
	failed := 0
	for _, doc := range docs {
		if err := s.index.DeleteByDocumentID(ctx, doc.ID); err != nil {
			slog.ErrorContext(ctx, "vector delete failed, continuing", "document_id", doc.ID, "error", err)
		}
		if err := s.repo.DeleteWithChunks(ctx, doc.ID); err != nil {
			slog.ErrorContext(ctx, "relational delete failed", "document_id", doc.ID, "error", err)
			failed++
			continue
		}
		removed++
	}

	if failed > 0 {
		return removed, fmt.Errorf("deleted %d of %d documents for %s: %w", removed, len(docs), objectName, apperr.ErrPartialFailure)
	}
	slog.InfoContext(ctx, "documents removed for object", "object", objectName, "count", removed)
	return removed, nil
}

// ListStorageFiles returns the PDF object names currently in the bucket.
func (s *Service) ListStorageFiles(ctx context.Context) ([]string, error) {
	objects, err := s.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var pdfs []string
	for _, name := range objects {
		if filepath.Ext(name) == ".pdf" {
			pdfs = append(pdfs, name)
		}
	}
	return pdfs, nil
}

// FileURL returns a presigned download URL for a stored object.
func (s *Service) FileURL(ctx context.Context, objectName string, ttl time.Duration) (string, error) {
	exists, err := s.store.Exists(ctx, objectName)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("object %s: %w", objectName, apperr.ErrNotFound)
	}
	return s.store.PresignedURL(ctx, objectName, ttl)
}

// ExistsByLocator reports whether a document row already claims the object.
func (s *Service) ExistsByLocator(ctx context.Context, objectName string) (*Document, bool, error) {
	doc, err := s.repo.GetByLocator(ctx, s.store.Locator(objectName))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return doc, true, nil
}
