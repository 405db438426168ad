package sync

import (
	"context"
	"log/slog"
	"strings"

	"paperbase/backend/features/document"
)

// Repository is the slice of the document store reconciliation needs.
type Repository interface {
	ListAll(ctx context.Context) ([]document.Document, error)
	DeleteBatch(ctx context.Context, ids []string) error
}

type ObjectLister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

type VectorDeleter interface {
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

// Report summarizes one reconciliation pass.
type Report struct {
	StorageObjects int      `json:"storage_objects"`
	Documents      int      `json:"documents"`
	Orphans        int      `json:"orphans"`
	Removed        int      `json:"removed"`
	VectorFailures int      `json:"vector_failures"`
	RemovedIDs     []string `json:"removed_ids,omitempty"`
}

type Status struct {
	StorageObjects int  `json:"storage_objects"`
	Documents      int  `json:"documents"`
	Orphans        int  `json:"orphans"`
	IsSynced       bool `json:"is_synced"`
}

type Service struct {
	repo   Repository
	store  ObjectLister
	vector VectorDeleter
}

func NewService(repo Repository, store ObjectLister, vector VectorDeleter) *Service {
	return &Service{repo: repo, store: store, vector: vector}
}

// objectName derives the storage object name a document row points at:
// the last path segment of the locator, or the filename for rows written
// before locators carried a scheme.
func objectName(doc document.Document) string {
	if doc.FilePath == "" {
		return doc.Filename
	}
	parts := strings.Split(doc.FilePath, "/")
	return parts[len(parts)-1]
}

// Reconcile removes document rows whose backing object no longer exists.
// Vector deletes are best-effort per orphan; the relational deletes happen
// in a single transaction at the end so a crash mid-pass never leaves a
// half-swept database.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	objects, err := s.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	inStorage := make(map[string]struct{}, len(objects))
	for _, name := range objects {
		inStorage[name] = struct{}{}
	}

	docs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		StorageObjects: len(objects),
		Documents:      len(docs),
	}

	var orphanIDs []string
	for _, doc := range docs {
		if _, ok := inStorage[objectName(doc)]; ok {
			continue
		}
		report.Orphans++
		slog.InfoContext(ctx, "orphaned document", "document_id", doc.ID, "locator", doc.FilePath)

		if err := s.vector.DeleteByDocumentID(ctx, doc.ID); err != nil {
			report.VectorFailures++
			slog.ErrorContext(ctx, "vector delete failed during reconcile, continuing", "document_id", doc.ID, "error", err)
		}
		orphanIDs = append(orphanIDs, doc.ID)
	}

	if len(orphanIDs) == 0 {
		slog.InfoContext(ctx, "reconcile found nothing to remove", "documents", report.Documents, "storage_objects", report.StorageObjects)
		return report, nil
	}

	if err := s.repo.DeleteBatch(ctx, orphanIDs); err != nil {
		return report, err
	}

	report.Removed = len(orphanIDs)
	report.RemovedIDs = orphanIDs
	slog.InfoContext(ctx, "reconcile removed orphaned documents", "removed", report.Removed, "vector_failures", report.VectorFailures)
	return report, nil
}

// Status reports the same orphan derivation without mutating anything.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	objects, err := s.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	inStorage := make(map[string]struct{}, len(objects))
	for _, name := range objects {
		inStorage[name] = struct{}{}
	}

	docs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		StorageObjects: len(objects),
		Documents:      len(docs),
	}
	for _, doc := range docs {
		if _, ok := inStorage[objectName(doc)]; !ok {
			status.Orphans++
		}
	}
	status.IsSynced = status.Orphans == 0
	return status, nil
}
