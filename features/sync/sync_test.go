package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"paperbase/backend/features/document"
	"paperbase/backend/internal/apperr"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListAll(ctx context.Context) ([]document.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.Document), args.Error(1)
}

func (m *MockRepository) DeleteBatch(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

type MockLister struct {
	mock.Mock
}

func (m *MockLister) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockVectorDeleter struct {
	mock.Mock
}

func (m *MockVectorDeleter) DeleteByDocumentID(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func TestReconcileRemovesOrphans(t *testing.T) {
	repo := new(MockRepository)
	lister := new(MockLister)
	vec := new(MockVectorDeleter)
	svc := NewService(repo, lister, vec)

	lister.On("List", mock.Anything, "").Return([]string{"kept.pdf"}, nil)
	repo.On("ListAll", mock.Anything).Return([]document.Document{
		{ID: "doc-1", FilePath: "minio://pdf-documents/kept.pdf"},
		{ID: "doc-2", FilePath: "minio://pdf-documents/gone.pdf"},
	}, nil)
	vec.On("DeleteByDocumentID", mock.Anything, "doc-2").Return(nil)
	repo.On("DeleteBatch", mock.Anything, []string{"doc-2"}).Return(nil)

	report, err := svc.Reconcile(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, report.StorageObjects)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 1, report.Orphans)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 0, report.VectorFailures)
	vec.AssertNotCalled(t, "DeleteByDocumentID", mock.Anything, "doc-1")
}

func TestReconcileVectorFailureDoesNotBlockRelationalCleanup(t *testing.T) {
	repo := new(MockRepository)
	lister := new(MockLister)
	vec := new(MockVectorDeleter)
	svc := NewService(repo, lister, vec)

	lister.On("List", mock.Anything, "").Return([]string{}, nil)
	repo.On("ListAll", mock.Anything).Return([]document.Document{
		{ID: "doc-1", FilePath: "minio://pdf-documents/a.pdf"},
	}, nil)
	vec.On("DeleteByDocumentID", mock.Anything, "doc-1").Return(apperr.ErrExternal)
	repo.On("DeleteBatch", mock.Anything, []string{"doc-1"}).Return(nil)

	report, err := svc.Reconcile(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.VectorFailures)
}

func TestReconcileNothingToDo(t *testing.T) {
	repo := new(MockRepository)
	lister := new(MockLister)
	svc := NewService(repo, lister, new(MockVectorDeleter))

	lister.On("List", mock.Anything, "").Return([]string{"a.pdf"}, nil)
	repo.On("ListAll", mock.Anything).Return([]document.Document{
		{ID: "doc-1", FilePath: "minio://pdf-documents/a.pdf"},
	}, nil)

	report, err := svc.Reconcile(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 0, report.Orphans)
	assert.Equal(t, 0, report.Removed)
	repo.AssertNotCalled(t, "DeleteBatch", mock.Anything, mock.Anything)
}

func TestReconcileIsIdempotent(t *testing.T) {
	// A second pass over an already-clean state removes nothing.
	repo := new(MockRepository)
	lister := new(MockLister)
	vec := new(MockVectorDeleter)
	svc := NewService(repo, lister, vec)

	lister.On("List", mock.Anything, "").Return([]string{"kept.pdf"}, nil)
	repo.On("ListAll", mock.Anything).Return([]document.Document{
		{ID: "doc-1", FilePath: "minio://pdf-documents/kept.pdf"},
		{ID: "doc-2", FilePath: "minio://pdf-documents/gone.pdf"},
	}, nil).Once()
	vec.On("DeleteByDocumentID", mock.Anything, "doc-2").Return(nil)
	repo.On("DeleteBatch", mock.Anything, []string{"doc-2"}).Return(nil)

	first, err := svc.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, first.Removed)

	repo.On("ListAll", mock.Anything).Return([]document.Document{
		{ID: "doc-1", FilePath: "minio://pdf-documents/kept.pdf"},
	}, nil)

	second, err := svc.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, second.Removed)
}

func TestReconcileBatchDeleteFailure(t *testing.T) {
	repo := new(MockRepository)
	lister := new(MockLister)
	vec := new(MockVectorDeleter)
	svc := NewService(repo, lister, vec)

	lister.On("List", mock.Anything, "").Return([]string{}, nil)
	repo.On("ListAll", mock.Anything).Return([]document.Document{
		{ID: "doc-1", FilePath: "minio://pdf-documents/a.pdf"},
	}, nil)
	vec.On("DeleteByDocumentID", mock.Anything, "doc-1").Return(nil)
	repo.On("DeleteBatch", mock.Anything, []string{"doc-1"}).Return(errors.New("db down"))

	report, err := svc.Reconcile(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 0, report.Removed)
}

func TestReconcileHandlesPrefixlessPaths(t *testing.T) {
	repo := new(MockRepository)
	lister := new(MockLister)
	vec := new(MockVectorDeleter)
	svc := NewService(repo, lister, vec)

	lister.On("List", mock.Anything, "").Return([]string{"legacy.pdf"}, nil)
	repo.On("ListAll", mock.Anything).Return([]document.Document{
		{ID: "doc-1", FilePath: "legacy.pdf"},
		{ID: "doc-2", FilePath: "", Filename: "named.pdf"},
	}, nil)
	vec.On("DeleteByDocumentID", mock.Anything, "doc-2").Return(nil)
	repo.On("DeleteBatch", mock.Anything, []string{"doc-2"}).Return(nil)

	report, err := svc.Reconcile(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, report.Orphans)
	assert.Equal(t, []string{"doc-2"}, report.RemovedIDs)
}

func TestStatusIsReadOnly(t *testing.T) {
	repo := new(MockRepository)
	lister := new(MockLister)
	svc := NewService(repo, lister, new(MockVectorDeleter))

	lister.On("List", mock.Anything, "").Return([]string{"a.pdf"}, nil)
	repo.On("ListAll", mock.Anything).Return([]document.Document{
		{ID: "doc-1", FilePath: "minio://pdf-documents/a.pdf"},
		{ID: "doc-2", FilePath: "minio://pdf-documents/gone.pdf"},
	}, nil)

	status, err := svc.Status(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, status.Orphans)
	assert.False(t, status.IsSynced)
	repo.AssertNotCalled(t, "DeleteBatch", mock.Anything, mock.Anything)
}
