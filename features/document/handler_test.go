package document

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"paperbase/backend/internal/apperr"
	"paperbase/backend/internal/pdfx"
	"paperbase/backend/internal/text"
)

func newHandlerFixture(repo *MockRepository, store *MockObjectStore, extract *MockExtractor) *Handler {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	svc := NewService(repo, store, extract, new(MockEmbedder), new(MockChunkIndex), pub, &text.Splitter{Size: 1000, Overlap: 200})
	return NewHandler(svc, 50<<20)
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	assert.NoError(t, err)
	_, err = part.Write(content)
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHandlerUploadRejectsNonPDF(t *testing.T) {
	h := newHandlerFixture(new(MockRepository), new(MockObjectStore), new(MockExtractor))

	body, contentType := multipartBody(t, "notes.txt", []byte("plain text"))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestHandlerUploadRejectsMissingFile(t *testing.T) {
	h := newHandlerFixture(new(MockRepository), new(MockObjectStore), new(MockExtractor))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	assert.NoError(t, writer.WriteField("name", "no file here"))
	assert.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerUploadRejectsEmptyFile(t *testing.T) {
	h := newHandlerFixture(new(MockRepository), new(MockObjectStore), new(MockExtractor))

	body, contentType := multipartBody(t, "empty.pdf", nil)
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "empty")
}

func TestHandlerUploadSuccess(t *testing.T) {
	repo := new(MockRepository)
	store := new(MockObjectStore)
	extract := new(MockExtractor)
	h := newHandlerFixture(repo, store, extract)

	repo.On("GetByFilename", mock.Anything, "report.pdf").Return(nil, apperr.ErrNotFound)
	store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("Get", mock.Anything, mock.Anything).Return([]byte("pdf"), nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	extract.On("Extract", mock.Anything).Return([]pdfx.Page{{Number: 1, Text: "content"}}, nil)
	repo.On("InsertChunks", mock.Anything, mock.Anything).Return(nil)
	repo.On("MarkCompleted", mock.Anything, "doc-1").Return(nil)
	repo.On("Get", mock.Anything, "doc-1").Return(&Document{ID: "doc-1", Filename: "report.pdf", Status: StatusCompleted}, nil)

	body, contentType := multipartBody(t, "report.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data Document `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp.Data.ID)
}

func TestHandlerUploadExistingReturnsOK(t *testing.T) {
	repo := new(MockRepository)
	h := newHandlerFixture(repo, new(MockObjectStore), new(MockExtractor))

	repo.On("GetByFilename", mock.Anything, "report.pdf").
		Return(&Document{ID: "doc-9", Filename: "report.pdf"}, nil)

	body, contentType := multipartBody(t, "report.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "doc-9")
}

func TestHandlerGetNotFound(t *testing.T) {
	repo := new(MockRepository)
	h := newHandlerFixture(repo, new(MockObjectStore), new(MockExtractor))

	repo.On("Get", mock.Anything, "missing").Return(nil, apperr.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/documents/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestHandlerGetIncludesChunkCount(t *testing.T) {
	repo := new(MockRepository)
	h := newHandlerFixture(repo, new(MockObjectStore), new(MockExtractor))

	repo.On("Get", mock.Anything, "doc-1").Return(&Document{ID: "doc-1", Status: StatusCompleted}, nil)
	repo.On("CountChunks", mock.Anything, "doc-1").Return(4, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil)
	req.SetPathValue("id", "doc-1")
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data DocumentDetail `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Data.ChunkCount)
}

func TestHandlerListEmpty(t *testing.T) {
	repo := new(MockRepository)
	h := newHandlerFixture(repo, new(MockObjectStore), new(MockExtractor))

	repo.On("List", mock.Anything, 100, 0).Return([]Document{}, nil)
	repo.On("Count", mock.Anything).Return(0, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestHandlerDeleteNotFound(t *testing.T) {
	repo := new(MockRepository)
	h := newHandlerFixture(repo, new(MockObjectStore), new(MockExtractor))

	repo.On("Get", mock.Anything, "missing").Return(nil, apperr.ErrNotFound)

	req := httptest.NewRequest(http.MethodDelete, "/documents/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	h.Delete(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerProcessFromStorageValidation(t *testing.T) {
	h := newHandlerFixture(new(MockRepository), new(MockObjectStore), new(MockExtractor))

	req := httptest.NewRequest(http.MethodPost, "/documents/process-from-storage", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.ProcessFromStorage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "object_name is required")
}

func TestHandlerProcessFromStorageExisting(t *testing.T) {
	repo := new(MockRepository)
	store := new(MockObjectStore)
	h := newHandlerFixture(repo, store, new(MockExtractor))

	repo.On("GetByLocator", mock.Anything, "minio://pdf-documents/a.pdf").
		Return(&Document{ID: "doc-1"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/documents/process-from-storage", strings.NewReader(`{"object_name":"a.pdf"}`))
	rec := httptest.NewRecorder()

	h.ProcessFromStorage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "doc-1")
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestHandlerProcessFromStorageMissingObject(t *testing.T) {
	repo := new(MockRepository)
	store := new(MockObjectStore)
	h := newHandlerFixture(repo, store, new(MockExtractor))

	repo.On("GetByLocator", mock.Anything, mock.Anything).Return(nil, apperr.ErrNotFound)
	store.On("Get", mock.Anything, "ghost.pdf").Return(nil, apperr.ErrNotFound)

	req := httptest.NewRequest(http.MethodPost, "/documents/process-from-storage", strings.NewReader(`{"object_name":"ghost.pdf"}`))
	rec := httptest.NewRecorder()

	h.ProcessFromStorage(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
