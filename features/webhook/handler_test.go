package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"paperbase/backend/features/document"
)

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) ProcessObject(ctx context.Context, objectName string) (string, error) {
	args := m.Called(ctx, objectName)
	return args.String(0), args.Error(1)
}

func (m *MockIngestor) ExistsByLocator(ctx context.Context, objectName string) (*document.Document, bool, error) {
	args := m.Called(ctx, objectName)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*document.Document), args.Bool(1), args.Error(2)
}

func (m *MockIngestor) DeleteByObjectName(ctx context.Context, objectName string) (int, error) {
	args := m.Called(ctx, objectName)
	return args.Int(0), args.Error(1)
}

type MockProcessedSet struct {
	mock.Mock
}

func (m *MockProcessedSet) MarkProcessed(objectName string) {
	m.Called(objectName)
}

func (m *MockProcessedSet) Unmark(objectName string) {
	m.Called(objectName)
}

func eventBody(eventName, key string) string {
	return `{"Records":[{"eventName":"` + eventName + `","s3":{"object":{"key":"` + key + `"}}}]}`
}

func postEvent(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/storage", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleStorageEvent(rec, req)
	return rec
}

func TestWebhookCreatedEventIngests(t *testing.T) {
	ingestor := new(MockIngestor)
	processed := new(MockProcessedSet)
	h := NewHandler(ingestor, processed)

	ingestor.On("ExistsByLocator", mock.Anything, "new.pdf").Return(nil, false, nil)
	ingestor.On("ProcessObject", mock.Anything, "new.pdf").Return("doc-1", nil)
	processed.On("MarkProcessed", "new.pdf").Return()

	rec := postEvent(h, eventBody("s3:ObjectCreated:Put", "new.pdf"))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ProcessedObjects []string `json:"processed_objects"`
		DeletedObjects   []string `json:"deleted_objects"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"new.pdf"}, resp.ProcessedObjects)
	assert.Empty(t, resp.DeletedObjects)
	processed.AssertCalled(t, "MarkProcessed", "new.pdf")
}

func TestWebhookCreatedSkipsExistingDocument(t *testing.T) {
	ingestor := new(MockIngestor)
	processed := new(MockProcessedSet)
	h := NewHandler(ingestor, processed)

	ingestor.On("ExistsByLocator", mock.Anything, "known.pdf").
		Return(&document.Document{ID: "doc-1"}, true, nil)
	processed.On("MarkProcessed", "known.pdf").Return()

	rec := postEvent(h, eventBody("s3:ObjectCreated:Put", "known.pdf"))

	assert.Equal(t, http.StatusOK, rec.Code)
	ingestor.AssertNotCalled(t, "ProcessObject", mock.Anything, mock.Anything)
	processed.AssertCalled(t, "MarkProcessed", "known.pdf")
}

func TestWebhookSkipsNonPDF(t *testing.T) {
	ingestor := new(MockIngestor)
	h := NewHandler(ingestor, new(MockProcessedSet))

	rec := postEvent(h, eventBody("s3:ObjectCreated:Put", "image.png"))

	assert.Equal(t, http.StatusOK, rec.Code)
	ingestor.AssertNotCalled(t, "ExistsByLocator", mock.Anything, mock.Anything)
}

func TestWebhookRemovedEventDeletes(t *testing.T) {
	ingestor := new(MockIngestor)
	processed := new(MockProcessedSet)
	h := NewHandler(ingestor, processed)

	ingestor.On("DeleteByObjectName", mock.Anything, "gone.pdf").Return(1, nil)
	processed.On("Unmark", "gone.pdf").Return()

	rec := postEvent(h, eventBody("s3:ObjectRemoved:Delete", "gone.pdf"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted_objects":["gone.pdf"]`)
	processed.AssertCalled(t, "Unmark", "gone.pdf")
}

func TestWebhookAlwaysReturns200(t *testing.T) {
	// A failed ingest must still answer 200 or MinIO will retry forever.
	ingestor := new(MockIngestor)
	processed := new(MockProcessedSet)
	h := NewHandler(ingestor, processed)

	ingestor.On("ExistsByLocator", mock.Anything, "bad.pdf").Return(nil, false, nil)
	ingestor.On("ProcessObject", mock.Anything, "bad.pdf").Return("", errors.New("storage down"))

	rec := postEvent(h, eventBody("s3:ObjectCreated:Put", "bad.pdf"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processed_objects":[]`)
	processed.AssertNotCalled(t, "MarkProcessed", mock.Anything)
}

func TestWebhookMalformedPayloadSoftFails(t *testing.T) {
	h := NewHandler(new(MockIngestor), new(MockProcessedSet))

	rec := postEvent(h, "{not json")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)
}

func TestWebhookMultipleRecords(t *testing.T) {
	ingestor := new(MockIngestor)
	processed := new(MockProcessedSet)
	h := NewHandler(ingestor, processed)

	body := `{"Records":[
		{"eventName":"s3:ObjectCreated:Put","s3":{"object":{"key":"a.pdf"}}},
		{"eventName":"s3:ObjectRemoved:Delete","s3":{"object":{"key":"b.pdf"}}}
	]}`

	ingestor.On("ExistsByLocator", mock.Anything, "a.pdf").Return(nil, false, nil)
	ingestor.On("ProcessObject", mock.Anything, "a.pdf").Return("doc-1", nil)
	ingestor.On("DeleteByObjectName", mock.Anything, "b.pdf").Return(1, nil)
	processed.On("MarkProcessed", "a.pdf").Return()
	processed.On("Unmark", "b.pdf").Return()

	rec := postEvent(h, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a.pdf")
	assert.Contains(t, rec.Body.String(), "b.pdf")
}
