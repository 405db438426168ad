package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"paperbase/backend/internal/answer"
	"paperbase/backend/internal/apperr"
)

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, query string, k int) (*answer.Result, error) {
	args := m.Called(ctx, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*answer.Result), args.Error(1)
}

func postChat(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Ask(rec, req)
	return rec
}

func TestAskSuccess(t *testing.T) {
	answerer := new(MockAnswerer)
	h := NewHandler(answerer)

	answerer.On("Answer", mock.Anything, "what is chunking?", 5).Return(&answer.Result{
		Answer:  "Chunking splits text into overlapping windows.",
		Sources: []answer.Source{{DocumentID: "doc-1", ContentPreview: "Chunking..."}},
	}, nil)

	rec := postChat(h, `{"query":"what is chunking?"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "overlapping windows")
	assert.Contains(t, rec.Body.String(), "doc-1")
}

func TestAskEchoesQueryAndOmitsContext(t *testing.T) {
	answerer := new(MockAnswerer)
	h := NewHandler(answerer)

	answerer.On("Answer", mock.Anything, "what is chunking?", 5).Return(&answer.Result{
		Answer:  "Chunking splits text into overlapping windows.",
		Sources: []answer.Source{{DocumentID: "doc-1", ContentPreview: "Chunking..."}},
		Context: "[Document 1]\nChunking internals not meant for clients.",
	}, nil)

	rec := postChat(h, `{"query":"what is chunking?"}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Answer  string          `json:"answer"`
			Sources []answer.Source `json:"sources"`
			Query   string          `json:"query"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "what is chunking?", body.Data.Query)
	assert.Len(t, body.Data.Sources, 1)
	assert.NotContains(t, rec.Body.String(), "not meant for clients")
}

func TestAskCustomK(t *testing.T) {
	answerer := new(MockAnswerer)
	h := NewHandler(answerer)

	answerer.On("Answer", mock.Anything, "q", 3).Return(&answer.Result{Answer: "ok"}, nil)

	rec := postChat(h, `{"query":"q","k":3}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	answerer.AssertExpectations(t)
}

func TestAskEmptyQueryRejected(t *testing.T) {
	answerer := new(MockAnswerer)
	h := NewHandler(answerer)

	answerer.On("Answer", mock.Anything, "", 5).Return(nil, apperr.ErrValidation)

	rec := postChat(h, `{"query":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "query is required")
}

func TestAskMalformedBody(t *testing.T) {
	h := NewHandler(new(MockAnswerer))

	rec := postChat(h, "{broken")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}
