// Package answer implements the retrieval/answer pipeline: similarity
// search, context assembly, prompting, and source attribution.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"paperbase/backend/internal/apperr"
)

const (
	// DefaultK is the retrieval depth used when the caller does not pick one.
	DefaultK = 5

	previewLimit = 200

	noDocumentsAnswer = "No relevant documents were found. Try a different question."
	apologyAnswer     = "Sorry, an answer could not be generated right now. Please try again later."
)

// Hit is one similarity-search result with the metadata replicated into the
// vector index, so answering needs no join back to the relational store.
type Hit struct {
	Content    string
	ChunkID    string
	DocumentID string
	ChunkIndex int
	PageNumber int
}

type Source struct {
	ChunkID        string `json:"chunk_id"`
	DocumentID     string `json:"document_id"`
	PageNumber     int    `json:"page_number"`
	ContentPreview string `json:"content_preview"`
}

type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Context string   `json:"context"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	embedder  Embedder
	searcher  VectorSearcher
	completer Completer
	logger    *QueryLogger
}

func NewService(e Embedder, s VectorSearcher, c Completer, l *QueryLogger) *Service {
	return &Service{embedder: e, searcher: s, completer: c, logger: l}
}

// Answer runs the full pipeline for one question. Retrieval and provider
// failures degrade to canned answers rather than errors; only an empty query
// is rejected.
func (s *Service) Answer(ctx context.Context, query string, k int) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", apperr.ErrValidation)
	}
	if k <= 0 {
		k = DefaultK
	}

	start := time.Now()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.ErrorContext(ctx, "query embedding failed", "error", err)
		return &Result{Answer: apologyAnswer, Sources: []Source{}}, nil
	}

	hits, err := s.searcher.Search(ctx, vec, k)
	if err != nil {
		slog.ErrorContext(ctx, "similarity search failed", "error", err)
		return &Result{Answer: apologyAnswer, Sources: []Source{}}, nil
	}

	if s.logger != nil {
		defer func() {
			s.logger.Log(QueryLogEntry{
				Query:      query,
				NumResults: len(hits),
				Duration:   time.Since(start),
			})
		}()
	}

	if len(hits) == 0 {
		return &Result{Answer: noDocumentsAnswer, Sources: []Source{}}, nil
	}

	contextText := buildContext(hits)
	prompt := buildPrompt(query, contextText)
	sources := buildSources(hits)

	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		// The caller-facing contract promises a response; the retrieved
		// sources still describe what would have grounded the answer.
		slog.ErrorContext(ctx, "completion failed", "error", err)
		return &Result{Answer: apologyAnswer, Sources: sources, Context: contextText}, nil
	}

	return &Result{Answer: text, Sources: sources, Context: contextText}, nil
}

// buildContext concatenates the retrieved chunks in search order, each with a
// 1-based display index and its page number when known.
func buildContext(hits []Hit) string {
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "[Document %d]\n", i+1)
		if h.PageNumber > 0 {
			fmt.Fprintf(&b, "(Page %d)\n", h.PageNumber)
		}
		b.WriteString(h.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

func buildPrompt(query, contextText string) string {
	return fmt.Sprintf(`Answer the question using only the documents below. Do not speculate beyond what the documents contain.

Documents:
%s
Question: %s

Answer:`, contextText, query)
}

func buildSources(hits []Hit) []Source {
	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		preview := h.Content
		if r := []rune(preview); len(r) > previewLimit {
			preview = string(r[:previewLimit]) + "..."
		}
		sources = append(sources, Source{
			ChunkID:        h.ChunkID,
			DocumentID:     h.DocumentID,
			PageNumber:     h.PageNumber,
			ContentPreview: preview,
		})
	}
	return sources
}
