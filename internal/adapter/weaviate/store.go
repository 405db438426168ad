// Package weaviate implements the vector-index contract on a Weaviate
// DocumentChunk class.
package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"paperbase/backend/internal/answer"
	"paperbase/backend/internal/vector"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// UpsertEntries writes a batch of chunk embeddings. Running it twice for the
// same document produces duplicate objects; callers delete first when
// re-indexing.
func (s *Store) UpsertEntries(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(entries))
	for _, e := range entries {
		objects = append(objects, &models.Object{
			Class: vector.ClassName,
			Properties: map[string]interface{}{
				"content":    e.Content,
				"chunkId":    e.ChunkID,
				"documentId": e.DocumentID,
				"chunkIndex": e.ChunkIndex,
				"pageNumber": e.PageNumber,
			},
			Vector: e.Vector,
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch upsert: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Search returns the k nearest entries to the query vector, best first. No
// minimum-score threshold is applied.
func (s *Store) Search(ctx context.Context, queryVector []float32, k int) ([]answer.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunkId"},
		{Name: "documentId"},
		{Name: "chunkIndex"},
		{Name: "pageNumber"},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var hits []answer.Hit
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if raw, ok := data[vector.ClassName].([]interface{}); ok {
			for _, r := range raw {
				props, ok := r.(map[string]interface{})
				if !ok {
					continue
				}
				hit := answer.Hit{}
				if content, ok := props["content"].(string); ok {
					hit.Content = content
				}
				if id, ok := props["chunkId"].(string); ok {
					hit.ChunkID = id
				}
				if id, ok := props["documentId"].(string); ok {
					hit.DocumentID = id
				}
				if idx, ok := props["chunkIndex"].(float64); ok {
					hit.ChunkIndex = int(idx)
				}
				if page, ok := props["pageNumber"].(float64); ok {
					hit.PageNumber = int(page)
				}
				hits = append(hits, hit)
			}
		}
	}
	return hits, nil
}

// DeleteByDocumentID removes every entry of one document by metadata filter.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}
