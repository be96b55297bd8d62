package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docstream/internal/vector"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// Match is one scored similarity hit.
type Match struct {
	ChunkID  string
	Content  string
	Score    float32
	Metadata map[string]interface{}
}

// objectID derives a stable UUID from the chunk key, so re-upserting the
// same chunk overwrites its object instead of duplicating it.
func objectID(key string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String())
}

// Upsert writes one vector keyed by chunk id. Redeliveries land on the
// same object id, which keeps the store at exactly one vector per chunk.
func (s *Store) Upsert(ctx context.Context, tenantID, key string, vec []float32, metadata map[string]interface{}) error {
	properties := map[string]interface{}{
		"tenantId": tenantID,
		"chunkId":  key,
	}
	for k, v := range metadata {
		properties[propertyName(k)] = v
	}

	resp, err := s.client.Batch().ObjectsBatcher().
		WithObjects(&models.Object{
			ID:         objectID(key),
			Class:      vector.ClassName,
			Properties: properties,
			Vector:     vec,
		}).
		Do(ctx)
	if err != nil {
		return err
	}

	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("upsert chunk %s: %s", key, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Query runs tenant-scoped nearest-neighbor search.
func (s *Store) Query(ctx context.Context, tenantID string, vec []float32, topK int) ([]Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vec)

	where := filters.Where().
		WithPath([]string{"tenantId"}).
		WithOperator(filters.Equal).
		WithValueString(tenantID)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunkId"},
		{Name: "documentId"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(topK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var matches []Match
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return matches, nil
	}
	hits, ok := data[vector.ClassName].([]interface{})
	if !ok {
		return matches, nil
	}

	for _, h := range hits {
		props, ok := h.(map[string]interface{})
		if !ok {
			continue
		}
		m := Match{Metadata: make(map[string]interface{})}
		if content, ok := props["content"].(string); ok {
			m.Content = content
		}
		if chunkID, ok := props["chunkId"].(string); ok {
			m.ChunkID = chunkID
		}
		if documentID, ok := props["documentId"].(string); ok {
			m.Metadata["documentId"] = documentID
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			m.Metadata["chunkIndex"] = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				// Cosine distance in [0,2]; closer is better.
				m.Score = 1 - float32(distance)
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// propertyName maps snake_case metadata keys onto the camelCase schema
// property names.
func propertyName(key string) string {
	switch key {
	case "tenant_id":
		return "tenantId"
	case "document_id":
		return "documentId"
	case "chunk_id":
		return "chunkId"
	case "job_id":
		return "jobId"
	case "chunk_index":
		return "chunkIndex"
	case "chunk_size":
		return "chunkSize"
	case "file_path":
		return "filePath"
	case "content_length":
		return "contentLength"
	case "processed_at":
		return "processedAt"
	default:
		return key
	}
}
