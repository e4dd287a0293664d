// Package vectorstore provides the vector index abstraction and its
// Pinecone, pgvector and in-memory backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ally-backend/models"
)

// ErrUnavailable indicates the index is unreachable or uninitialized.
// Queries translate it into a system_error rejection; ingestion treats it
// as fatal at startup.
var ErrUnavailable = errors.New("vector index unavailable")

// Match is a single ranked hit from a similarity query.
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// Stats describes the index contents.
type Stats struct {
	Count     int `json:"count"`
	Dimension int `json:"dimension"`
}

// Index stores embedding vectors with bounded metadata and supports top-k
// similarity queries. Upserting an existing id overwrites the prior entry.
// Implementations must be safe for concurrent use.
type Index interface {
	Upsert(ctx context.Context, entries []models.IndexEntry) error
	Query(ctx context.Context, vector []float64, topK int) ([]Match, error)
	Stats(ctx context.Context) (Stats, error)
}

// StatusError carries an HTTP status from a remote index backend so the
// ingestion pipeline can classify transient and rate-limit failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("index API error: %d - %s", e.Code, e.Body)
}

// NewIndexFromEnv creates the index backend selected by VECTOR_BACKEND
// (pinecone, pgvector or memory; default pinecone).
func NewIndexFromEnv(ctx context.Context) (Index, error) {
	backend := os.Getenv("VECTOR_BACKEND")
	if backend == "" {
		backend = "pinecone"
	}

	switch backend {
	case "pinecone":
		return NewPineconeFromEnv()
	case "pgvector":
		return NewPGVectorFromEnv(ctx)
	case "memory":
		return NewMemory(dimensionFromEnv()), nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", backend)
	}
}

func dimensionFromEnv() int {
	if d := os.Getenv("EMBEDDING_DIMENSION"); d != "" {
		var dim int
		if _, err := fmt.Sscanf(d, "%d", &dim); err == nil && dim > 0 {
			return dim
		}
	}
	return 1024
}
