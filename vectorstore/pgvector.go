package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"ally-backend/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGVector is a vector index backed by Postgres with the pgvector
// extension. Cosine distance is converted to similarity (score = 1 - d)
// so scores match the Pinecone backend.
type PGVector struct {
	db        *pgxpool.Pool
	dimension int
}

// NewPGVector creates a pgvector-backed index over an existing pool.
func NewPGVector(db *pgxpool.Pool, dimension int) *PGVector {
	return &PGVector{db: db, dimension: dimension}
}

// NewPGVectorFromEnv connects using DATABASE_URL.
func NewPGVectorFromEnv(ctx context.Context) (*PGVector, error) {
	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required for pgvector backend")
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return NewPGVector(pool, dimensionFromEnv()), nil
}

// Close releases the underlying pool.
func (p *PGVector) Close() {
	p.db.Close()
}

// formatVector formats an embedding vector as a string for pgx
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	var parts []string
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%.6f", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Upsert inserts entries, overwriting rows that share an id.
func (p *PGVector) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, entry := range entries {
		if len(entry.Values) != p.dimension {
			return fmt.Errorf("entry %s: embedding must be %d dimensions, got %d", entry.ID, p.dimension, len(entry.Values))
		}
		metadataJSON, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO case_chunks (id, metadata, embedding)
			VALUES ($1, $2, $3::vector)
			ON CONFLICT (id) DO UPDATE
			SET metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`,
			entry.ID, string(metadataJSON), formatVector(entry.Values),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert entry %s: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns the top-k entries by cosine similarity.
func (p *PGVector) Query(ctx context.Context, vector []float64, topK int) ([]Match, error) {
	if len(vector) != p.dimension {
		return nil, fmt.Errorf("query vector must be %d dimensions, got %d", p.dimension, len(vector))
	}

	rows, err := p.db.Query(ctx, `
		SELECT id, metadata, 1 - (embedding <=> $1::vector) AS score
		FROM case_chunks
		ORDER BY embedding <=> $1::vector
		LIMIT $2`,
		formatVector(vector), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query case chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var metadataJSON []byte
		if err := rows.Scan(&m.ID, &metadataJSON, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan case chunk: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", m.ID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case chunks: %w", err)
	}
	return matches, nil
}

// Stats returns the row count and configured dimensionality.
func (p *PGVector) Stats(ctx context.Context) (Stats, error) {
	var count int
	if err := p.db.QueryRow(ctx, "SELECT COUNT(*) FROM case_chunks").Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("failed to count case chunks: %w", err)
	}
	return Stats{Count: count, Dimension: p.dimension}, nil
}
