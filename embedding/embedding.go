// Package embedding maps text to fixed-dimension normalized vectors.
package embedding

import "context"

// Provider converts text into normalized embedding vectors. Document and
// query embeddings may use different task types on the provider side, so
// both directions are exposed. Implementations must be safe for concurrent
// use.
type Provider interface {
	// EmbedDocument embeds text for storage in the index.
	EmbedDocument(ctx context.Context, text string) ([]float64, error)

	// EmbedDocuments embeds a batch of texts for storage, preserving order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)

	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float64, error)

	// Dimension returns the fixed vector dimensionality.
	Dimension() int
}
