package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"ally-backend/models"
)

// Pinecone is a minimal REST client to a Pinecone serverless index.
// Upserts are issued without waiting for server-side settle; the index
// applies them asynchronously.
type Pinecone struct {
	host   string
	apiKey string
	client *http.Client
}

// PineconeConfig contains connection details for a Pinecone index.
type PineconeConfig struct {
	Host    string // e.g. https://my-index-abc123.svc.us-east-1.pinecone.io
	APIKey  string
	Timeout time.Duration
}

// NewPinecone creates a Pinecone index client.
func NewPinecone(cfg PineconeConfig) (*Pinecone, error) {
	if cfg.Host == "" {
		return nil, errors.New("pinecone host is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("pinecone API key is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Pinecone{
		host:   cfg.Host,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// NewPineconeFromEnv creates a Pinecone client from environment variables.
func NewPineconeFromEnv() (*Pinecone, error) {
	host := os.Getenv("PINECONE_INDEX_HOST")
	if host == "" {
		return nil, errors.New("PINECONE_INDEX_HOST environment variable is required")
	}
	apiKey := os.Getenv("PINECONE_API_KEY")
	if apiKey == "" {
		return nil, errors.New("PINECONE_API_KEY environment variable is required")
	}
	return NewPinecone(PineconeConfig{Host: host, APIKey: apiKey})
}

type pineconeUpsertRequest struct {
	Vectors []models.IndexEntry `json:"vectors"`
}

type pineconeQueryRequest struct {
	Vector          []float64 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"matches"`
}

type pineconeStatsResponse struct {
	TotalVectorCount int `json:"totalVectorCount"`
	Dimension        int `json:"dimension"`
}

// Upsert uploads entries; existing ids are overwritten.
func (p *Pinecone) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	return p.postJSON(ctx, "/vectors/upsert", pineconeUpsertRequest{Vectors: entries}, nil)
}

// Query returns the top-k matches for a vector, ranked by score descending.
func (p *Pinecone) Query(ctx context.Context, vector []float64, topK int) ([]Match, error) {
	var resp pineconeQueryResponse
	err := p.postJSON(ctx, "/query", pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return matches, nil
}

// Stats returns the index vector count and dimensionality.
func (p *Pinecone) Stats(ctx context.Context) (Stats, error) {
	var resp pineconeStatsResponse
	if err := p.postJSON(ctx, "/describe_index_stats", struct{}{}, &resp); err != nil {
		return Stats{}, err
	}
	return Stats{Count: resp.TotalVectorCount, Dimension: resp.Dimension}, nil
}

func (p *Pinecone) postJSON(ctx context.Context, path string, body any, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.host+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
