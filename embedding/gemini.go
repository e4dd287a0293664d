package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	defaultEmbeddingAPI = "https://generativelanguage.googleapis.com/v1beta/models/gemini-embedding-001:embedContent"
	defaultBatchAPI     = "https://generativelanguage.googleapis.com/v1beta/models/gemini-embedding-001:batchEmbedContents"

	defaultDimension = 1024

	maxRetries     = 3
	initialBackoff = time.Second

	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// ErrEmbeddingFailed is returned when all retry attempts are exhausted.
var ErrEmbeddingFailed = errors.New("failed to generate embedding")

type embeddingRequest struct {
	Model                string       `json:"model"`
	Content              contentInput `json:"content"`
	TaskType             string       `json:"task_type,omitempty"`
	OutputDimensionality int          `json:"output_dimensionality,omitempty"`
}

type contentInput struct {
	Parts []partInput `json:"parts"`
}

type partInput struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Embedding embeddingData `json:"embedding"`
}

type embeddingData struct {
	Values []float64 `json:"values"`
}

// batchEmbeddingItem is the structure returned by the batch API (no nested
// "embedding" key)
type batchEmbeddingItem struct {
	Values []float64 `json:"values"`
}

type batchEmbeddingRequest struct {
	Requests []embeddingRequest `json:"requests"`
}

type batchEmbeddingResponse struct {
	Embeddings []batchEmbeddingItem `json:"embeddings"`
}

// Gemini is an embedding provider backed by the Gemini embedding REST API.
// Vectors are L2-normalized before being returned, which makes inner
// product equal to cosine similarity downstream.
type Gemini struct {
	apiKey    string
	model     string
	dimension int
	client    *http.Client

	// endpoints are fields so tests can point at a local server
	embeddingAPI string
	batchAPI     string
}

// GeminiOption is a functional option for the Gemini provider
type GeminiOption func(*Gemini)

// WithDimension overrides the output dimensionality.
func WithDimension(dim int) GeminiOption {
	return func(g *Gemini) {
		g.dimension = dim
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(g *Gemini) {
		g.client = client
	}
}

// WithEndpoints overrides the single and batch endpoint URLs.
func WithEndpoints(single, batch string) GeminiOption {
	return func(g *Gemini) {
		g.embeddingAPI = single
		g.batchAPI = batch
	}
}

// NewGemini creates a Gemini embedding provider.
func NewGemini(apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	g := &Gemini{
		apiKey:       apiKey,
		model:        "models/gemini-embedding-001",
		dimension:    defaultDimension,
		client:       &http.Client{Timeout: 60 * time.Second},
		embeddingAPI: defaultEmbeddingAPI,
		batchAPI:     defaultBatchAPI,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// NewGeminiFromEnv creates a Gemini provider from environment variables.
func NewGeminiFromEnv() (*Gemini, error) {
	opts := []GeminiOption{}
	if dimStr := os.Getenv("EMBEDDING_DIMENSION"); dimStr != "" {
		dim, err := strconv.Atoi(dimStr)
		if err != nil || dim <= 0 {
			return nil, fmt.Errorf("invalid EMBEDDING_DIMENSION: %q", dimStr)
		}
		opts = append(opts, WithDimension(dim))
	}
	return NewGemini(os.Getenv("GEMINI_API_KEY"), opts...)
}

// Dimension returns the fixed vector dimensionality.
func (g *Gemini) Dimension() int {
	return g.dimension
}

// EmbedDocument embeds a single text with the document task type.
func (g *Gemini) EmbedDocument(ctx context.Context, text string) ([]float64, error) {
	return g.embed(ctx, text, taskTypeDocument)
}

// EmbedQuery embeds a search query with the query task type.
func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return g.embed(ctx, text, taskTypeQuery)
}

func (g *Gemini) embed(ctx context.Context, text, taskType string) ([]float64, error) {
	reqBody := embeddingRequest{
		Model: g.model,
		Content: contentInput{
			Parts: []partInput{{Text: text}},
		},
		TaskType:             taskType,
		OutputDimensionality: g.dimension,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, "POST", g.embeddingAPI, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.client.Do(req)
		if err != nil {
			if attempt == maxRetries-1 {
				return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, err)
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var apiResp embeddingResponse
			err := json.NewDecoder(resp.Body).Decode(&apiResp)
			resp.Body.Close()
			if err != nil {
				if attempt == maxRetries-1 {
					return nil, fmt.Errorf("failed to decode response: %w", err)
				}
				continue
			}
			values := apiResp.Embedding.Values
			if len(values) == 0 {
				return nil, errors.New("API returned empty embedding")
			}
			Normalize(values)
			return values, nil
		}

		resp.Body.Close()

		// Don't retry on 400 or 401 errors
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("API error: %d", resp.StatusCode)
		}

		if attempt == maxRetries-1 {
			return nil, fmt.Errorf("API error after %d attempts: %d", maxRetries, resp.StatusCode)
		}
	}

	return nil, ErrEmbeddingFailed
}

// EmbedDocuments embeds a batch of texts via the batch endpoint, preserving
// order. Batches larger than the API limit are split transparently.
func (g *Gemini) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	const apiBatchLimit = 100

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += apiBatchLimit {
		end := start + apiBatchLimit
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := g.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)

		if end < len(texts) {
			// Brief sleep to avoid rate limits
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
	return vectors, nil
}

func (g *Gemini) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	requests := make([]embeddingRequest, len(texts))
	for i, text := range texts {
		requests[i] = embeddingRequest{
			Model: g.model,
			Content: contentInput{
				Parts: []partInput{{Text: text}},
			},
			TaskType:             taskTypeDocument,
			OutputDimensionality: g.dimension,
		}
	}

	jsonData, err := json.Marshal(batchEmbeddingRequest{Requests: requests})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.batchAPI, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
	}

	var apiResp batchEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("mismatch: got %d embeddings for %d texts", len(apiResp.Embeddings), len(texts))
	}

	vectors := make([][]float64, len(texts))
	for i := range apiResp.Embeddings {
		values := apiResp.Embeddings[i].Values
		if len(values) == 0 {
			return nil, fmt.Errorf("text %d has empty embedding", i)
		}
		Normalize(values)
		vectors[i] = values
	}
	return vectors, nil
}

// Normalize scales a vector to unit L2 norm in place. Zero vectors are
// left unchanged.
func Normalize(vector []float64) {
	var sumSq float64
	for _, v := range vector {
		sumSq += v * v
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range vector {
		vector[i] /= norm
	}
}
