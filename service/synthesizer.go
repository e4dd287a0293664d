package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultGenerationAPI = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent"

// ErrSynthesisFailed is returned when the generation API yields no usable
// text after all checks.
var ErrSynthesisFailed = errors.New("answer synthesis failed")

// Synthesizer turns a grounded prompt into answer text.
type Synthesizer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiSynthesizer calls the Gemini generation API over HTTP. Low
// temperature keeps answers anchored to the supplied case excerpts.
type GeminiSynthesizer struct {
	apiKey      string
	endpoint    string
	temperature float64
	client      *http.Client
}

type SynthesizerOption func(*GeminiSynthesizer)

func SynthesizerWithEndpoint(url string) SynthesizerOption {
	return func(g *GeminiSynthesizer) { g.endpoint = url }
}

func SynthesizerWithHTTPClient(c *http.Client) SynthesizerOption {
	return func(g *GeminiSynthesizer) { g.client = c }
}

func NewGeminiSynthesizer(apiKey string, opts ...SynthesizerOption) *GeminiSynthesizer {
	g := &GeminiSynthesizer{
		apiKey:      apiKey,
		endpoint:    defaultGenerationAPI,
		temperature: 0.2,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func NewGeminiSynthesizerFromEnv() (*GeminiSynthesizer, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	return NewGeminiSynthesizer(apiKey), nil
}

func (g *GeminiSynthesizer) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature": g.temperature,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		log.Printf("Gemini API error: Status %d, Body: %s", resp.StatusCode, string(bodyBytes))
		return "", fmt.Errorf("API error: %d: %w", resp.StatusCode, ErrSynthesisFailed)
	}

	var apiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason,omitempty"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason,omitempty"`
		} `json:"promptFeedback,omitempty"`
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("API blocked prompt: %s: %w", apiResp.PromptFeedback.BlockReason, ErrSynthesisFailed)
	}
	if len(apiResp.Candidates) == 0 {
		log.Printf("API returned no candidates. Full response: %s", string(bodyBytes))
		return "", fmt.Errorf("API returned no candidates: %w", ErrSynthesisFailed)
	}

	var responseText strings.Builder
	for i, candidate := range apiResp.Candidates {
		if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
			log.Printf("Warning: Candidate %d finished with reason: %s", i, candidate.FinishReason)
		}
		for _, part := range candidate.Content.Parts {
			responseText.WriteString(part.Text)
		}
	}

	answer := strings.TrimSpace(responseText.String())
	if answer == "" {
		return "", ErrSynthesisFailed
	}
	return answer, nil
}
