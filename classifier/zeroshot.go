package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"ally-backend/models"
)

const (
	defaultZeroShotEndpoint  = "https://api-inference.huggingface.co/models/facebook/bart-large-mnli"
	defaultZeroShotThreshold = 0.50
)

var zeroShotLabels = []string{
	"legal question about court cases or law",
	"cooking or food",
	"weather",
	"entertainment",
	"technology",
	"medical or health",
	"personal finance",
	"relationships",
	"travel",
	"shopping",
	"sports",
	"other",
}

// labelCategories maps candidate labels back to rejection categories.
var labelCategories = map[string]string{
	"legal question about court cases or law": models.CategoryLegal,
	"cooking or food":    "COOKING",
	"weather":            "WEATHER",
	"entertainment":      "ENTERTAINMENT",
	"technology":         "TECHNOLOGY",
	"medical or health":  "MEDICAL",
	"personal finance":   "FINANCE",
	"relationships":      "RELATIONSHIP",
	"travel":             "TRAVEL",
	"shopping":           "SHOPPING",
	"sports":             "SPORTS",
	"other":              models.CategoryOther,
}

// ZeroShot classifies queries with a hosted NLI model. A query is valid
// when the legal label ranks first with score at or above the threshold.
type ZeroShot struct {
	apiKey    string
	endpoint  string
	client    *http.Client
	threshold float64
}

type ZeroShotOption func(*ZeroShot)

func ZeroShotWithEndpoint(url string) ZeroShotOption {
	return func(z *ZeroShot) { z.endpoint = url }
}

func ZeroShotWithHTTPClient(c *http.Client) ZeroShotOption {
	return func(z *ZeroShot) { z.client = c }
}

// ZeroShotWithThreshold sets the minimum score the legal label must reach
// for a query to pass. Defaults to 0.50.
func ZeroShotWithThreshold(t float64) ZeroShotOption {
	return func(z *ZeroShot) { z.threshold = t }
}

func NewZeroShot(apiKey string, opts ...ZeroShotOption) *ZeroShot {
	z := &ZeroShot{
		apiKey:    apiKey,
		endpoint:  defaultZeroShotEndpoint,
		client:    &http.Client{Timeout: 30 * time.Second},
		threshold: defaultZeroShotThreshold,
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// NewZeroShotFromEnv reads HF_API_KEY. Returns an error when unset.
func NewZeroShotFromEnv() (*ZeroShot, error) {
	key := os.Getenv("HF_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("HF_API_KEY environment variable not set")
	}
	return NewZeroShot(key), nil
}

func (z *ZeroShot) Name() string { return "zero_shot" }

func (z *ZeroShot) Classify(ctx context.Context, query string) (models.ValidationResult, error) {
	reqBody := map[string]interface{}{
		"inputs": query,
		"parameters": map[string]interface{}{
			"candidate_labels": zeroShotLabels,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", z.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+z.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := z.client.Do(req)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("zero-shot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ValidationResult{}, fmt.Errorf("zero-shot API returned status %d", resp.StatusCode)
	}

	var apiResp struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return models.ValidationResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResp.Labels) == 0 || len(apiResp.Labels) != len(apiResp.Scores) {
		return models.ValidationResult{}, fmt.Errorf("zero-shot API returned malformed result")
	}

	top := apiResp.Labels[0]
	score := apiResp.Scores[0]
	category, ok := labelCategories[top]
	if !ok {
		category = models.CategoryOther
	}

	valid := category == models.CategoryLegal && score >= z.threshold
	return models.ValidationResult{
		IsValid:    valid,
		Category:   category,
		Reason:     fmt.Sprintf("top label %q with score %.2f", top, score),
		Confidence: score,
		Method:     "zero_shot",
	}, nil
}
