package classifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"ally-backend/models"
)

const classificationPrompt = `You are a query classifier for a legal research assistant that answers
questions about court cases and legal matters.

Classify the following user query into exactly one category:
- LEGAL: questions about law, court cases, legal procedures, rights, disputes
- GREETING: greetings and small talk
- META: questions about the assistant itself
- COOKING, WEATHER, ENTERTAINMENT, TECHNOLOGY, MEDICAL, FINANCE,
  RELATIONSHIP, TRAVEL, SHOPPING, SPORTS: off-topic queries in that domain
- INAPPROPRIATE: offensive or harmful queries
- OTHER: anything else off-topic

Query: %q

Respond in exactly this format:
CATEGORY: <category>
CONFIDENCE: <0.0-1.0>
REASON: <one short sentence>`

// GeminiClassifier classifies queries with a small Gemini model. Output is
// constrained to a three-line format parsed by parseClassification.
type GeminiClassifier struct {
	model *genai.GenerativeModel
}

// NewGeminiClassifier builds a classifier on the shared Gemini client.
func NewGeminiClassifier(client *genai.Client) *GeminiClassifier {
	model := client.GenerativeModel("gemini-2.5-flash")
	model.SetTemperature(0.1)
	model.SetMaxOutputTokens(150)
	return &GeminiClassifier{model: model}
}

func (g *GeminiClassifier) Name() string { return "gemini" }

func (g *GeminiClassifier) Classify(ctx context.Context, query string) (models.ValidationResult, error) {
	prompt := fmt.Sprintf(classificationPrompt, query)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("classification request failed: %w", err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	if text.Len() == 0 {
		return models.ValidationResult{}, fmt.Errorf("classification returned no text")
	}

	res := parseClassification(text.String())
	res.Method = "gemini"
	return res, nil
}

// parseClassification extracts CATEGORY/CONFIDENCE/REASON lines. Missing or
// malformed fields degrade to OTHER at moderate confidence rather than
// failing the whole classification.
func parseClassification(text string) models.ValidationResult {
	category := models.CategoryOther
	confidence := 0.7
	reason := "unparsed classifier output"

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "CATEGORY:"):
			c := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(line, "CATEGORY:")))
			if c != "" {
				category = c
			}
		case strings.HasPrefix(line, "CONFIDENCE:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
				confidence = f
			}
		case strings.HasPrefix(line, "REASON:"):
			r := strings.TrimSpace(strings.TrimPrefix(line, "REASON:"))
			if r != "" {
				reason = r
			}
		}
	}

	valid := category == models.CategoryLegal ||
		category == models.CategoryGreeting ||
		category == models.CategoryMeta

	return models.ValidationResult{
		IsValid:    valid,
		Category:   category,
		Reason:     reason,
		Confidence: confidence,
	}
}
