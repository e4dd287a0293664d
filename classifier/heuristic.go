package classifier

import (
	"strings"

	"ally-backend/models"
)

var greetingWords = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"greetings", "howdy",
}

var metaPhrases = []string{
	"who are you", "what are you", "who made you", "who created you",
	"your creator", "what can you do", "how do you work",
	"what is your purpose", "school project",
	"are you a robot", "are you human", "are you an ai",
}

// Heuristic catches greetings and questions about the assistant itself
// before any model call. Matches are answered directly without retrieval.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Match reports whether the query is a greeting or a meta question about
// the assistant. Only short inputs qualify as greetings so that a real
// question prefixed with "hi" still reaches the classifier.
func (h *Heuristic) Match(query string) (models.ValidationResult, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.Trim(q, "!?.,")

	if len(q) <= 30 {
		for _, w := range greetingWords {
			if q == w || strings.HasPrefix(q, w+" ") || strings.HasPrefix(q, w+",") {
				return models.ValidationResult{
					IsValid:    true,
					Category:   models.CategoryGreeting,
					Reason:     "greeting detected",
					Confidence: 1.0,
					Method:     "greeting",
				}, true
			}
		}
	}

	for _, p := range metaPhrases {
		if strings.Contains(q, p) {
			return models.ValidationResult{
				IsValid:    true,
				Category:   models.CategoryMeta,
				Reason:     "question about the assistant",
				Confidence: 1.0,
				Method:     "meta",
			}, true
		}
	}

	// Word boundary so "legally" does not trigger the name check.
	if strings.Contains(" "+q+" ", " ally ") {
		for _, wh := range []string{"who", "what", "how", "why"} {
			if strings.HasPrefix(q, wh+" ") {
				return models.ValidationResult{
					IsValid:    true,
					Category:   models.CategoryMeta,
					Reason:     "question about the assistant",
					Confidence: 1.0,
					Method:     "meta",
				}, true
			}
		}
	}

	return models.ValidationResult{}, false
}
