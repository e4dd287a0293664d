package service

import (
	"math"
	"regexp"
	"strings"

	"ally-backend/models"
)

// ConfidenceWarningThreshold marks answers the caller should flag as
// needing verification.
const ConfidenceWarningThreshold = 0.6

var citationPattern = regexp.MustCompile(`\[Case \d+\]`)

// ScoreConfidence estimates how trustworthy a synthesized answer is from
// three signals: average retrieval relevance (50%), presence of at least
// one [Case N] citation (30%), and answer length up to 100 words (20%).
// An empty answer scores zero. The result is rounded to two decimals.
func ScoreConfidence(answer string, sources []models.SearchResult) float64 {
	if strings.TrimSpace(answer) == "" {
		return 0
	}

	var relevance float64
	if len(sources) > 0 {
		var sum float64
		for _, s := range sources {
			sum += s.Score
		}
		relevance = sum / float64(len(sources))
	}

	var citation float64
	if citationPattern.MatchString(answer) {
		citation = 1
	}

	words := float64(len(strings.Fields(answer)))
	length := words / 100
	if length > 1 {
		length = 1
	}

	score := 0.5*relevance + 0.3*citation + 0.2*length
	return math.Round(score*100) / 100
}
