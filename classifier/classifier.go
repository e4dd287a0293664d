// Package classifier decides whether a user query is in-domain for the
// legal assistant. Strategies are interchangeable; the Gate applies the
// greeting/meta short-circuit and the fail-open policy uniformly.
package classifier

import (
	"context"

	"ally-backend/models"
)

// Strategy classifies a query into a category and validity verdict.
type Strategy interface {
	// Name identifies the strategy for rejection-stage tagging.
	Name() string

	// Classify evaluates the query. Errors are handled by the Gate
	// (fail open), not by callers.
	Classify(ctx context.Context, query string) (models.ValidationResult, error)
}

// Gate wraps the greeting/meta heuristic and one configured strategy.
// The heuristic always runs first; a match short-circuits with automatic
// acceptance. Strategy failures never block a user: the query is treated
// as valid at reduced confidence.
type Gate struct {
	heuristic *Heuristic
	strategy  Strategy
}

// NewGate creates a classification gate. strategy may be nil, in which
// case every non-greeting query passes with the fallback method.
func NewGate(strategy Strategy) *Gate {
	return &Gate{
		heuristic: NewHeuristic(),
		strategy:  strategy,
	}
}

// Validate classifies a query. It never returns an error: infrastructure
// failures fail open per the uniform policy.
func (g *Gate) Validate(ctx context.Context, query string) models.ValidationResult {
	if res, ok := g.heuristic.Match(query); ok {
		return res
	}

	if g.strategy == nil {
		return models.ValidationResult{
			IsValid:    true,
			Category:   models.CategoryLegal,
			Reason:     "classifier not available",
			Confidence: 0.5,
			Method:     "fallback",
		}
	}

	res, err := g.strategy.Classify(ctx, query)
	if err != nil {
		return models.ValidationResult{
			IsValid:    true,
			Category:   models.CategoryLegal,
			Reason:     err.Error(),
			Confidence: 0.5,
			Method:     "error_fallback",
		}
	}
	return res
}

// Stage returns the rejection stage name for the configured strategy.
func (g *Gate) Stage() string {
	if g.strategy != nil && g.strategy.Name() == "zero_shot" {
		return models.StageZeroShotFilter
	}
	return models.StageGeminiFilter
}
