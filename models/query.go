package models

import "fmt"

// Rejection stages for the query pipeline. Each stage names the component
// that terminated the request.
const (
	StageSystemError    = "system_error"
	StageGeminiFilter   = "gemini_filter"
	StageZeroShotFilter = "zero_shot_filter"
	StageNoResults      = "no_results"
	StageLowRelevance   = "low_relevance"
)

// Classification categories emitted by the query classifiers.
const (
	CategoryLegal    = "LEGAL"
	CategoryGreeting = "GREETING"
	CategoryMeta     = "META"
	CategoryOther    = "OTHER"
)

// ValidationResult is the outcome of classifying a user query. Method
// records which strategy produced the result (used for fail-open
// accounting).
type ValidationResult struct {
	IsValid    bool    `json:"is_valid"`
	Category   string  `json:"category"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// SearchResult is one retrieved case chunk with its similarity score.
// Score is cosine similarity over normalized embeddings, in [0,1].
type SearchResult struct {
	CaseNumber string  `json:"case_number"`
	CaseTitle  string  `json:"case_title"`
	ChunkType  string  `json:"chunk_type"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Category   string  `json:"category"`
}

// ScorePercent formats the score the way sources are displayed (e.g. "81.0%").
func (r SearchResult) ScorePercent() string {
	return fmt.Sprintf("%.1f%%", r.Score*100)
}

// QueryOutcome is the structured response for a query: either an answer
// with sources, or a rejection tagged with the stage that produced it.
// Exactly one side is populated; Rejected tells which.
type QueryOutcome struct {
	Query           string         `json:"query"`
	Answer          string         `json:"answer,omitempty"`
	Sources         []SearchResult `json:"sources"`
	Confidence      float64        `json:"confidence"`
	Warning         string         `json:"warning,omitempty"`
	Rejected        bool           `json:"rejected"`
	RejectionStage  string         `json:"rejection_stage,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

// Rejection builds a terminal rejected outcome for the given stage.
func Rejection(query, stage, reason string, confidence float64) *QueryOutcome {
	return &QueryOutcome{
		Query:           query,
		Sources:         []SearchResult{},
		Confidence:      confidence,
		Rejected:        true,
		RejectionStage:  stage,
		RejectionReason: reason,
	}
}
