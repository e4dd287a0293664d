package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ally-backend/classifier"
	"ally-backend/embedding"
	"ally-backend/models"
	"ally-backend/vectorstore"
)

const (
	// DefaultSearchThreshold keeps a match visible in raw search results.
	DefaultSearchThreshold = 0.54
	// DefaultAnswerThreshold admits a match into answer synthesis. Higher
	// than search because a weak excerpt degrades the generated answer.
	DefaultAnswerThreshold = 0.70

	defaultTopK = 5

	greetingAnswer = "Hello! I'm Ally, a legal research assistant. I can answer questions about court cases, rulings, and legal matters. What would you like to know?"
	metaAnswer     = "I'm Ally, a legal research assistant. I search a collection of court cases and use the most relevant ones to answer your legal questions, citing the cases I relied on. I can't give formal legal advice, but I can help you understand how courts have handled similar matters."

	lowConfidenceWarning = "This answer has low confidence. Please verify it against the cited cases."
)

// AssistantService runs the full query pipeline: classification gate,
// embedding, retrieval, relevance filtering, synthesis, and confidence
// scoring. Every failure maps to a structured rejection; the service
// itself never returns an error to callers.
type AssistantService struct {
	embedder        embedding.Provider
	index           vectorstore.Index
	gate            *classifier.Gate
	synthesizer     Synthesizer
	searchThreshold float64
	answerThreshold float64
	topK            int
}

type AssistantServiceOption func(*AssistantService)

func WithSearchThreshold(t float64) AssistantServiceOption {
	return func(s *AssistantService) { s.searchThreshold = t }
}

func WithAnswerThreshold(t float64) AssistantServiceOption {
	return func(s *AssistantService) { s.answerThreshold = t }
}

func WithTopK(k int) AssistantServiceOption {
	return func(s *AssistantService) {
		if k > 0 {
			s.topK = k
		}
	}
}

func NewAssistantService(embedder embedding.Provider, index vectorstore.Index, gate *classifier.Gate, synthesizer Synthesizer, opts ...AssistantServiceOption) *AssistantService {
	s := &AssistantService{
		embedder:        embedder,
		index:           index,
		gate:            gate,
		synthesizer:     synthesizer,
		searchThreshold: DefaultSearchThreshold,
		answerThreshold: DefaultAnswerThreshold,
		topK:            defaultTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate exposes the classification gate on its own, for the validate
// endpoint and for debugging classifier behavior.
func (s *AssistantService) Validate(ctx context.Context, query string) models.ValidationResult {
	return s.gate.Validate(ctx, query)
}

// Search retrieves case chunks relevant to the query without synthesizing
// an answer. Off-topic queries are rejected the same way Answer rejects
// them.
func (s *AssistantService) Search(ctx context.Context, query string, topK int) *models.QueryOutcome {
	if topK <= 0 {
		topK = s.topK
	}

	validation := s.gate.Validate(ctx, query)
	if validation.Category == models.CategoryGreeting || validation.Category == models.CategoryMeta {
		return &models.QueryOutcome{Query: query, Sources: []models.SearchResult{}}
	}
	if !validation.IsValid {
		return models.Rejection(query, s.gate.Stage(), classifier.RejectionMessage(validation.Category), validation.Confidence)
	}

	results, rejection := s.retrieve(ctx, query, topK, s.searchThreshold)
	if rejection != nil {
		return rejection
	}

	return &models.QueryOutcome{
		Query:   query,
		Sources: results,
	}
}

// Answer runs the full pipeline and returns a synthesized, cited answer.
func (s *AssistantService) Answer(ctx context.Context, query string) *models.QueryOutcome {
	validation := s.gate.Validate(ctx, query)

	switch validation.Category {
	case models.CategoryGreeting:
		return s.directAnswer(query, greetingAnswer)
	case models.CategoryMeta:
		return s.directAnswer(query, metaAnswer)
	}

	if !validation.IsValid {
		return models.Rejection(query, s.gate.Stage(), classifier.RejectionMessage(validation.Category), validation.Confidence)
	}

	results, rejection := s.retrieve(ctx, query, s.topK, s.answerThreshold)
	if rejection != nil {
		return rejection
	}

	prompt := buildPrompt(query, results)

	answer, err := s.synthesizer.Generate(ctx, prompt)
	if err != nil {
		// Retrieval worked, so return the sources with a degraded answer
		// instead of rejecting outright.
		log.Printf("answer synthesis failed: %v", err)
		answer = "I found relevant cases but ran into a problem while writing the answer. The sources below are the closest matches to your question."
	}

	outcome := &models.QueryOutcome{
		Query:      query,
		Answer:     answer,
		Sources:    results,
		Confidence: ScoreConfidence(answer, results),
	}
	if outcome.Confidence < ConfidenceWarningThreshold {
		outcome.Warning = lowConfidenceWarning
	}
	return outcome
}

func (s *AssistantService) directAnswer(query, answer string) *models.QueryOutcome {
	return &models.QueryOutcome{
		Query:      query,
		Answer:     answer,
		Sources:    []models.SearchResult{},
		Confidence: 1.0,
	}
}

// retrieve embeds the query, runs the index lookup, and filters matches by
// the given relevance threshold. A non-nil rejection terminates the
// pipeline.
func (s *AssistantService) retrieve(ctx context.Context, query string, topK int, threshold float64) ([]models.SearchResult, *models.QueryOutcome) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, models.Rejection(query, models.StageSystemError, fmt.Sprintf("failed to embed query: %v", err), 0)
	}
	embedding.Normalize(vector)

	matches, err := s.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, models.Rejection(query, models.StageSystemError, fmt.Sprintf("search index unavailable: %v", err), 0)
	}
	if len(matches) == 0 {
		return nil, models.Rejection(query, models.StageNoResults, "no cases in the collection matched this query", 0)
	}

	var results []models.SearchResult
	best := 0.0
	for _, m := range matches {
		if m.Score > best {
			best = m.Score
		}
		if m.Score < threshold {
			continue
		}
		results = append(results, models.SearchResult{
			CaseNumber: m.Metadata["case_number"],
			CaseTitle:  m.Metadata["case_title"],
			ChunkType:  m.Metadata["chunk_type"],
			Text:       m.Metadata["text"],
			Score:      m.Score,
			Category:   m.Metadata["category"],
		})
	}
	if len(results) == 0 {
		reason := fmt.Sprintf("no case scored above %.0f%% relevance (best match %.1f%%)", threshold*100, best*100)
		return nil, models.Rejection(query, models.StageLowRelevance, reason, 0)
	}
	return results, nil
}

// buildPrompt assembles the grounded synthesis prompt. Each source becomes
// a numbered CASE block the model must cite back as [Case N].
func buildPrompt(query string, sources []models.SearchResult) string {
	var b strings.Builder

	b.WriteString("You are Ally, a legal research assistant answering questions about court cases.\n\n")
	b.WriteString("Use ONLY the case excerpts below to answer. Cite every claim with the matching [Case N] marker. ")
	b.WriteString("If the excerpts do not answer the question, say so plainly.\n\n")

	for i, src := range sources {
		fmt.Fprintf(&b, "[CASE %d] (relevance %s)\n", i+1, src.ScorePercent())
		fmt.Fprintf(&b, "Case number: %s\n", src.CaseNumber)
		fmt.Fprintf(&b, "Title: %s\n", src.CaseTitle)
		fmt.Fprintf(&b, "Section: %s\n", src.ChunkType)
		if src.Category != "" {
			fmt.Fprintf(&b, "Category: %s\n", src.Category)
		}
		fmt.Fprintf(&b, "%s\n\n", src.Text)
	}

	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Answer the question, citing sources as [Case N]. ")
	b.WriteString("End with a one-line reminder that this is general information, not legal advice.")

	return b.String()
}
