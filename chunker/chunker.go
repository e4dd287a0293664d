package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"ally-backend/models"
)

// categoryRule pairs a category with the keywords that select it. Rules are
// checked in order; the first match wins.
type categoryRule struct {
	name     string
	keywords []string
}

var categoryRules = []categoryRule{
	{"criminal", []string{"criminal", "murder", "homicide", "theft", "robbery"}},
	{"civil", []string{"damages", "contract", "obligation", "property"}},
	{"labor", []string{"labor", "employment", "dismissal", "wages"}},
	{"commercial", []string{"corporation", "partnership", "business"}},
	{"family", []string{"marriage", "custody", "adoption"}},
	{"tax", []string{"tax", "taxation", "revenue"}},
	{"administrative", []string{"administrative", "government", "graft"}},
	{"land", []string{"land", "agrarian", "cadastral"}},
}

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	nonASCII        = regexp.MustCompile(`[^\x00-\x7F]+`)
	spaceBeforePunc = regexp.MustCompile(`\s+([.,;:])`)
)

// Stats accumulates counters across processed records.
type Stats struct {
	TotalCases        int `json:"total_cases"`
	TotalChunks       int `json:"total_chunks"`
	CasesWithFacts    int `json:"cases_with_facts"`
	CasesWithDecision int `json:"cases_with_decision"`
	CasesWithRuling   int `json:"cases_with_ruling"`
	CasesWithVerdict  int `json:"cases_with_verdict"`
	EmptyCases        int `json:"empty_cases"`
}

// Chunker splits case records into typed text chunks. Chunking is
// deterministic: identical input yields byte-identical chunk sets.
type Chunker struct {
	stats Stats
}

// New creates a chunker with zeroed statistics.
func New() *Chunker {
	return &Chunker{}
}

// Stats returns the counters accumulated so far.
func (c *Chunker) Stats() Stats {
	return c.stats
}

// CaseID derives the stable case identifier from a case number.
func CaseID(caseNumber string) string {
	sum := md5.Sum([]byte(caseNumber))
	return hex.EncodeToString(sum[:])[:12]
}

// NormalizeText collapses whitespace runs, strips characters outside the
// printable ASCII range and removes spaces preceding punctuation.
func NormalizeText(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = nonASCII.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = spaceBeforePunc.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// Categorize scans title+decision+ruling against the keyword table and
// returns the first matching category, defaulting to "general".
func Categorize(caseTitle, decision, ruling string) string {
	text := strings.ToLower(fmt.Sprintf("%s %s %s", caseTitle, decision, ruling))
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.name
			}
		}
	}
	return "general"
}

// section describes one chunkable part of a case record.
type section struct {
	chunkType string
	label     string
	priority  string
}

var sections = []section{
	{models.ChunkTypeFacts, "FACTS", "medium"},
	{models.ChunkTypeDecision, "DECISION", "high"},
	{models.ChunkTypeRuling, "RULING", "highest"},
	{models.ChunkTypeVerdict, "VERDICT", "high"},
}

// ChunkCase splits a record into one chunk per non-empty section. A record
// with no usable sections returns an empty slice and is counted as empty.
func (c *Chunker) ChunkCase(rec models.CaseRecord) []models.Chunk {
	caseNumber := strings.TrimSpace(rec.CaseNumber)
	caseTitle := strings.TrimSpace(rec.CaseTitle)
	if caseNumber == "" {
		caseNumber = "Unknown"
	}
	if caseTitle == "" {
		caseTitle = "Untitled"
	}

	texts := map[string]string{
		models.ChunkTypeFacts:    NormalizeText(rec.Facts),
		models.ChunkTypeDecision: NormalizeText(rec.Decision),
		models.ChunkTypeRuling:   NormalizeText(rec.Ruling),
		models.ChunkTypeVerdict:  NormalizeText(rec.Verdict),
	}

	c.stats.TotalCases++
	if texts[models.ChunkTypeFacts] != "" {
		c.stats.CasesWithFacts++
	}
	if texts[models.ChunkTypeDecision] != "" {
		c.stats.CasesWithDecision++
	}
	if texts[models.ChunkTypeRuling] != "" {
		c.stats.CasesWithRuling++
	}
	if texts[models.ChunkTypeVerdict] != "" {
		c.stats.CasesWithVerdict++
	}

	caseID := CaseID(caseNumber)
	category := Categorize(caseTitle, texts[models.ChunkTypeDecision], texts[models.ChunkTypeRuling])
	baseContext := fmt.Sprintf("Case: %s (%s)", caseTitle, caseNumber)

	var chunks []models.Chunk
	for _, sec := range sections {
		text := texts[sec.chunkType]
		if text == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			ChunkID:    fmt.Sprintf("%s_%s", caseID, sec.chunkType),
			CaseID:     caseID,
			CaseNumber: caseNumber,
			CaseTitle:  caseTitle,
			ChunkType:  sec.chunkType,
			Text:       fmt.Sprintf("%s\n\n%s:\n%s", baseContext, sec.label, text),
			Metadata: models.ChunkMetadata{
				Section:    sec.chunkType,
				Category:   category,
				SourceYear: rec.SourceYear,
				Priority:   sec.priority,
			},
		})
	}

	if len(chunks) == 0 {
		c.stats.EmptyCases++
		return nil
	}
	c.stats.TotalChunks += len(chunks)
	return chunks
}
