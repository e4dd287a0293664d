package models

// ChunkType values for the four sections a court case record can carry.
const (
	ChunkTypeFacts    = "facts"
	ChunkTypeDecision = "decision"
	ChunkTypeRuling   = "ruling"
	ChunkTypeVerdict  = "verdict"
)

// CaseRecord is a single source record from the court-case dataset.
// Section fields are optional free text; empty sections produce no chunks.
type CaseRecord struct {
	CaseNumber string `json:"case_number"`
	CaseTitle  string `json:"case_title"`
	Facts      string `json:"facts"`
	Decision   string `json:"decision"`
	Ruling     string `json:"ruling"`
	Verdict    string `json:"verdict"`
	SourceYear string `json:"source_year"`
}

// ChunkMetadata carries the derived attributes attached to each chunk.
type ChunkMetadata struct {
	Section    string `json:"section"`
	Category   string `json:"category"`
	SourceYear string `json:"source_year"`
	Priority   string `json:"priority"`
}

// Chunk is a typed, section-level slice of a case prepared for embedding.
// ChunkID is derived deterministically from the case id and chunk type, so
// re-chunking the same record always yields the same ids.
type Chunk struct {
	ChunkID    string        `json:"chunk_id"`
	CaseID     string        `json:"case_id"`
	CaseNumber string        `json:"case_number"`
	CaseTitle  string        `json:"case_title"`
	ChunkType  string        `json:"chunk_type"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// IndexEntry is one vector plus bounded metadata as stored in the index.
// The id is derived from case_number and chunk_id so re-uploading the same
// chunk overwrites rather than duplicates.
type IndexEntry struct {
	ID       string            `json:"id"`
	Values   []float64         `json:"values"`
	Metadata map[string]string `json:"metadata"`
}

// Checkpoint records ingestion progress after every batch so an interrupted
// run resumes at the first unprocessed chunk. LastProcessedIndex is
// monotonically non-decreasing; upload of chunks[0:LastProcessedIndex] has
// at least been attempted.
type Checkpoint struct {
	LastProcessedIndex int    `json:"last_processed_index"`
	TotalChunks        int    `json:"total_chunks"`
	Timestamp          string `json:"timestamp"`
	Region             string `json:"region"`
}
