package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"ally-backend/embedding"
	"ally-backend/models"
	"ally-backend/vectorstore"
)

const (
	defaultBatchSize = 200
	defaultThrottle  = 50 * time.Millisecond

	transientWait = 2 * time.Second
	rateLimitWait = 10 * time.Second

	defaultDryRunSample = 5

	maxCaseNumberLen = 200
	maxCaseTitleLen  = 500
	maxTextLen       = 8000
	maxCategoryLen   = 100
)

// Confirmer answers yes/no prompts during ingestion, such as whether to
// resume from a checkpoint. A nil Confirmer answers yes to everything.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Report summarizes one ingestion run. FailedBatches lists the run-local
// batch numbers whose upsert failed; those ranges are only redriven by a
// subsequent run.
type Report struct {
	RunID         string
	TotalChunks   int
	StartIndex    int
	Uploaded      int
	EmbedFailures int
	FailedBatches []int
	DryRun        bool
	Completed     bool
	Duration      time.Duration
}

// Pipeline embeds chunks and upserts them to the vector index in batches,
// checkpointing after every batch so an interrupted run resumes where it
// stopped.
type Pipeline struct {
	embedder    embedding.Provider
	index       vectorstore.Index
	checkpoints *CheckpointStore
	confirmer   Confirmer
	batchSize   int
	throttle    time.Duration
	failWait    time.Duration
	rateWait    time.Duration
	region      string
	dryRun      bool
	sampleSize  int
}

type PipelineOption func(*Pipeline)

func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithThrottle(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.throttle = d }
}

func WithConfirmer(c Confirmer) PipelineOption {
	return func(p *Pipeline) { p.confirmer = c }
}

func WithRegion(region string) PipelineOption {
	return func(p *Pipeline) { p.region = region }
}

// WithDryRun embeds and prepares a small sample without uploading.
func WithDryRun(dryRun bool) PipelineOption {
	return func(p *Pipeline) { p.dryRun = dryRun }
}

// WithDryRunSample sets how many chunks a dry run processes.
func WithDryRunSample(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.sampleSize = n
		}
	}
}

// WithFailureWaits overrides the delays applied after a transient or
// rate-limited batch failure, mainly for tests.
func WithFailureWaits(transient, rateLimit time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.failWait = transient
		p.rateWait = rateLimit
	}
}

func NewPipeline(embedder embedding.Provider, index vectorstore.Index, checkpoints *CheckpointStore, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		embedder:    embedder,
		index:       index,
		checkpoints: checkpoints,
		batchSize:   defaultBatchSize,
		throttle:    defaultThrottle,
		failWait:    transientWait,
		rateWait:    rateLimitWait,
		sampleSize:  defaultDryRunSample,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes chunks from the resume point to the end. startOverride
// forces a specific start index when >= 0; otherwise the checkpoint
// decides. The returned report is non-nil even when an error occurred
// partway through.
func (p *Pipeline) Run(ctx context.Context, chunks []models.Chunk, startOverride int) (*Report, error) {
	report := &Report{
		RunID:       uuid.New().String(),
		TotalChunks: len(chunks),
		DryRun:      p.dryRun,
	}
	started := time.Now()
	defer func() { report.Duration = time.Since(started) }()

	if len(chunks) == 0 {
		report.Completed = true
		return report, nil
	}

	if p.dryRun {
		return report, p.dryRunPass(ctx, chunks, report)
	}

	start, err := p.resolveStart(ctx, len(chunks), startOverride)
	if err != nil {
		return report, err
	}
	report.StartIndex = start
	if start >= len(chunks) {
		log.Printf("[%s] nothing to do: checkpoint already at %d of %d", report.RunID, start, len(chunks))
		report.Completed = true
		return report, p.finish(ctx, report)
	}

	log.Printf("[%s] ingesting %d chunks starting at index %d (batch size %d)",
		report.RunID, len(chunks)-start, start, p.batchSize)

	batchNum := 0
	for i := start; i < len(chunks); i += p.batchSize {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ingestion interrupted: %w", err)
		}

		end := i + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		// A failed batch is recorded and skipped, never retried inline;
		// its range is only redriven by a subsequent run.
		uploaded, embedFailed, err := p.processBatch(ctx, chunks[i:end])
		report.Uploaded += uploaded
		report.EmbedFailures += embedFailed
		if err != nil {
			kind := ClassifyUpsertError(err)
			report.FailedBatches = append(report.FailedBatches, batchNum)
			log.Printf("[%s] batch %d (chunks %d-%d) failed (%s): %v", report.RunID, batchNum, i, end, kind, err)
			if wait := p.failureWait(kind); wait > 0 && !sleepCtx(ctx, wait) {
				return report, fmt.Errorf("ingestion interrupted: %w", ctx.Err())
			}
		}

		cp := models.Checkpoint{
			LastProcessedIndex: end,
			TotalChunks:        len(chunks),
			Timestamp:          time.Now().UTC().Format(time.RFC3339),
			Region:             p.region,
		}
		if err := p.checkpoints.Save(ctx, cp); err != nil {
			return report, fmt.Errorf("failed to checkpoint at index %d: %w", end, err)
		}

		if end < len(chunks) && p.throttle > 0 {
			time.Sleep(p.throttle)
		}
		batchNum++
	}

	report.Completed = true
	return report, p.finish(ctx, report)
}

// failureWait returns how long to pause after a failed batch before moving
// on to the next one.
func (p *Pipeline) failureWait(kind ErrorKind) time.Duration {
	switch kind {
	case KindRateLimit:
		return p.rateWait
	case KindTransient:
		return p.failWait
	default:
		return 0
	}
}

// dryRunPass embeds and prepares a small sample of chunks without touching
// the index or the checkpoint, so an operator can inspect what a real run
// would upload.
func (p *Pipeline) dryRunPass(ctx context.Context, chunks []models.Chunk, report *Report) error {
	sample := p.sampleSize
	if sample > len(chunks) {
		sample = len(chunks)
	}
	log.Printf("[%s] dry run over %d of %d chunks", report.RunID, sample, len(chunks))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dry run interrupted: %w", err)
	}

	entries, embedFailed := p.embedChunks(ctx, chunks[:sample])
	report.EmbedFailures += embedFailed
	for _, entry := range entries {
		log.Printf("  would upsert %s (%d dims, %d metadata fields)", entry.ID, len(entry.Values), len(entry.Metadata))
		report.Uploaded++
	}

	report.Completed = true
	return nil
}

// finish deletes the checkpoint only after a fully clean run. Failed
// batches keep the checkpoint so the range can be re-driven.
func (p *Pipeline) finish(ctx context.Context, report *Report) error {
	if len(report.FailedBatches) > 0 {
		return nil
	}
	if err := p.checkpoints.Delete(ctx); err != nil {
		return err
	}
	log.Printf("[%s] run complete: %d uploaded, %d embed failures", report.RunID, report.Uploaded, report.EmbedFailures)
	return nil
}

func (p *Pipeline) resolveStart(ctx context.Context, total, startOverride int) (int, error) {
	if startOverride >= 0 {
		return startOverride, nil
	}

	cp, err := p.checkpoints.Load(ctx)
	if err != nil {
		return 0, err
	}
	if cp == nil {
		return 0, nil
	}
	if cp.TotalChunks != total {
		log.Printf("checkpoint is for %d chunks but input has %d; starting over", cp.TotalChunks, total)
		return 0, nil
	}

	if p.confirmer != nil {
		prompt := fmt.Sprintf("Resume from checkpoint at index %d of %d (saved %s)?", cp.LastProcessedIndex, cp.TotalChunks, cp.Timestamp)
		if !p.confirmer.Confirm(prompt) {
			return 0, nil
		}
	}
	return cp.LastProcessedIndex, nil
}

// processBatch embeds the batch and upserts it in a single attempt. A
// chunk whose embedding fails is dropped from the batch and counted; it
// does not fail the batch.
func (p *Pipeline) processBatch(ctx context.Context, chunks []models.Chunk) (uploaded, embedFailed int, err error) {
	entries, embedFailed := p.embedChunks(ctx, chunks)
	if len(entries) == 0 {
		return 0, embedFailed, nil
	}

	if err := p.index.Upsert(ctx, entries); err != nil {
		return 0, embedFailed, err
	}
	return len(entries), embedFailed, nil
}

// embedChunks embeds a batch through the batch endpoint, falling back to
// per-chunk embedding to isolate the failing chunks when the batch call
// errors.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []models.Chunk) ([]models.IndexEntry, int) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.CaseTitle + " " + chunk.Text
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err == nil && len(vectors) == len(chunks) {
		entries := make([]models.IndexEntry, len(chunks))
		for i, vector := range vectors {
			embedding.Normalize(vector)
			entries[i] = BuildEntry(chunks[i], vector)
		}
		return entries, 0
	}
	if err != nil {
		log.Printf("batch embedding failed, embedding chunks individually: %v", err)
	}

	entries := make([]models.IndexEntry, 0, len(chunks))
	failed := 0
	for i, chunk := range chunks {
		vector, embedErr := p.embedder.EmbedDocument(ctx, texts[i])
		if embedErr != nil {
			failed++
			log.Printf("embedding failed for chunk %s: %v", chunk.ChunkID, embedErr)
			continue
		}
		embedding.Normalize(vector)
		entries = append(entries, BuildEntry(chunk, vector))
	}
	return entries, failed
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// BuildEntry converts a chunk plus its vector into an index entry. The id
// combines case number and chunk id with spaces replaced so the same chunk
// always maps to the same vector id.
func BuildEntry(chunk models.Chunk, vector []float64) models.IndexEntry {
	id := strings.ReplaceAll(chunk.CaseNumber+"_"+chunk.ChunkID, " ", "_")

	return models.IndexEntry{
		ID:     id,
		Values: vector,
		Metadata: map[string]string{
			"case_number": truncate(chunk.CaseNumber, maxCaseNumberLen),
			"case_title":  truncate(chunk.CaseTitle, maxCaseTitleLen),
			"chunk_type":  chunk.ChunkType,
			"section":     chunk.Metadata.Section,
			"category":    truncate(chunk.Metadata.Category, maxCategoryLen),
			"source_year": chunk.Metadata.SourceYear,
			"priority":    chunk.Metadata.Priority,
			"text":        truncate(chunk.Text, maxTextLen),
		},
	}
}

// truncate caps s at max bytes, backing up to a rune boundary so external
// text never produces invalid UTF-8 in index metadata.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// ReadChunks decodes newline-delimited chunk JSON. Blank lines are
// skipped; a malformed line fails the whole read with its line number.
func ReadChunks(r io.Reader) ([]models.Chunk, error) {
	var chunks []models.Chunk

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var chunk models.Chunk
		if err := json.Unmarshal([]byte(text), &chunk); err != nil {
			return nil, fmt.Errorf("invalid chunk on line %d: %w", line, err)
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}
