package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"ally-backend/models"
	"ally-backend/storage"
	"ally-backend/vectorstore"
)

// fakeEmbedder fails any text containing failOn. Batch calls fail whole
// when any text matches, mirroring the real batch endpoint.
type fakeEmbedder struct {
	failOn      string
	batchCalls  int
	singleCalls int
}

func (f *fakeEmbedder) EmbedDocument(ctx context.Context, text string) ([]float64, error) {
	f.singleCalls++
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("simulated embed failure")
	}
	return []float64{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	f.batchCalls++
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, errors.New("simulated batch embed failure")
		}
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

// flakyIndex fails the first failures upserts, then delegates to memory.
type flakyIndex struct {
	*vectorstore.Memory
	failures int
	attempts int
	err      error
}

func (f *flakyIndex) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	f.attempts++
	if f.attempts <= f.failures {
		return f.err
	}
	return f.Memory.Upsert(ctx, entries)
}

type autoConfirm struct{ answer bool }

func (a autoConfirm) Confirm(string) bool { return a.answer }

func testChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ChunkID:    fmt.Sprintf("abc%09d_facts", i),
			CaseNumber: fmt.Sprintf("HCCC %d of 2020", i),
			CaseTitle:  "Republic v Example",
			ChunkType:  models.ChunkTypeFacts,
			Text:       fmt.Sprintf("The case concerned boundary dispute number %d.", i),
			Metadata: models.ChunkMetadata{
				Section:    "facts",
				Category:   "land",
				SourceYear: "2020",
				Priority:   "medium",
			},
		}
	}
	return chunks
}

func newTestPipeline(t *testing.T, index vectorstore.Index, opts ...PipelineOption) (*Pipeline, *CheckpointStore) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	checkpoints := NewCheckpointStore(store, "")
	base := []PipelineOption{WithBatchSize(4), WithThrottle(0), WithFailureWaits(time.Millisecond, time.Millisecond)}
	p := NewPipeline(&fakeEmbedder{}, index, checkpoints, append(base, opts...)...)
	return p, checkpoints
}

func TestRunUploadsEverythingAndClearsCheckpoint(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.NewMemory(3)
	p, checkpoints := newTestPipeline(t, index)

	chunks := testChunks(10)
	report, err := p.Run(ctx, chunks, -1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Completed || report.Uploaded != 10 || len(report.FailedBatches) != 0 {
		t.Fatalf("report = %+v, want 10 uploaded and completed", report)
	}

	stats, err := index.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != 10 {
		t.Errorf("index count = %d, want 10", stats.Count)
	}

	cp, err := checkpoints.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp != nil {
		t.Errorf("checkpoint should be deleted after a clean run, got %+v", cp)
	}
}

func TestRunEmbedsBatchesThroughBatchEndpoint(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	p := NewPipeline(embedder, vectorstore.NewMemory(3), NewCheckpointStore(store, ""),
		WithBatchSize(4), WithThrottle(0))

	if _, err := p.Run(ctx, testChunks(10), -1); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if embedder.batchCalls != 3 {
		t.Errorf("batchCalls = %d, want 3", embedder.batchCalls)
	}
	if embedder.singleCalls != 0 {
		t.Errorf("singleCalls = %d, want 0 on the happy path", embedder.singleCalls)
	}
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.NewMemory(3)
	p, checkpoints := newTestPipeline(t, index, WithConfirmer(autoConfirm{answer: true}))

	chunks := testChunks(10)
	if err := checkpoints.Save(ctx, models.Checkpoint{
		LastProcessedIndex: 8,
		TotalChunks:        10,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	report, err := p.Run(ctx, chunks, -1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StartIndex != 8 {
		t.Errorf("StartIndex = %d, want 8", report.StartIndex)
	}
	if report.Uploaded != 2 {
		t.Errorf("Uploaded = %d, want 2", report.Uploaded)
	}
}

func TestRunIgnoresCheckpointForDifferentInput(t *testing.T) {
	ctx := context.Background()
	p, checkpoints := newTestPipeline(t, vectorstore.NewMemory(3))

	if err := checkpoints.Save(ctx, models.Checkpoint{LastProcessedIndex: 8, TotalChunks: 99}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	report, err := p.Run(ctx, testChunks(10), -1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StartIndex != 0 {
		t.Errorf("StartIndex = %d, want 0 when totals differ", report.StartIndex)
	}
}

func TestRunDeclinedResumeStartsOver(t *testing.T) {
	ctx := context.Background()
	p, checkpoints := newTestPipeline(t, vectorstore.NewMemory(3), WithConfirmer(autoConfirm{answer: false}))

	if err := checkpoints.Save(ctx, models.Checkpoint{LastProcessedIndex: 8, TotalChunks: 10}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	report, err := p.Run(ctx, testChunks(10), -1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StartIndex != 0 {
		t.Errorf("StartIndex = %d, want 0 after declined resume", report.StartIndex)
	}
	if report.Uploaded != 10 {
		t.Errorf("Uploaded = %d, want 10", report.Uploaded)
	}
}

func TestRunStartOverrideWins(t *testing.T) {
	ctx := context.Background()
	p, checkpoints := newTestPipeline(t, vectorstore.NewMemory(3))

	if err := checkpoints.Save(ctx, models.Checkpoint{LastProcessedIndex: 2, TotalChunks: 10}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	report, err := p.Run(ctx, testChunks(10), 6)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StartIndex != 6 || report.Uploaded != 4 {
		t.Errorf("report = %+v, want start 6 and 4 uploaded", report)
	}
}

func TestRunRecordsFailedBatchAndMovesOn(t *testing.T) {
	ctx := context.Background()
	index := &flakyIndex{
		Memory:   vectorstore.NewMemory(3),
		failures: 1,
		err:      &vectorstore.StatusError{Code: 503, Body: "unavailable"},
	}
	p, checkpoints := newTestPipeline(t, index)

	report, err := p.Run(ctx, testChunks(10), -1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// one attempt per batch, never an inline retry of the same range
	if index.attempts != 3 {
		t.Errorf("attempts = %d, want 3 (one per batch)", index.attempts)
	}
	if len(report.FailedBatches) != 1 || report.FailedBatches[0] != 0 {
		t.Errorf("FailedBatches = %v, want [0]", report.FailedBatches)
	}
	if report.Uploaded != 6 {
		t.Errorf("Uploaded = %d, want 6 from the surviving batches", report.Uploaded)
	}

	cp, err := checkpoints.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp == nil {
		t.Fatal("checkpoint should survive a run with failed batches")
	}
	if cp.LastProcessedIndex != 10 {
		t.Errorf("LastProcessedIndex = %d, want 10 (all batches attempted)", cp.LastProcessedIndex)
	}
}

func TestRunRecordsEveryFailedBatch(t *testing.T) {
	ctx := context.Background()
	index := &flakyIndex{
		Memory:   vectorstore.NewMemory(3),
		failures: 1000,
		err:      &vectorstore.StatusError{Code: 400, Body: "bad vector"},
	}
	p, _ := newTestPipeline(t, index)

	report, err := p.Run(ctx, testChunks(10), -1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.FailedBatches) != 3 {
		t.Fatalf("FailedBatches = %v, want all 3 batches recorded", report.FailedBatches)
	}
	for i, n := range report.FailedBatches {
		if n != i {
			t.Errorf("FailedBatches[%d] = %d, want %d", i, n, i)
		}
	}
	if report.Uploaded != 0 {
		t.Errorf("Uploaded = %d, want 0", report.Uploaded)
	}
}

func TestRunDropsChunksThatFailToEmbed(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.NewMemory(3)
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	embedder := &fakeEmbedder{failOn: "dispute number 1."}
	p := NewPipeline(embedder, index, NewCheckpointStore(store, ""),
		WithBatchSize(10), WithThrottle(0))

	report, err := p.Run(ctx, testChunks(4), -1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.EmbedFailures != 1 {
		t.Errorf("EmbedFailures = %d, want 1", report.EmbedFailures)
	}
	if report.Uploaded != 3 {
		t.Errorf("Uploaded = %d, want 3", report.Uploaded)
	}
	if embedder.batchCalls != 1 || embedder.singleCalls != 4 {
		t.Errorf("calls = %d batch / %d single, want batch attempt then per-chunk isolation",
			embedder.batchCalls, embedder.singleCalls)
	}
}

func TestRunIdempotentIDs(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.NewMemory(3)
	p, _ := newTestPipeline(t, index)

	chunks := testChunks(5)
	if _, err := p.Run(ctx, chunks, -1); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := p.Run(ctx, chunks, -1); err != nil {
		t.Fatalf("second run: %v", err)
	}

	stats, err := index.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != 5 {
		t.Errorf("count after re-run = %d, want 5", stats.Count)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.NewMemory(3)
	p, checkpoints := newTestPipeline(t, index, WithDryRun(true))

	report, err := p.Run(ctx, testChunks(7), -1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.DryRun || report.Uploaded != 5 {
		t.Errorf("report = %+v, want default sample of 5 prepared", report)
	}

	stats, _ := index.Stats(ctx)
	if stats.Count != 0 {
		t.Errorf("index count = %d, want 0 in dry run", stats.Count)
	}
	cp, err := checkpoints.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp != nil {
		t.Error("dry run must not write checkpoints")
	}
}

func TestBuildEntry(t *testing.T) {
	chunk := models.Chunk{
		ChunkID:    "abc123def456_ruling",
		CaseNumber: "HCCC 12 of 2019",
		CaseTitle:  "Republic v Example",
		ChunkType:  models.ChunkTypeRuling,
		Text:       strings.Repeat("x", maxTextLen+50),
		Metadata: models.ChunkMetadata{
			Section:    "ruling",
			Category:   "criminal",
			SourceYear: "2019",
			Priority:   "highest",
		},
	}

	entry := BuildEntry(chunk, []float64{0.1})
	if entry.ID != "HCCC_12_of_2019_abc123def456_ruling" {
		t.Errorf("ID = %q", entry.ID)
	}
	if len(entry.Metadata["text"]) != maxTextLen {
		t.Errorf("text length = %d, want %d", len(entry.Metadata["text"]), maxTextLen)
	}
	if !strings.HasSuffix(entry.Metadata["text"], "...") {
		t.Error("truncated text should end with ellipsis")
	}
	if entry.Metadata["category"] != "criminal" {
		t.Errorf("category = %q", entry.Metadata["category"])
	}
}

func TestTruncatePreservesRuneBoundaries(t *testing.T) {
	// é is two bytes; an odd cap lands mid-rune without the boundary check
	s := strings.Repeat("é", 300)

	for max := 100; max < 106; max++ {
		got := truncate(s, max)
		if !utf8.ValidString(got) {
			t.Errorf("truncate(max=%d) produced invalid UTF-8", max)
		}
		if len(got) > max {
			t.Errorf("truncate(max=%d) length = %d", max, len(got))
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("truncate(max=%d) missing ellipsis", max)
		}
	}

	if got := truncate("short", 100); got != "short" {
		t.Errorf("short input changed: %q", got)
	}
}

func TestClassifyUpsertError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"rate limit", &vectorstore.StatusError{Code: 429}, KindRateLimit},
		{"server error", &vectorstore.StatusError{Code: 502}, KindTransient},
		{"bad request", &vectorstore.StatusError{Code: 400}, KindPermanent},
		{"unavailable", fmt.Errorf("ping: %w", vectorstore.ErrUnavailable), KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"cancel", context.Canceled, KindPermanent},
		{"unknown", errors.New("boom"), KindPermanent},
	}
	for _, tt := range tests {
		if got := ClassifyUpsertError(tt.err); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestReadChunks(t *testing.T) {
	input := `{"chunk_id":"a_facts","case_number":"HCCC 1 of 2020","case_title":"A v B","chunk_type":"facts","text":"t","metadata":{"section":"facts","category":"land","source_year":"2020","priority":"medium"}}

{"chunk_id":"b_ruling","case_number":"HCCC 2 of 2020","case_title":"C v D","chunk_type":"ruling","text":"u","metadata":{"section":"ruling","category":"civil","source_year":"2020","priority":"highest"}}
`
	chunks, err := ReadChunks(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadChunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2", len(chunks))
	}
	if chunks[1].Metadata.Priority != "highest" {
		t.Errorf("priority = %q", chunks[1].Metadata.Priority)
	}

	if _, err := ReadChunks(strings.NewReader("{bad json}\n")); err == nil {
		t.Error("expected error for malformed line")
	}
}
