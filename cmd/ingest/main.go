package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"ally-backend/embedding"
	"ally-backend/ingest"
	"ally-backend/storage"
	"ally-backend/vectorstore"
)

// terminalConfirmer asks the operator on stdin. --yes replaces it with
// automatic approval for unattended runs.
type terminalConfirmer struct{}

func (terminalConfirmer) Confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

type autoYes struct{}

func (autoYes) Confirm(string) bool { return true }

func main() {
	chunksPath := flag.String("chunks", "chunks.jsonl", "chunk file path within the storage backend")
	checkpointPath := flag.String("checkpoint", "", "checkpoint file path (default upload_checkpoint.json)")
	batchSize := flag.Int("batch-size", 200, "chunks per upsert batch")
	start := flag.Int("start", -1, "start index, overriding any checkpoint")
	dryRun := flag.Bool("dry-run", false, "embed and prepare a sample without uploading")
	sample := flag.Int("sample", 5, "chunks to process in a dry run")
	yes := flag.Bool("yes", false, "answer yes to all prompts")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: No .env file found, using environment variables")
	}

	store, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc, err := store.Get(ctx, *chunksPath)
	if err != nil {
		log.Fatalf("Failed to open chunk file %s: %v", *chunksPath, err)
	}
	chunks, err := ingest.ReadChunks(rc)
	rc.Close()
	if err != nil {
		log.Fatalf("Failed to read chunks: %v", err)
	}
	log.Printf("Loaded %d chunks from %s", len(chunks), *chunksPath)

	embedder, err := embedding.NewGeminiFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize embeddings: %v", err)
	}

	var index vectorstore.Index
	if !*dryRun {
		index, err = vectorstore.NewIndexFromEnv(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize vector index: %v", err)
		}
	}

	var confirmer ingest.Confirmer = terminalConfirmer{}
	if *yes {
		confirmer = autoYes{}
	}

	pipeline := ingest.NewPipeline(embedder, index, ingest.NewCheckpointStore(store, *checkpointPath),
		ingest.WithBatchSize(*batchSize),
		ingest.WithConfirmer(confirmer),
		ingest.WithRegion(os.Getenv("AWS_REGION")),
		ingest.WithDryRun(*dryRun),
		ingest.WithDryRunSample(*sample),
	)

	report, err := pipeline.Run(ctx, chunks, *start)
	if err != nil {
		log.Printf("Ingestion stopped: %v", err)
	}

	log.Printf("Run %s: %d/%d uploaded, %d embed failures, %d failed batches (%.1fs)",
		report.RunID, report.Uploaded, report.TotalChunks-report.StartIndex,
		report.EmbedFailures, len(report.FailedBatches), report.Duration.Seconds())

	if len(report.FailedBatches) > 0 {
		log.Printf("Failed batches: %v. Re-run to redrive their ranges.", report.FailedBatches)
	}
	if err != nil || len(report.FailedBatches) > 0 {
		os.Exit(1)
	}
}
