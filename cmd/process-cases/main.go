package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ally-backend/chunker"
	"ally-backend/models"
	"ally-backend/storage"
)

func main() {
	input := flag.String("input", "cases.jsonl", "case record file within the storage backend")
	output := flag.String("output", "chunks.jsonl", "chunk output file within the storage backend")
	metadata := flag.String("metadata", "chunks_metadata.json", "chunking stats output file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: No .env file found, using environment variables")
	}

	store, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	ctx := context.Background()

	rc, err := store.Get(ctx, *input)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *input, err)
	}
	defer rc.Close()

	c := chunker.New()
	var out bytes.Buffer
	encoder := json.NewEncoder(&out)

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec models.CaseRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			log.Printf("Skipping malformed record on line %d: %v", line, err)
			continue
		}

		for _, chunk := range c.ChunkCase(rec) {
			if err := encoder.Encode(chunk); err != nil {
				log.Fatalf("Failed to encode chunk: %v", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed to read %s: %v", *input, err)
	}

	if err := store.Put(ctx, *output, &out); err != nil {
		log.Fatalf("Failed to write %s: %v", *output, err)
	}

	stats := c.Stats()
	meta, err := json.MarshalIndent(struct {
		chunker.Stats
		GeneratedAt string `json:"generated_at"`
	}{stats, time.Now().UTC().Format(time.RFC3339)}, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal stats: %v", err)
	}
	if err := store.Put(ctx, *metadata, bytes.NewReader(meta)); err != nil {
		log.Fatalf("Failed to write %s: %v", *metadata, err)
	}

	log.Printf("Processed %d cases into %d chunks (%d empty, %d with rulings)",
		stats.TotalCases, stats.TotalChunks, stats.EmptyCases, stats.CasesWithRuling)

	if stats.TotalChunks == 0 {
		log.Println("No chunks produced; check the input file")
		os.Exit(1)
	}
}
