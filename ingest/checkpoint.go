package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ally-backend/models"
	"ally-backend/storage"
)

const defaultCheckpointPath = "upload_checkpoint.json"

// CheckpointStore persists ingestion progress through the storage layer,
// so local runs and S3-backed runs checkpoint the same way.
type CheckpointStore struct {
	store storage.Storage
	path  string
}

func NewCheckpointStore(store storage.Storage, path string) *CheckpointStore {
	if path == "" {
		path = defaultCheckpointPath
	}
	return &CheckpointStore{store: store, path: path}
}

// Load returns the saved checkpoint, or (nil, nil) when none exists.
// A corrupt checkpoint is an error; silently restarting from zero would
// re-upload everything without the operator noticing.
func (c *CheckpointStore) Load(ctx context.Context) (*models.Checkpoint, error) {
	rc, err := c.store.Get(ctx, c.path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint file is corrupt: %w", err)
	}
	if cp.LastProcessedIndex < 0 {
		return nil, fmt.Errorf("checkpoint file is corrupt: negative index %d", cp.LastProcessedIndex)
	}
	return &cp, nil
}

// Save writes the checkpoint, replacing any previous one.
func (c *CheckpointStore) Save(ctx context.Context, cp models.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := c.store.Put(ctx, c.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint after a clean, complete run.
func (c *CheckpointStore) Delete(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.path); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
