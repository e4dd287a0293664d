package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "corpus/chunks.jsonl", strings.NewReader("line1\n")); err != nil {
		t.Fatal(err)
	}

	ok, err := store.Exists(ctx, "corpus/chunks.jsonl")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}

	rc, err := store.Get(ctx, "corpus/chunks.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "line1\n" {
		t.Errorf("read %q, want %q", data, "line1\n")
	}

	if err := store.Delete(ctx, "corpus/chunks.jsonl"); err != nil {
		t.Fatal(err)
	}
	ok, _ = store.Exists(ctx, "corpus/chunks.jsonl")
	if ok {
		t.Error("object still exists after delete")
	}
}

func TestLocalStorage_GetMissing(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	_, err := store.Get(context.Background(), "nope.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestLocalStorage_DeleteMissing(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	if err := store.Delete(context.Background(), "nope.json"); err != nil {
		t.Fatalf("deleting a missing object should not error, got %v", err)
	}
}
