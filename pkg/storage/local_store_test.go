package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorePutDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8081/static/")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}

	url, err := store.Put(context.Background(), "book_covers/b1/cover.png", strings.NewReader("png-bytes"), 9, "image/png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "http://localhost:8081/static/book_covers/b1/cover.png" {
		t.Fatalf("unexpected url: %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "book_covers", "b1", "cover.png"))
	if err != nil {
		t.Fatalf("read stored blob: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected blob content: %q", data)
	}

	if err := store.Delete(context.Background(), "book_covers/b1/cover.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "book_covers", "b1", "cover.png")); !os.IsNotExist(err) {
		t.Fatalf("expected blob removed, stat err: %v", err)
	}
	// deleting again is a no-op
	if err := store.Delete(context.Background(), "book_covers/b1/cover.png"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestNewLocalStoreRequiresBasePath(t *testing.T) {
	if _, err := NewLocalStore("  ", "http://localhost"); err == nil {
		t.Fatalf("expected error for empty base path")
	}
}
