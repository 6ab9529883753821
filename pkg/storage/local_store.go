package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore saves blobs to disk under a base directory served at a public
// URL prefix. Used in development in place of a remote image host.
type LocalStore struct {
	basePath      string
	publicBaseURL string
}

// NewLocalStore creates the base directory if missing.
func NewLocalStore(basePath, publicBaseURL string) (*LocalStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{
		basePath:      basePath,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Put writes the blob under basePath/key and returns its public URL.
func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	target := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create blob file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return s.publicBaseURL + "/" + escapeKey(key), nil
}

// Delete removes a blob; missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	target := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
