// Package storage keeps rendered documents on the local filesystem.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	appbilling "github.com/kitabu/billing-api/internal/application/billing"
)

var _ appbilling.DocumentStore = (*LocalStore)(nil)

// LocalStore implements billing.DocumentStore under a base directory. Writing
// the same name again overwrites the slot, so re-rendering an invoice always
// leaves exactly one current document.
type LocalStore struct {
	baseDir string
}

// NewLocalStore ensures the base directory exists.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create document dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Put writes atomically via a temp file and rename, so a crash mid-write
// never leaves a truncated document in the slot.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) (string, error) {
	// Reject path traversal in the document name.
	if filepath.Base(name) != name || name == "." || name == "" {
		return "", fmt.Errorf("storage: invalid document name %q", name)
	}

	final := filepath.Join(s.baseDir, name)
	tmp, err := os.CreateTemp(s.baseDir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: publish document: %w", err)
	}
	return final, nil
}
