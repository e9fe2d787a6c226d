// Package fs provides a filesystem content-addressed store. Blobs are
// sharded into subdirectories by CID prefix and written atomically via
// a temp file and rename.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/medchain/provenance/pkg/provenance"
	"github.com/medchain/provenance/pkg/provenance/contentid"
)

// Config options for the filesystem store
type Config struct {
	BaseDir string // Base directory for storing blobs
}

// Store is a filesystem implementation of the provenance.ContentStore interface
type Store struct {
	baseDir string
}

// New creates a new filesystem content store
func New(config Config) (*Store, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{baseDir: config.BaseDir}, nil
}

func (s *Store) path(id provenance.ContentID) string {
	key := string(id)
	if len(key) < 2 {
		return filepath.Join(s.baseDir, key)
	}
	// Shard by the CID tail: the multibase prefix and codec bytes are
	// shared by every id, so leading characters make poor shards.
	shard := key[len(key)-2:]
	return filepath.Join(s.baseDir, shard, key)
}

// Put stores the blob under its content-derived id. An existing blob
// with the same id is left untouched: identical id means identical
// bytes.
func (s *Store) Put(ctx context.Context, r io.Reader) (provenance.ContentID, error) {
	id, data, err := contentid.FromReader(r)
	if err != nil {
		return "", err
	}

	filePath := s.path(id)
	if _, err := os.Stat(filePath); err == nil {
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".put-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to finalize blob: %w", err)
	}

	return id, nil
}

// Get returns the blob for the given id
func (s *Store) Get(ctx context.Context, id provenance.ContentID) (io.ReadCloser, error) {
	file, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, provenance.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return file, nil
}
