// Package memory provides an in-memory content-addressed store for
// development and tests.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/medchain/provenance/pkg/provenance"
	"github.com/medchain/provenance/pkg/provenance/contentid"
)

// Store is an in-memory implementation of the provenance.ContentStore interface
type Store struct {
	mu    sync.RWMutex
	blobs map[provenance.ContentID][]byte
}

// New creates a new in-memory content store
func New() *Store {
	return &Store{
		blobs: make(map[provenance.ContentID][]byte),
	}
}

// Put stores the blob under its content-derived id. Storing the same
// bytes twice is a no-op.
func (s *Store) Put(ctx context.Context, r io.Reader) (provenance.ContentID, error) {
	id, data, err := contentid.FromReader(r)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blobs[id]; !exists {
		s.blobs[id] = data
	}
	return id, nil
}

// Get returns the blob for the given id
func (s *Store) Get(ctx context.Context, id provenance.ContentID) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.blobs[id]
	if !exists {
		return nil, provenance.ErrContentNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
