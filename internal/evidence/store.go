// Package evidence stores sanitization evidence documents (wipe certificates,
// destruction photos) and addresses them by content. The ref handed back by
// Put is what gets bound to an asset; identical content always yields the
// same ref, so re-uploading a certificate is harmless.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sync"
)

// ErrNotFound is returned when no document exists for a ref.
var ErrNotFound = errors.New("evidence not found")

// Store is a content-addressed blob store.
type Store interface {
	// Put stores the document and returns its content ref.
	Put(ctx context.Context, r io.Reader) (string, error)
	// Get returns the document for a ref, or ErrNotFound.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// MemStore keeps evidence in memory, addressed by SHA-256 hex. For tests and
// single-node deployments without an IPFS node.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: map[string][]byte{}}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Put(_ context.Context, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	ref := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		s.blobs[ref] = b
	}
	return ref, nil
}

func (s *MemStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
