// Package store implements the node-store collaborator of spec.md §6: a
// content-addressed, idempotent blob store keyed by hash. The state trie
// resolves stubbed children through this interface; it never deletes (that
// is a background pruning concern the spec explicitly leaves external).
package store

import (
	"fmt"

	"ledgerd/db"
	"ledgerd/hashing"
)

// NodeStore is the external collaborator interface of spec.md §6.
type NodeStore interface {
	Put(hash hashing.Hash256, body []byte) error
	Get(hash hashing.Hash256) ([]byte, bool, error)
	Has(hash hashing.Hash256) (bool, error)
}

// BoltNodeStore adapts a db.DatabaseProvider (backed by go.etcd.io/bbolt in
// production) to the NodeStore interface, matching the teacher's layering of
// a narrow domain store over the generic DatabaseProvider abstraction.
type BoltNodeStore struct {
	provider db.DatabaseProvider
}

// NewBoltNodeStore wraps an already-open provider.
func NewBoltNodeStore(provider db.DatabaseProvider) *BoltNodeStore {
	return &BoltNodeStore{provider: provider}
}

// OpenBoltNodeStore opens a bbolt file at path and wraps it as a NodeStore.
func OpenBoltNodeStore(path string) (*BoltNodeStore, error) {
	p, err := db.NewBoltProvider(path)
	if err != nil {
		return nil, err
	}
	return NewBoltNodeStore(p), nil
}

// Put is idempotent: storing the same hash twice is a no-op error-wise.
func (s *BoltNodeStore) Put(hash hashing.Hash256, body []byte) error {
	if err := s.provider.Put(hash.Bytes(), body); err != nil {
		return fmt.Errorf("store: put %x: %w", hash, err)
	}
	return nil
}

func (s *BoltNodeStore) Get(hash hashing.Hash256) ([]byte, bool, error) {
	v, err := s.provider.Get(hash.Bytes())
	if err != nil {
		return nil, false, fmt.Errorf("store: get %x: %w", hash, err)
	}
	if v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *BoltNodeStore) Has(hash hashing.Hash256) (bool, error) {
	ok, err := s.provider.Has(hash.Bytes())
	if err != nil {
		return false, fmt.Errorf("store: has %x: %w", hash, err)
	}
	return ok, nil
}

func (s *BoltNodeStore) Close() error {
	return s.provider.Close()
}

// MemNodeStore is an in-memory NodeStore used by tests: a plain map standing
// in for a real backend, with no locking, so it is not safe for concurrent
// use.
type MemNodeStore struct {
	data map[hashing.Hash256][]byte
}

func NewMemNodeStore() *MemNodeStore {
	return &MemNodeStore{data: make(map[hashing.Hash256][]byte)}
}

func (s *MemNodeStore) Put(hash hashing.Hash256, body []byte) error {
	cp := make([]byte, len(body))
	copy(cp, body)
	s.data[hash] = cp
	return nil
}

func (s *MemNodeStore) Get(hash hashing.Hash256) ([]byte, bool, error) {
	v, ok := s.data[hash]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *MemNodeStore) Has(hash hashing.Hash256) (bool, error) {
	_, ok := s.data[hash]
	return ok, nil
}
