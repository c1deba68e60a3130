// Copyright 2025 Certen Protocol
//
// Store is an in-memory KV, grounded on main.go's MemoryKV in the teacher
// repository. Unlike the teacher's version (which returns a nil slice and a
// nil error on a miss), this Store returns storage.ErrNotFound, and adds
// Delete and a sorted ScanPrefix, since storage.Storage needs both for KEL
// range scans and first-seen log replay.

package memstore

import (
	"sort"
	"sync"

	"github.com/certen/independant-validator/pkg/storage"
)

// Store is a mutex-guarded map-backed storage.KV.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get returns the value at key, or storage.ErrNotFound if absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores value at key, overwriting any prior value.
func (s *Store) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.data[string(key)] = v
	return nil
}

// Delete removes key, if present. Deleting an absent key is not an error.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}

// ScanPrefix returns every key/value pair whose key starts with prefix, in
// ascending key order.
func (s *Store) ScanPrefix(prefix []byte) ([]storage.KVPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := string(prefix)
	var keys []string
	for k := range s.data {
		if len(k) >= len(p) && k[:len(p)] == p {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]storage.KVPair, 0, len(keys))
	for _, k := range keys {
		v := s.data[k]
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, storage.KVPair{Key: []byte(k), Value: cp})
	}
	return out, nil
}
