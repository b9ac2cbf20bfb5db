// Package memory provides an in-process storage.KVEngine.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/yndnr/credvault/internal/storage"
	"github.com/yndnr/credvault/pkg/cmap"
)

// KV is an in-memory storage.KVEngine backed by a sharded map.
type KV struct {
	items *cmap.Map[string, []byte]

	// Global lock so SetMany is atomic with respect to readers
	mu     sync.RWMutex
	closed bool
}

var _ storage.KVEngine = (*KV)(nil)

// NewKV creates an empty in-memory engine.
func NewKV() *KV {
	return &KV{
		items: cmap.New[string, []byte](),
	}
}

// Get retrieves a copy of the value for key.
func (s *KV) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	val, ok := s.items.Get(string(key))
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return bytes.Clone(val), nil
}

// Set stores a copy of value under key.
func (s *KV) Set(ctx context.Context, key, value []byte) error {
	return s.SetMany(ctx, []storage.KV{{Key: key, Value: value}})
}

// SetMany stores all pairs atomically.
func (s *KV) SetMany(ctx context.Context, pairs []storage.KV) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	for _, kv := range pairs {
		s.items.Set(string(kv.Key), bytes.Clone(kv.Value))
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KV) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	s.items.Delete(string(key))
	return nil
}

// Scan visits keys with the given prefix in ascending byte order.
func (s *KV) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return storage.ErrClosed
	}

	p := string(prefix)
	var keys []string
	s.items.Range(func(k string, _ []byte) bool {
		if len(k) >= len(p) && k[:len(p)] == p {
			keys = append(keys, k)
		}
		return true
	})
	sort.Strings(keys)

	pairs := make([]storage.KV, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.items.Get(k); ok {
			pairs = append(pairs, storage.KV{Key: []byte(k), Value: bytes.Clone(v)})
		}
	}
	s.mu.RUnlock()

	// Callbacks run unlocked so they may write back.
	for _, kv := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(kv.Key, kv.Value) {
			break
		}
	}
	return nil
}

// Stats reports the key count and the summed key and value sizes.
func (s *KV) Stats(ctx context.Context) (*storage.KVStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var size uint64
	s.items.Range(func(k string, v []byte) bool {
		size += uint64(len(k) + len(v))
		return true
	})
	return &storage.KVStats{
		TotalKeys: uint64(s.items.Count()),
		TotalSize: size,
	}, nil
}

// Close drops all data.
func (s *KV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items.Clear()
	return nil
}
