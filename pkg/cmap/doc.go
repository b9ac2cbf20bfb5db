// Package cmap provides a sharded concurrent map.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash; each shard has its own RWMutex.
//
// Usage:
//
//	m := cmap.New[string, *vault]()
//	v, existed, err := m.GetOrCreate(path, openVault)
//
// All operations are safe for concurrent use. Range visits shards one at a
// time and does not see a consistent snapshot.
package cmap
