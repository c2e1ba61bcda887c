package cache

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Backend holds the entries of a Store. Implementations are not safe for
// concurrent use; the Store serializes access.
type Backend interface {
	Get(key string) (Entry, bool)
	// Set stores the entry and reports whether another entry was evicted
	// to make room for it.
	Set(key string, entry Entry) (evicted bool)
	Delete(key string)
	Keys() []string
	Len() int
}

// mapBackend is an unbounded backend. Entries leave it only through
// expiry or explicit deletion.
type mapBackend struct {
	entries map[string]Entry
}

func newMapBackend() *mapBackend {
	return &mapBackend{entries: make(map[string]Entry)}
}

func (b *mapBackend) Get(key string) (Entry, bool) {
	entry, ok := b.entries[key]
	return entry, ok
}

func (b *mapBackend) Set(key string, entry Entry) bool {
	b.entries[key] = entry
	return false
}

func (b *mapBackend) Delete(key string) {
	delete(b.entries, key)
}

func (b *mapBackend) Keys() []string {
	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	return keys
}

func (b *mapBackend) Len() int {
	return len(b.entries)
}

// boundedBackend caps the number of entries and evicts the oldest
// insertion first. Reads use Peek so they never change eviction order;
// only a Set moves a key to the young end.
type boundedBackend struct {
	lru *simplelru.LRU[string, Entry]
}

func newBoundedBackend(maxEntries int) (*boundedBackend, error) {
	lru, err := simplelru.NewLRU[string, Entry](maxEntries, nil)
	if err != nil {
		return nil, err
	}
	return &boundedBackend{lru: lru}, nil
}

func (b *boundedBackend) Get(key string) (Entry, bool) {
	return b.lru.Peek(key)
}

func (b *boundedBackend) Set(key string, entry Entry) bool {
	// Remove first so a re-put counts as a fresh insertion.
	b.lru.Remove(key)
	return b.lru.Add(key, entry)
}

func (b *boundedBackend) Delete(key string) {
	b.lru.Remove(key)
}

func (b *boundedBackend) Keys() []string {
	return b.lru.Keys()
}

func (b *boundedBackend) Len() int {
	return b.lru.Len()
}
