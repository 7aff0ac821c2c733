package notes

import (
	"context"
	"fmt"
)

// Index is the set of hashed keys known to be in a Store. It is rebuilt from a
// full listing at the start of each run and only grows while the run lasts.
type Index struct {
	hashes map[string]struct{}
}

// LoadIndex lists all keys of store.
func LoadIndex(ctx context.Context, store Store) (*Index, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list note keys: %w", err)
	}
	idx := &Index{hashes: make(map[string]struct{}, len(keys))}
	for _, hash := range keys {
		idx.hashes[hash] = struct{}{}
	}
	return idx, nil
}

// Has reports whether a note exists for key (the unhashed key).
func (idx *Index) Has(key string) bool {
	_, ok := idx.hashes[HashKey(key)]
	return ok
}

// Add records that a note for key now exists.
func (idx *Index) Add(key string) {
	idx.hashes[HashKey(key)] = struct{}{}
}

// Len returns the number of known keys.
func (idx *Index) Len() int {
	return len(idx.hashes)
}
