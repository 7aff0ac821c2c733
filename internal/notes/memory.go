package notes

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a Store kept in process memory. Used in tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	notes map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string, v any) (bool, error) {
	s.mu.Lock()
	data, ok := s.notes[HashKey(key)]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, Decode(data, v)
}

func (s *MemoryStore) Set(_ context.Context, key string, v any, force bool) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	hash := HashKey(key)
	if _, exists := s.notes[hash]; exists && !force {
		return ErrNoteExists
	}
	s.notes[hash] = data
	return nil
}

func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.notes))
	for hash := range s.notes {
		keys = append(keys, hash)
	}
	sort.Strings(keys)
	return keys, nil
}
