package sink

import (
	"context"
	"slices"
	"sync"
)

// MemorySink keeps artifacts in memory
type MemorySink struct {
	mu    sync.Mutex
	items map[string][]byte
	puts  int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{items: make(map[string][]byte)}
}

func (s *MemorySink) Put(_ context.Context, key, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = slices.Clone(data)
	s.puts++
	return nil
}

func (s *MemorySink) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.items[key]
	return data, ok
}

func (s *MemorySink) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *MemorySink) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
