package media

import (
	"context"
	"io"
	"sync"
)

// MemoryStore keeps uploads in process. It backs local runs without a
// bucket and tests.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, prefix string, contentType string, r io.Reader) (string, string, error) {
	object, err := ObjectName(prefix, contentType)
	if err != nil {
		return "", "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	s.objects[object] = data
	s.mu.Unlock()
	return object, s.baseURL + "/" + object, nil
}

func (s *MemoryStore) Delete(_ context.Context, object string) error {
	s.mu.Lock()
	delete(s.objects, object)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Has(object string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[object]
	return ok
}
