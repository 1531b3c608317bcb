package storage

import (
	"context"
	"sync"
)

// Object is a stored document.
type Object struct {
	ContentType string
	Data        []byte
}

// InMemory keeps documents in process; used by tests and local runs without a bucket.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string]Object)}
}

func (s *InMemory) Put(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return nil
}

func (s *InMemory) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	return o, ok
}

func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
