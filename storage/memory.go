package storage

import (
	"context"
	"sync"
)

// Memory is a thread-safe in-process Storage. Values do not survive a process restart.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory creates a new empty Memory storage.
func NewMemory() *Memory {
	return &Memory{
		m: make(map[string]string),
	}
}

// Get returns the value stored under key.
func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok, nil
}

// Set stores value under key.
func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

// Remove deletes key.
func (s *Memory) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
