package store

import (
	"context"
	"sync"

	"github.com/castlink/castlink/pkg/core"
)

// MemoryStore keeps service configs in memory. It is the default store and
// the fallback when Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]*core.ServiceConfig // UUID -> config
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: make(map[string]*core.ServiceConfig),
	}
}

// Get retrieves a config by service UUID.
func (s *MemoryStore) Get(_ context.Context, uuid string) (*core.ServiceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *cfg
	return &clone, nil
}

// Put adds or replaces a config.
func (s *MemoryStore) Put(_ context.Context, cfg *core.ServiceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *cfg
	s.configs[cfg.UUID] = &clone
	return nil
}

// Delete removes a config. Deleting an unknown UUID is not an error.
func (s *MemoryStore) Delete(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.configs, uuid)
	return nil
}

// All returns every stored config.
func (s *MemoryStore) All(_ context.Context) ([]*core.ServiceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := make([]*core.ServiceConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		clone := *cfg
		configs = append(configs, &clone)
	}
	return configs, nil
}
