package storage

import (
	"context"
	"sync"

	"dupguard/internal/model"
)

// memoryStore keeps the snapshot in process memory. Used when durable
// storage is disabled and by tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]model.ProcessedRecord
}

func NewMemory() Store {
	return &memoryStore{records: make(map[string]model.ProcessedRecord)}
}

func (s *memoryStore) Init(ctx context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) LoadAll(ctx context.Context) (map[string]model.ProcessedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.ProcessedRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) SaveAll(ctx context.Context, records map[string]model.ProcessedRecord) error {
	next := make(map[string]model.ProcessedRecord, len(records))
	for k, v := range records {
		next[k] = v
	}
	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
	return nil
}
