package metrics

import (
	"sync"
	"time"
)

// SourceMetrics counts pipeline outcomes for one source tag.
type SourceMetrics struct {
	Seen       int `json:"seen"`
	Unique     int `json:"unique"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

type Store struct {
	mu        sync.RWMutex
	bySource  map[string]SourceMetrics
	updatedAt map[string]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		bySource:  make(map[string]SourceMetrics),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

type Outcome int

const (
	OutcomeUnique Outcome = iota
	OutcomeDuplicate
	OutcomeRejected
)

func (s *Store) Record(source string, outcome Outcome) {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.bySource[source]
	m.Seen++
	switch outcome {
	case OutcomeUnique:
		m.Unique++
	case OutcomeDuplicate:
		m.Duplicates++
	case OutcomeRejected:
		m.Rejected++
	}
	s.bySource[source] = m
	s.updatedAt[source] = time.Now().UTC()
	if len(s.bySource) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(source string) (SourceMetrics, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.bySource[source]
	if !ok {
		return SourceMetrics{}, time.Time{}, false
	}
	return m, s.updatedAt[source], true
}

func (s *Store) GetAll() map[string]SourceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]SourceMetrics, len(s.bySource))
	for source, m := range s.bySource {
		out[source] = m
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestSource string
	var oldest time.Time
	for source, ts := range s.updatedAt {
		if oldestSource == "" || ts.Before(oldest) {
			oldestSource = source
			oldest = ts
		}
	}
	if oldestSource != "" {
		delete(s.bySource, oldestSource)
		delete(s.updatedAt, oldestSource)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySource = make(map[string]SourceMetrics)
	s.updatedAt = make(map[string]time.Time)
}
