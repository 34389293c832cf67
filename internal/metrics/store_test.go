package metrics

import "testing"

func TestRecordOutcomes(t *testing.T) {
	s := NewStore(10)
	s.Record("feed", OutcomeUnique)
	s.Record("feed", OutcomeUnique)
	s.Record("feed", OutcomeDuplicate)
	s.Record("feed", OutcomeRejected)

	m, _, ok := s.Get("feed")
	if !ok {
		t.Fatalf("source missing")
	}
	if m.Seen != 4 || m.Unique != 2 || m.Duplicates != 1 || m.Rejected != 1 {
		t.Fatalf("counts: %+v", m)
	}
}

func TestRecordUnknownSource(t *testing.T) {
	s := NewStore(10)
	s.Record("", OutcomeUnique)
	if _, _, ok := s.Get("unknown"); !ok {
		t.Fatalf("empty source should map to unknown")
	}
}

func TestEvictionAtLimit(t *testing.T) {
	s := NewStore(2)
	s.Record("a", OutcomeUnique)
	s.Record("b", OutcomeUnique)
	s.Record("c", OutcomeUnique)
	all := s.GetAll()
	if len(all) != 2 {
		t.Fatalf("size after eviction: %d", len(all))
	}
	if _, ok := all["a"]; ok {
		t.Fatalf("oldest source should be evicted")
	}
}

func TestClear(t *testing.T) {
	s := NewStore(10)
	s.Record("feed", OutcomeUnique)
	s.Clear()
	if len(s.GetAll()) != 0 {
		t.Fatalf("clear left entries")
	}
}
