package engine

import (
	"fmt"
	"testing"
	"time"

	"dupguard/internal/model"
)

func TestCandidatesInWindow(t *testing.T) {
	now := time.Now().UTC()
	records := map[string]model.ProcessedRecord{
		"old":    {Fingerprint: "old", PublishedAt: now.Add(-48 * time.Hour)},
		"edge":   {Fingerprint: "edge", PublishedAt: now.Add(-23 * time.Hour)},
		"recent": {Fingerprint: "recent", PublishedAt: now.Add(-time.Hour)},
	}
	got := candidatesInWindow(records, now, 24*time.Hour, 0)
	if len(got) != 2 {
		t.Fatalf("candidates: %d", len(got))
	}
	if got[0].Fingerprint != "recent" || got[1].Fingerprint != "edge" {
		t.Fatalf("order: %q, %q", got[0].Fingerprint, got[1].Fingerprint)
	}
}

func TestCandidatesInWindowCapped(t *testing.T) {
	now := time.Now().UTC()
	records := make(map[string]model.ProcessedRecord)
	for i := 0; i < 20; i++ {
		fp := fmt.Sprintf("rec-%02d", i)
		records[fp] = model.ProcessedRecord{
			Fingerprint: fp,
			PublishedAt: now.Add(-time.Duration(i) * time.Minute),
		}
	}
	got := candidatesInWindow(records, now, 24*time.Hour, 5)
	if len(got) != 5 {
		t.Fatalf("cap not applied: %d", len(got))
	}
	// Most recent survive the cap.
	if got[0].Fingerprint != "rec-00" || got[4].Fingerprint != "rec-04" {
		t.Fatalf("cap kept wrong records: %q, %q", got[0].Fingerprint, got[4].Fingerprint)
	}
}

func TestCandidatesInWindowEmpty(t *testing.T) {
	got := candidatesInWindow(nil, time.Now().UTC(), 24*time.Hour, 10)
	if len(got) != 0 {
		t.Fatalf("expected no candidates")
	}
}
