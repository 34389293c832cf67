package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"dupguard/internal/config"
	"dupguard/internal/duplicates"
	"dupguard/internal/metrics"
	"dupguard/internal/model"
	"dupguard/internal/storage"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Detection.CacheTTL = time.Minute
	cfg.Detection.LogCooldown = 0
	return cfg
}

func newDetectorForTest(t *testing.T, cfg *config.Config, store storage.Store) *Detector {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	if store == nil {
		store = storage.NewMemory()
	}
	return NewDetector(cfg, nil, metrics.NewStore(100), duplicates.NewStore(100), store)
}

func TestExactFingerprintMatch(t *testing.T) {
	d := newDetectorForTest(t, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	item := model.ContentItem{
		Title:       "OpenAI releases GPT-5",
		URL:         "https://techcrunch.com/2025/gpt5",
		Source:      "techcrunch",
		PublishedAt: now,
	}
	if err := d.AddProcessed(ctx, item); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Same item with punctuation and case noise normalizes to the same
	// fingerprint.
	variant := item
	variant.Title = "  openai Releases GPT-5!! "
	res := d.IsDuplicate(ctx, variant, nil)
	if !res.IsDuplicate {
		t.Fatalf("expected duplicate")
	}
	if res.Reason != ReasonExactMatch {
		t.Fatalf("reason: %q", res.Reason)
	}
	if res.Similarity != 1.0 {
		t.Fatalf("similarity: %v", res.Similarity)
	}
	if res.ExistingRecord == nil || res.ExistingRecord.Fingerprint != Fingerprint(item) {
		t.Fatalf("existing record not returned")
	}
}

func TestFuzzyTitleMatch(t *testing.T) {
	d := newDetectorForTest(t, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	original := model.ContentItem{
		Title:       "OpenAI releases GPT-5",
		URL:         "https://techcrunch.com/2025/gpt5",
		Source:      "techcrunch",
		PublishedAt: now.Add(-time.Hour),
		Description: "OpenAI today announced the release of GPT-5, its most capable model yet.",
	}
	if err := d.AddProcessed(ctx, original); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Near-identical rewrite: same headline modulo punctuation, excerpt
	// differs by one word, URL shares one path segment. Different
	// fingerprint, high combined score.
	rewrite := model.ContentItem{
		Title:       "OpenAI Releases GPT-5!!",
		URL:         "https://techcrunch.com/2025/gpt5-update",
		Source:      "techcrunch",
		PublishedAt: now,
		Description: "OpenAI today announced the release of GPT-5, its most capable model ever.",
	}
	if Fingerprint(rewrite) == Fingerprint(original) {
		t.Fatalf("test items must not share a fingerprint")
	}
	res := d.IsDuplicate(ctx, rewrite, nil)
	if !res.IsDuplicate {
		t.Fatalf("expected fuzzy duplicate")
	}
	if !strings.HasPrefix(res.Reason, "title_similarity_") {
		t.Fatalf("reason: %q", res.Reason)
	}
	if res.Similarity < 0.85 {
		t.Fatalf("similarity: %v", res.Similarity)
	}
	if res.ExistingRecord == nil || res.ExistingRecord.Fingerprint != Fingerprint(original) {
		t.Fatalf("wrong matched record")
	}
}

func TestTimeWindowExcludesOldRecords(t *testing.T) {
	d := newDetectorForTest(t, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	// Different source so the fingerprints differ and only the fuzzy scan
	// could match.
	old := model.ContentItem{
		Title:       "Quantum chip breaks error-correction record",
		URL:         "https://example.com/2026/quantum",
		Source:      "reuters",
		PublishedAt: now.Add(-48 * time.Hour),
		Description: "A research team demonstrated a logical qubit below threshold.",
	}
	if err := d.AddProcessed(ctx, old); err != nil {
		t.Fatalf("commit: %v", err)
	}

	incoming := old
	incoming.Source = "techcrunch"
	incoming.PublishedAt = now

	res := d.IsDuplicate(ctx, incoming, nil)
	if res.IsDuplicate {
		t.Fatalf("record outside the 24h window must not match, got %q", res.Reason)
	}
	if res.Reason != ReasonUnique {
		t.Fatalf("reason: %q", res.Reason)
	}

	// A wider window brings the old record back into scope.
	res = d.IsDuplicate(ctx, incoming, &Options{TimeWindow: 72 * time.Hour})
	if !res.IsDuplicate {
		t.Fatalf("expected duplicate with widened window")
	}
	if !strings.HasPrefix(res.Reason, "title_similarity_") {
		t.Fatalf("reason: %q", res.Reason)
	}
}

func TestRecentRecordInsideWindowMatches(t *testing.T) {
	d := newDetectorForTest(t, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	recent := model.ContentItem{
		Title:       "Fed holds rates steady",
		URL:         "https://example.com/fed",
		Source:      "reuters",
		PublishedAt: now.Add(-time.Hour),
		Description: "The central bank left its benchmark rate unchanged.",
	}
	if err := d.AddProcessed(ctx, recent); err != nil {
		t.Fatalf("commit: %v", err)
	}
	incoming := recent
	incoming.Source = "bloomberg"
	incoming.PublishedAt = now
	res := d.IsDuplicate(ctx, incoming, nil)
	if !res.IsDuplicate {
		t.Fatalf("expected cross-source duplicate inside window")
	}
	// Identical title, excerpt and URL must score exactly 1.0, not a
	// float-rounded near-1.
	if res.Similarity != 1.0 {
		t.Fatalf("similarity: %v", res.Similarity)
	}
}

func TestEmptyTitleOnlyExactMatches(t *testing.T) {
	d := newDetectorForTest(t, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	blank := model.ContentItem{
		Title:       "",
		URL:         "https://example.com/a",
		Source:      "feed-a",
		PublishedAt: now,
		Description: "body text",
	}
	if err := d.AddProcessed(ctx, blank); err != nil {
		t.Fatalf("commit: %v", err)
	}

	same := blank
	res := d.IsDuplicate(ctx, same, nil)
	if !res.IsDuplicate || res.Reason != ReasonExactMatch {
		t.Fatalf("identical empty-title item from same source should exact-match, got %q", res.Reason)
	}

	otherSource := blank
	otherSource.Source = "feed-b"
	res = d.IsDuplicate(ctx, otherSource, nil)
	if res.IsDuplicate {
		t.Fatalf("empty-title item must never fuzzy-match, got %q", res.Reason)
	}
}

func TestFilterDuplicates(t *testing.T) {
	d := newDetectorForTest(t, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	seen := []model.ContentItem{
		{Title: "Story three", URL: "https://example.com/3", Source: "feed", PublishedAt: now},
		{Title: "Story seven", URL: "https://example.com/7", Source: "feed", PublishedAt: now},
	}
	for _, item := range seen {
		if err := d.AddProcessed(ctx, item); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	batch := make([]model.ContentItem, 0, 10)
	for i := 0; i < 10; i++ {
		batch = append(batch, model.ContentItem{
			Title:       fmt.Sprintf("Completely unrelated headline number %d about different topics", i),
			URL:         fmt.Sprintf("https://example.com/batch/%d", i),
			Source:      "feed",
			PublishedAt: now,
		})
	}
	batch[2] = seen[0]
	batch[6] = seen[1]

	out := d.FilterDuplicates(ctx, batch, nil)
	if len(out.UniqueItems) != 8 {
		t.Fatalf("unique: %d", len(out.UniqueItems))
	}
	if len(out.Duplicates) != 2 {
		t.Fatalf("duplicates: %d", len(out.Duplicates))
	}
	if out.Duplicates[0].Item.Title != seen[0].Title || out.Duplicates[1].Item.Title != seen[1].Title {
		t.Fatalf("duplicate order not preserved")
	}
	// Input order of uniques is preserved.
	if out.UniqueItems[0].Title != batch[0].Title || out.UniqueItems[2].Title != batch[3].Title {
		t.Fatalf("unique order not preserved")
	}

	// filterDuplicates never mutates the store.
	stats := d.Stats(ctx)
	if stats.TotalProcessed != 2 {
		t.Fatalf("store mutated by filter: %d records", stats.TotalProcessed)
	}
}

func TestAddProcessedBumpsExisting(t *testing.T) {
	d := newDetectorForTest(t, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	item := model.ContentItem{Title: "Repeat story", URL: "https://example.com/r", Source: "alpha", PublishedAt: now}
	if err := d.AddProcessed(ctx, item); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// Same fingerprint, new source tag.
	item.Source = "alpha"
	if err := d.AddProcessed(ctx, item); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res := d.IsDuplicate(ctx, item, nil)
	if !res.IsDuplicate {
		t.Fatalf("expected duplicate")
	}
	if res.ExistingRecord.TimesProcessed != 2 {
		t.Fatalf("times processed: %d", res.ExistingRecord.TimesProcessed)
	}
}

func TestNoteDuplicateTracksSources(t *testing.T) {
	d := newDetectorForTest(t, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	item := model.ContentItem{Title: "Syndicated story", URL: "https://example.com/s", Source: "origin", PublishedAt: now}
	if err := d.AddProcessed(ctx, item); err != nil {
		t.Fatalf("commit: %v", err)
	}
	res := d.IsDuplicate(ctx, item, nil)
	if !res.IsDuplicate {
		t.Fatalf("expected duplicate")
	}
	d.noteDuplicate(ctx, res.ExistingRecord, "mirror")

	res = d.IsDuplicate(ctx, item, nil)
	rec := res.ExistingRecord
	if rec.TimesProcessed != 2 {
		t.Fatalf("times processed: %d", rec.TimesProcessed)
	}
	if !rec.HasSource("origin") || !rec.HasSource("mirror") {
		t.Fatalf("sources: %v", rec.Sources)
	}
}

func TestStats(t *testing.T) {
	d := newDetectorForTest(t, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	a := model.ContentItem{Title: "First", URL: "https://example.com/1", Source: "alpha", PublishedAt: now}
	b := model.ContentItem{Title: "Second", URL: "https://example.com/2", Source: "beta", PublishedAt: now}
	if err := d.AddProcessed(ctx, a); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := d.AddProcessed(ctx, a); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := d.AddProcessed(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	stats := d.Stats(ctx)
	if stats.TotalProcessed != 2 {
		t.Fatalf("total: %d", stats.TotalProcessed)
	}
	if stats.DuplicatesDetected != 1 {
		t.Fatalf("duplicates: %d", stats.DuplicatesDetected)
	}
	if stats.AvgTimesProcessed != 1.5 {
		t.Fatalf("avg: %v", stats.AvgTimesProcessed)
	}
	if len(stats.Sources) != 2 || stats.Sources[0] != "alpha" || stats.Sources[1] != "beta" {
		t.Fatalf("sources: %v", stats.Sources)
	}
	day := now.Format("2006-01-02")
	if stats.DailyActivity[day] != 2 {
		t.Fatalf("daily activity: %v", stats.DailyActivity)
	}
}

func TestCleanup(t *testing.T) {
	store := storage.NewMemory()
	d := newDetectorForTest(t, nil, store)
	ctx := context.Background()
	now := time.Now().UTC()

	records := map[string]model.ProcessedRecord{
		"stale": {
			Fingerprint:    "stale",
			Title:          "old story",
			LastSeenAt:     now.AddDate(0, 0, -31),
			PublishedAt:    now.AddDate(0, 0, -31),
			TimesProcessed: 1,
		},
		"fresh": {
			Fingerprint:    "fresh",
			Title:          "recent story",
			LastSeenAt:     now.AddDate(0, 0, -29),
			PublishedAt:    now.AddDate(0, 0, -29),
			TimesProcessed: 1,
		},
	}
	if err := store.SaveAll(ctx, records); err != nil {
		t.Fatalf("seed: %v", err)
	}

	removed, err := d.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed: %d", removed)
	}
	remaining, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining: %d", len(remaining))
	}
	if _, ok := remaining["fresh"]; !ok {
		t.Fatalf("wrong record removed")
	}

	removed, err = d.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 0 {
		t.Fatalf("second cleanup removed: %d", removed)
	}
}

// failingStore simulates an unreachable backend.
type failingStore struct{}

func (failingStore) Init(ctx context.Context) error { return nil }

func (failingStore) Close() error { return nil }

func (failingStore) LoadAll(ctx context.Context) (map[string]model.ProcessedRecord, error) {
	return nil, errors.New("backend down")
}

func (failingStore) SaveAll(ctx context.Context, records map[string]model.ProcessedRecord) error {
	return errors.New("backend down")
}

func TestLookupFailsOpenOnStoreError(t *testing.T) {
	d := newDetectorForTest(t, nil, failingStore{})
	ctx := context.Background()
	item := model.ContentItem{Title: "anything", URL: "https://example.com/x", Source: "feed", PublishedAt: time.Now().UTC()}

	res := d.IsDuplicate(ctx, item, nil)
	if res.IsDuplicate {
		t.Fatalf("lookup must fail open")
	}
	if res.Reason != ReasonUnique {
		t.Fatalf("reason: %q", res.Reason)
	}
}

func TestCommitFailsClosedOnStoreError(t *testing.T) {
	d := newDetectorForTest(t, nil, failingStore{})
	ctx := context.Background()
	item := model.ContentItem{Title: "anything", URL: "https://example.com/x", Source: "feed", PublishedAt: time.Now().UTC()}

	if err := d.AddProcessed(ctx, item); err == nil {
		t.Fatalf("commit must surface storage errors")
	}
}

func TestUpdateConfigChangesThreshold(t *testing.T) {
	cfg := testConfig()
	d := newDetectorForTest(t, cfg, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	original := model.ContentItem{
		Title:       "Markets rally on earnings",
		URL:         "https://example.com/markets",
		Source:      "reuters",
		PublishedAt: now.Add(-time.Hour),
		Description: "Stocks climbed after strong quarterly results.",
	}
	if err := d.AddProcessed(ctx, original); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Loosely related item: same topic words, clearly different story.
	loose := model.ContentItem{
		Title:       "Markets rally on earnings beat in tech sector",
		URL:         "https://example.com/markets-tech",
		Source:      "bloomberg",
		PublishedAt: now,
		Description: "Technology shares led the advance in afternoon trading.",
	}
	if res := d.IsDuplicate(ctx, loose, nil); res.IsDuplicate {
		t.Fatalf("should not match at default threshold, got %q", res.Reason)
	}

	next := *cfg
	next.Detection.TitleSimilarityThreshold = 0.30
	d.UpdateConfig(&next)
	if res := d.IsDuplicate(ctx, loose, nil); !res.IsDuplicate {
		t.Fatalf("should match at lowered threshold")
	}
}

func TestResetDuringIngestion(t *testing.T) {
	cfg := testConfig()
	cfg.Detection.LogCooldown = time.Minute
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	d := NewDetector(cfg, logger, metrics.NewStore(100), duplicates.NewStore(100), storage.NewMemory())
	ctx := context.Background()
	item := model.ContentItem{
		Title:       "concurrent story",
		URL:         "https://example.com/c",
		Source:      "feed",
		PublishedAt: time.Now().UTC(),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			d.processItem(ctx, item)
		}
	}()
	for i := 0; i < 200; i++ {
		d.Reset()
	}
	<-done
}

func TestResetDropsCache(t *testing.T) {
	store := storage.NewMemory()
	d := newDetectorForTest(t, nil, store)
	ctx := context.Background()
	now := time.Now().UTC()

	item := model.ContentItem{Title: "cached story", URL: "https://example.com/c", Source: "feed", PublishedAt: now}
	if err := d.AddProcessed(ctx, item); err != nil {
		t.Fatalf("commit: %v", err)
	}
	d.Reset()
	// The durable store still has the record, so the lookup reloads it.
	res := d.IsDuplicate(ctx, item, nil)
	if !res.IsDuplicate {
		t.Fatalf("record lost after reset")
	}
}
