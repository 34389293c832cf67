package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"dupguard/internal/config"
	"dupguard/internal/duplicates"
	"dupguard/internal/metrics"
	"dupguard/internal/model"
	"dupguard/internal/normalize"
	"dupguard/internal/storage"
)

const (
	ReasonExactMatch      = "exact_hash_match"
	ReasonUnique          = "unique"
	reasonSimilarityToken = "title_similarity_"
)

// Detector answers "is this a duplicate?" for incoming content items and
// keeps the durable record of everything already processed. Lookups are
// read-mostly and may run concurrently; commit and cleanup are the only
// mutating operations.
type Detector struct {
	logger     *slog.Logger
	metrics    *metrics.Store
	duplicates *duplicates.Store
	store      storage.Store
	cfg        atomic.Value
	sources    atomic.Value
	scorer     atomic.Value
	cache      *recordCache
	throttle   *Throttle
	mu         sync.RWMutex
}

// Options tune a single lookup. ContentSimilarityThreshold is exposed for
// tuning but the combined weighted score against TitleSimilarityThreshold
// governs the accept/reject decision.
type Options struct {
	TitleSimilarityThreshold   float64
	ContentSimilarityThreshold float64
	TimeWindow                 time.Duration
}

func NewDetector(cfg *config.Config, logger *slog.Logger, metricsStore *metrics.Store, dupStore *duplicates.Store, store storage.Store) *Detector {
	d := &Detector{
		logger:     logger,
		metrics:    metricsStore,
		duplicates: dupStore,
		store:      store,
		cache:      newRecordCache(cfg.Detection.CacheTTL),
		throttle:   NewThrottle(),
	}
	d.cfg.Store(cfg)
	d.sources.Store(buildSourceFilter(cfg))
	d.scorer.Store(NewScorer(cfg.Detection.Weights))
	return d
}

func (d *Detector) UpdateConfig(cfg *config.Config) {
	d.cfg.Store(cfg)
	d.sources.Store(buildSourceFilter(cfg))
	d.scorer.Store(NewScorer(cfg.Detection.Weights))
	d.cache.SetTTL(cfg.Detection.CacheTTL)
}

func (d *Detector) getScorer() *Scorer {
	if v := d.scorer.Load(); v != nil {
		if s, ok := v.(*Scorer); ok {
			return s
		}
	}
	return NewScorer(config.WeightsConfig{})
}

func (d *Detector) config() *config.Config {
	if v := d.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (d *Detector) sourceFilter() *SourceFilter {
	if v := d.sources.Load(); v != nil {
		if f, ok := v.(*SourceFilter); ok {
			return f
		}
	}
	return nil
}

func (d *Detector) options(opts *Options) Options {
	cfg := d.config().Detection
	out := Options{
		TitleSimilarityThreshold:   cfg.TitleSimilarityThreshold,
		ContentSimilarityThreshold: cfg.ContentSimilarityThreshold,
		TimeWindow:                 cfg.TimeWindow,
	}
	if opts == nil {
		return out
	}
	if opts.TitleSimilarityThreshold > 0 {
		out.TitleSimilarityThreshold = opts.TitleSimilarityThreshold
	}
	if opts.ContentSimilarityThreshold > 0 {
		out.ContentSimilarityThreshold = opts.ContentSimilarityThreshold
	}
	if opts.TimeWindow > 0 {
		out.TimeWindow = opts.TimeWindow
	}
	return out
}

// IsDuplicate runs the exact-fingerprint path first, then the bounded
// in-window fuzzy scan. Store read failures degrade to "no duplicate found";
// blocking the whole pipeline on a storage hiccup is worse than an
// occasional missed duplicate.
func (d *Detector) IsDuplicate(ctx context.Context, item model.ContentItem, opts *Options) model.DetectionResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	records := d.loadRecords(ctx)
	return d.detect(records, item, d.options(opts), time.Now().UTC())
}

// FilterDuplicates evaluates items in input order against the records
// committed before the call began. Items in the same batch are not
// cross-compared; batch-internal dedup is the caller's job. The store is
// never mutated.
func (d *Detector) FilterDuplicates(ctx context.Context, items []model.ContentItem, opts *Options) model.FilterResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	records := d.loadRecords(ctx)
	resolved := d.options(opts)
	now := time.Now().UTC()

	out := model.FilterResult{
		UniqueItems: make([]model.ContentItem, 0, len(items)),
		Duplicates:  make([]model.DuplicateEntry, 0),
	}
	for _, item := range items {
		res := d.detect(records, item, resolved, now)
		if res.IsDuplicate {
			out.Duplicates = append(out.Duplicates, model.DuplicateEntry{
				Timestamp:  now,
				Item:       item,
				Similarity: res.Similarity,
				Reason:     res.Reason,
				Matched:    res.ExistingRecord,
			})
			continue
		}
		out.UniqueItems = append(out.UniqueItems, item)
	}
	return out
}

func (d *Detector) detect(records map[string]model.ProcessedRecord, item model.ContentItem, opts Options, now time.Time) model.DetectionResult {
	fp := Fingerprint(item)
	if rec, ok := records[fp]; ok {
		return model.DetectionResult{
			IsDuplicate:    true,
			ExistingRecord: &rec,
			Similarity:     1.0,
			Reason:         ReasonExactMatch,
		}
	}

	// An empty normalized title must never fuzzy-match; only the exact
	// fingerprint path (which carries the source) can pair missing-data
	// items.
	if normalize.Text(item.Title) == "" {
		return model.DetectionResult{Reason: ReasonUnique}
	}

	maxCandidates := d.config().Detection.MaxCandidates
	scorer := d.getScorer()
	for _, rec := range candidatesInWindow(records, now, opts.TimeWindow, maxCandidates) {
		score := scorer.Score(item, &rec)
		if score >= opts.TitleSimilarityThreshold {
			return model.DetectionResult{
				IsDuplicate:    true,
				ExistingRecord: &rec,
				Similarity:     score,
				Reason:         fmt.Sprintf("%s%.0f%%", reasonSimilarityToken, score*100),
			}
		}
	}
	return model.DetectionResult{Reason: ReasonUnique}
}

// loadRecords returns the cached snapshot, refreshing it from the store when
// the TTL has lapsed. On a failed refresh the previous snapshot is used and
// the failure is logged; lookups fail open.
func (d *Detector) loadRecords(ctx context.Context) map[string]model.ProcessedRecord {
	now := time.Now().UTC()
	if d.cache.Expired(now) {
		records, err := d.store.LoadAll(ctx)
		if err != nil {
			if d.logger != nil {
				d.logger.Warn("record store read failed, continuing without refresh", "err", err)
			}
			return d.cache.Snapshot()
		}
		d.cache.Replace(records, now)
	}
	return d.cache.Snapshot()
}

// AddProcessed commits an accepted item. A write failure propagates:
// silently dropping the commit would re-admit the item forever.
func (d *Detector) AddProcessed(ctx context.Context, item model.ContentItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().UTC()
	records, err := d.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load records for commit: %w", err)
	}
	fp := Fingerprint(item)
	rec, ok := records[fp]
	if ok {
		rec.LastSeenAt = now
		rec.TimesProcessed++
		rec.AddSource(item.Source)
	} else {
		rec = model.ProcessedRecord{
			Fingerprint:      fp,
			Title:            item.Title,
			URL:              item.URL,
			Source:           item.Source,
			PublishedAt:      item.PublishedAt,
			Excerpt:          normalize.Excerpt(item),
			FirstProcessedAt: now,
			LastSeenAt:       now,
			TimesProcessed:   1,
			Sources:          []string{item.Source},
		}
	}
	records[fp] = rec
	if err := d.store.SaveAll(ctx, records); err != nil {
		return fmt.Errorf("persist records: %w", err)
	}
	d.cache.Put(rec)
	return nil
}

// noteDuplicate bumps the matched record's counters when a later item maps
// onto it. Best effort: a failure here admits nothing, so it is logged and
// swallowed.
func (d *Detector) noteDuplicate(ctx context.Context, matched *model.ProcessedRecord, source string) {
	if matched == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().UTC()
	records, err := d.store.LoadAll(ctx)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("record store read failed, duplicate not counted", "err", err)
		}
		return
	}
	rec, ok := records[matched.Fingerprint]
	if !ok {
		return
	}
	rec.LastSeenAt = now
	rec.TimesProcessed++
	rec.AddSource(source)
	records[rec.Fingerprint] = rec
	if err := d.store.SaveAll(ctx, records); err != nil {
		if d.logger != nil {
			d.logger.Warn("record store write failed, duplicate not counted", "err", err)
		}
		return
	}
	d.cache.Put(rec)
}

// Stats is read-only and reflects the store snapshot.
func (d *Detector) Stats(ctx context.Context) model.DetectionStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	records := d.loadRecords(ctx)
	now := time.Now().UTC()

	stats := model.DetectionStats{
		DailyActivity: make(map[string]int),
	}
	sourceSet := make(map[string]struct{})
	totalTimes := 0
	weekAgo := now.AddDate(0, 0, -7)
	for _, rec := range records {
		stats.TotalProcessed++
		stats.DuplicatesDetected += rec.TimesProcessed - 1
		totalTimes += rec.TimesProcessed
		for _, s := range rec.Sources {
			sourceSet[s] = struct{}{}
		}
		if !rec.LastSeenAt.Before(weekAgo) {
			day := rec.LastSeenAt.UTC().Format("2006-01-02")
			stats.DailyActivity[day]++
		}
	}
	if stats.TotalProcessed > 0 {
		stats.AvgTimesProcessed = float64(totalTimes) / float64(stats.TotalProcessed)
	}
	stats.Sources = make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		stats.Sources = append(stats.Sources, s)
	}
	sort.Strings(stats.Sources)
	return stats
}

// Cleanup deletes records whose lastSeenAt predates the retention horizon
// and returns the count removed. It holds the write lock so no lookup sees
// a record evicted mid-comparison.
func (d *Detector) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		olderThanDays = d.config().Detection.RetentionDays
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -olderThanDays)
	records, err := d.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load records for cleanup: %w", err)
	}
	removed := 0
	for fp, rec := range records {
		if rec.LastSeenAt.Before(cutoff) {
			delete(records, fp)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := d.store.SaveAll(ctx, records); err != nil {
		return 0, fmt.Errorf("persist records: %w", err)
	}
	d.cache.Replace(records, now)
	return removed, nil
}

// Start consumes the ingest channel: filter by source, detect, commit
// uniques, account duplicates.
func (d *Detector) Start(ctx context.Context, in <-chan model.ContentItem) {
	go func() {
		for {
			select {
			case item := <-in:
				d.processItem(ctx, item)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *Detector) processItem(ctx context.Context, item model.ContentItem) {
	cfg := d.config()
	if !d.sourceFilter().Allowed(item.Source) {
		if d.metrics != nil {
			d.metrics.Record(item.Source, metrics.OutcomeRejected)
		}
		if d.logger != nil && d.throttle.Allow("rejected|"+item.Source, cfg.Detection.LogCooldown) {
			d.logger.Info("source rejected", "source", item.Source)
		}
		return
	}

	res := d.IsDuplicate(ctx, item, nil)
	if res.IsDuplicate {
		now := time.Now().UTC()
		if d.duplicates != nil {
			d.duplicates.Add(model.DuplicateEntry{
				Timestamp:  now,
				Item:       item,
				Similarity: res.Similarity,
				Reason:     res.Reason,
				Matched:    res.ExistingRecord,
			})
		}
		d.noteDuplicate(ctx, res.ExistingRecord, item.Source)
		if d.metrics != nil {
			d.metrics.Record(item.Source, metrics.OutcomeDuplicate)
		}
		if d.logger != nil && d.throttle.Allow("duplicate|"+item.Source, cfg.Detection.LogCooldown) {
			d.logger.Info("duplicate detected",
				"source", item.Source,
				"title", item.Title,
				"reason", res.Reason,
				"similarity", res.Similarity,
			)
		}
		return
	}

	if err := d.AddProcessed(ctx, item); err != nil {
		if d.logger != nil {
			d.logger.Error("commit failed, item not recorded",
				"source", item.Source,
				"title", item.Title,
				"err", err,
			)
		}
		return
	}
	if d.metrics != nil {
		d.metrics.Record(item.Source, metrics.OutcomeUnique)
	}
}

// StartRetention runs periodic cleanup at the configured retention horizon.
func (d *Detector) StartRetention(ctx context.Context) {
	interval := d.config().Detection.CleanupInterval
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				days := d.config().Detection.RetentionDays
				removed, err := d.Cleanup(ctx, days)
				if err != nil {
					if d.logger != nil {
						d.logger.Warn("retention cleanup failed", "err", err)
					}
					continue
				}
				if removed > 0 && d.logger != nil {
					d.logger.Info("retention cleanup", "removed", removed, "older_than_days", days)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *Detector) Reset() {
	d.mu.Lock()
	d.cache = newRecordCache(d.config().Detection.CacheTTL)
	d.mu.Unlock()
	d.throttle.Reset()
}
