package engine

import (
	"sort"
	"time"

	"dupguard/internal/model"
)

// candidatesInWindow selects the records eligible for fuzzy comparison: those
// published within the trailing window, most recent first, capped at max so
// the scan stays bounded as the store grows. Records outside the window are
// never compared; old stories legitimately resurface.
func candidatesInWindow(records map[string]model.ProcessedRecord, now time.Time, window time.Duration, max int) []model.ProcessedRecord {
	cutoff := now.Add(-window)
	out := make([]model.ProcessedRecord, 0, len(records))
	for _, rec := range records {
		if rec.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
