package engine

import (
	"sync"
	"time"

	"dupguard/internal/model"
)

// recordCache holds a snapshot of the record store behind a TTL. It is a
// pure performance layer: past the TTL the durable store is the authority
// and the snapshot is rebuilt from it. Concurrent refreshes may both read
// the store; the last Replace wins and no corruption results because the
// snapshot is a plain key→record map.
type recordCache struct {
	mu       sync.RWMutex
	records  map[string]model.ProcessedRecord
	loadedAt time.Time
	ttl      time.Duration
}

func newRecordCache(ttl time.Duration) *recordCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &recordCache{
		records: make(map[string]model.ProcessedRecord),
		ttl:     ttl,
	}
}

func (c *recordCache) Expired(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt.IsZero() || now.Sub(c.loadedAt) > c.ttl
}

func (c *recordCache) Get(fingerprint string) (model.ProcessedRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[fingerprint]
	return rec, ok
}

// Snapshot returns a copy of the cached map so callers can scan candidates
// without holding the lock.
func (c *recordCache) Snapshot() map[string]model.ProcessedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.ProcessedRecord, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}
	return out
}

func (c *recordCache) Replace(records map[string]model.ProcessedRecord, now time.Time) {
	if records == nil {
		records = make(map[string]model.ProcessedRecord)
	}
	c.mu.Lock()
	c.records = records
	c.loadedAt = now
	c.mu.Unlock()
}

// Put updates a single entry as a write-through side effect of a commit.
// It does not extend the snapshot's TTL.
func (c *recordCache) Put(rec model.ProcessedRecord) {
	c.mu.Lock()
	c.records[rec.Fingerprint] = rec
	c.mu.Unlock()
}

func (c *recordCache) Delete(fingerprint string) {
	c.mu.Lock()
	delete(c.records, fingerprint)
	c.mu.Unlock()
}

func (c *recordCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *recordCache) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}
