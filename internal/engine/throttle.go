package engine

import (
	"sync"
	"time"
)

// Throttle gates repeated log lines per key so a burst of duplicates from
// one source does not flood the log.
type Throttle struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewThrottle() *Throttle {
	return &Throttle{last: make(map[string]time.Time)}
}

func (t *Throttle) Allow(key string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts, ok := t.last[key]; ok {
		if now.Sub(ts) < cooldown {
			return false
		}
	}
	t.last[key] = now
	return true
}

// Reset forgets all keys. Safe against concurrent Allow calls.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = make(map[string]time.Time)
	t.mu.Unlock()
}
