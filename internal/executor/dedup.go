package executor

import (
	"sync"
	"time"
)

// Dedup prevents the same abort command from being delivered more than once
// within a configurable time-to-live window. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // sessionID -> last seen time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup instance that considers a command a duplicate if
// its session has been seen within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true if the sessionID has been seen within the TTL
// window. If the session has not been seen (or has expired), it is recorded
// and false is returned.
func (d *Dedup) IsDuplicate(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if lastSeen, ok := d.seen[sessionID]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[sessionID] = now
	return false
}

// Forget drops a session from the window so a later command goes through,
// used when delivery failed and the caller may retry.
func (d *Dedup) Forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, sessionID)
}

// Cleanup removes entries that have expired beyond the TTL. This should be
// called periodically to prevent unbounded memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
