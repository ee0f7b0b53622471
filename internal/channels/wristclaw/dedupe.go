package wristclaw

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/wristclaw/internal/containers"
)

const (
	crossAccountCap    = 2000
	crossAccountMaxAge = 5 * time.Minute
)

// crossAccountDedup is the only process-wide mutable state the plugin owns:
// multiple account monitors may see the same message (shared groups) and only
// the first claim dispatches it. Created lazily, lives for the process.
var crossAccountDedup = struct {
	mu   sync.Mutex
	seen *containers.BoundedMap[string, time.Time]
	now  func() time.Time
}{now: time.Now}

// claimMessage returns true the first time a message id is seen anywhere in
// the process. When the map is at capacity, entries older than five minutes
// are pruned before the bounded map's oldest-first eviction kicks in.
func claimMessage(messageID string) bool {
	d := &crossAccountDedup
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen == nil {
		d.seen = containers.NewBoundedMap[string, time.Time](crossAccountCap)
	}
	if _, ok := d.seen.Get(messageID); ok {
		return false
	}

	if d.seen.Len() >= crossAccountCap {
		cutoff := d.now().Add(-crossAccountMaxAge)
		var stale []string
		d.seen.Range(func(id string, at time.Time) bool {
			if at.Before(cutoff) {
				stale = append(stale, id)
				return true
			}
			// Entries are in insertion order; the first fresh one ends the scan.
			return false
		})
		for _, id := range stale {
			d.seen.Delete(id)
		}
	}

	d.seen.Set(messageID, d.now())
	return true
}

// resetCrossAccountDedup clears the shared map. Test use only.
func resetCrossAccountDedup() {
	d := &crossAccountDedup
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = nil
	d.now = time.Now
}
