package channels

import (
	"sync"
	"time"
)

const (
	// defaultRateLimitMax is the max accepted messages per sender per window.
	defaultRateLimitMax = 10

	// defaultRateLimitWindow is the sliding window duration.
	defaultRateLimitWindow = 60 * time.Second
)

// SenderRateLimiter is a sliding-window rate limiter keyed by sender id.
// Safe for concurrent use.
type SenderRateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	senders map[string][]time.Time
	now     func() time.Time
}

// NewSenderRateLimiter creates a limiter allowing max entries per window.
// Zero values select the defaults (10 per 60s).
func NewSenderRateLimiter(max int, window time.Duration) *SenderRateLimiter {
	if max <= 0 {
		max = defaultRateLimitMax
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &SenderRateLimiter{
		max:     max,
		window:  window,
		senders: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// IsLimited trims the sender's timestamps to the window, then either reports
// the sender as limited (count already at max, nothing recorded) or records
// this call and admits it.
func (r *SenderRateLimiter) IsLimited(senderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	fresh := trimOlderThan(r.senders[senderID], now.Add(-r.window))

	if len(fresh) >= r.max {
		r.senders[senderID] = fresh
		return true
	}
	r.senders[senderID] = append(fresh, now)
	return false
}

// Cleanup drops senders whose window has fully expired. Called periodically
// by the monitor (every 5 minutes).
func (r *SenderRateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	for id, times := range r.senders {
		fresh := trimOlderThan(times, cutoff)
		if len(fresh) == 0 {
			delete(r.senders, id)
		} else {
			r.senders[id] = fresh
		}
	}
}

// TrackedSenders returns the number of senders with live state.
func (r *SenderRateLimiter) TrackedSenders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.senders)
}

func trimOlderThan(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	return times[idx:]
}
