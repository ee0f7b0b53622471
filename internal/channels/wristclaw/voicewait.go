package wristclaw

import (
	"context"
	"sync"
	"time"

	"github.com/nextlevelbuilder/wristclaw/internal/containers"
)

// voiceWaitTimeout bounds how long a voice message waits for its
// transcription to arrive as a message:update.
const voiceWaitTimeout = 15 * time.Second

// earlyTranscriptionCap bounds transcriptions parked before their waiter
// registers (the voice message may still be queued for a dispatch slot).
const earlyTranscriptionCap = 100

type voiceWaiterEntry struct {
	result chan string // buffered(1); exactly one send per waiter
	timer  *time.Timer
}

// voiceWaiter correlates later transcription events with voice messages the
// pipeline suspended. Each message id resolves exactly once: with the
// transcription text, or with "" on timeout, cancel, or dispose. A
// transcription arriving before its waiter is parked and consumed by the
// next Wait for that id.
type voiceWaiter struct {
	mu      sync.Mutex
	waiters map[string]*voiceWaiterEntry
	early   *containers.BoundedMap[string, string]
	timeout time.Duration
}

func newVoiceWaiter() *voiceWaiter {
	return &voiceWaiter{
		waiters: make(map[string]*voiceWaiterEntry),
		early:   containers.NewBoundedMap[string, string](earlyTranscriptionCap),
		timeout: voiceWaitTimeout,
	}
}

// Wait suspends until the message's transcription arrives, the timeout
// expires, or ctx is cancelled; the last two yield "". A parked early
// transcription returns immediately. A prior waiter for the same id is
// cancelled first.
func (w *voiceWaiter) Wait(ctx context.Context, messageID string) string {
	w.mu.Lock()
	if text, ok := w.early.Get(messageID); ok {
		w.early.Delete(messageID)
		w.mu.Unlock()
		return text
	}
	w.mu.Unlock()

	w.Cancel(messageID)

	entry := &voiceWaiterEntry{result: make(chan string, 1)}
	entry.timer = time.AfterFunc(w.timeout, func() { w.finish(messageID, "") })

	w.mu.Lock()
	w.waiters[messageID] = entry
	w.mu.Unlock()

	select {
	case text := <-entry.result:
		return text
	case <-ctx.Done():
		w.finish(messageID, "")
		// Drain the resolution so a concurrent Resolve isn't left hanging.
		select {
		case <-entry.result:
		default:
		}
		return ""
	}
}

// Resolve delivers the transcription to a pending waiter. When none is
// registered yet the text is parked for a later Wait; the return value still
// reports whether a waiter consumed it directly.
func (w *voiceWaiter) Resolve(messageID, text string) bool {
	if w.finish(messageID, text) {
		return true
	}
	if text != "" {
		w.mu.Lock()
		w.early.Set(messageID, text)
		w.mu.Unlock()
	}
	return false
}

// Cancel forces a pending waiter to resolve with "".
func (w *voiceWaiter) Cancel(messageID string) {
	w.finish(messageID, "")
}

// Dispose cancels every pending waiter. Used at shutdown.
func (w *voiceWaiter) Dispose() {
	w.mu.Lock()
	ids := make([]string, 0, len(w.waiters))
	for id := range w.waiters {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		w.finish(id, "")
	}
}

// finish removes the waiter and delivers the single resolution.
func (w *voiceWaiter) finish(messageID, text string) bool {
	w.mu.Lock()
	entry, ok := w.waiters[messageID]
	if ok {
		delete(w.waiters, messageID)
	}
	w.mu.Unlock()

	if !ok {
		return false
	}
	entry.timer.Stop()
	entry.result <- text
	return true
}

// Pending returns the number of outstanding waiters. Test use.
func (w *voiceWaiter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters)
}
