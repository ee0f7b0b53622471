package wristclaw

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/wristclaw/internal/channels/wristclaw/protocol"
)

const (
	// mediaGroupDebounce is the quiet period after the last image before a
	// buffered burst flushes.
	mediaGroupDebounce = 800 * time.Millisecond

	// mediaGroupMaxDelay caps how long the primary event can be held while a
	// sender keeps streaming images, so the debounce cannot starve it.
	mediaGroupMaxDelay = 3 * time.Second
)

// mediaGroupFlush is one collapsed image burst handed to the flush callback.
type mediaGroupFlush struct {
	Event     protocol.MessageEvent
	ChannelID string
	ExtraURLs []string
}

type mediaGroupEntry struct {
	flush   mediaGroupFlush
	timer   *time.Timer
	firstAt time.Time
}

// mediaGroupBuffer collapses rapid-sequential images from one sender in one
// channel (key "channelId:senderId") into a single dispatch: a primary event
// plus extra media URLs. Safe for concurrent use; each entry flushes exactly
// once.
type mediaGroupBuffer struct {
	mu       sync.Mutex
	entries  map[string]*mediaGroupEntry
	onFlush  func(mediaGroupFlush)
	safeURL  func(string) bool
	debounce time.Duration
	maxDelay time.Duration
	disposed bool
}

func newMediaGroupBuffer(onFlush func(mediaGroupFlush), safeURL func(string) bool) *mediaGroupBuffer {
	return &mediaGroupBuffer{
		entries:  make(map[string]*mediaGroupEntry),
		onFlush:  onFlush,
		safeURL:  safeURL,
		debounce: mediaGroupDebounce,
		maxDelay: mediaGroupMaxDelay,
	}
}

// TryBuffer offers an event to the buffer. Non-images flush any pending entry
// for the key immediately and return false (the caller handles the event
// normally). Images are buffered and return true; a follow-up image appends
// its media URL and pushes the flush timer out by the debounce interval,
// bounded by the absolute cap from the first buffered image.
func (b *mediaGroupBuffer) TryBuffer(key string, ev protocol.MessageEvent, channelID, mediaURL string, isImage bool) bool {
	b.mu.Lock()

	if b.disposed {
		b.mu.Unlock()
		return false
	}

	entry, exists := b.entries[key]

	if !isImage {
		b.mu.Unlock()
		if exists {
			b.Flush(key)
		}
		return false
	}

	if exists {
		if mediaURL != "" && b.safeURL(mediaURL) {
			entry.flush.ExtraURLs = append(entry.flush.ExtraURLs, mediaURL)
		}
		delay := b.debounce
		if remaining := b.maxDelay - time.Since(entry.firstAt); remaining < delay {
			delay = max(remaining, 0)
		}
		entry.timer.Reset(delay)
		b.mu.Unlock()
		return true
	}

	entry = &mediaGroupEntry{
		flush:   mediaGroupFlush{Event: ev, ChannelID: channelID},
		firstAt: time.Now(),
	}
	entry.timer = time.AfterFunc(b.debounce, func() { b.Flush(key) })
	b.entries[key] = entry
	b.mu.Unlock()
	return true
}

// Flush removes the entry for key and emits it through the callback.
// Safe to call for absent keys; at-most-once per entry.
func (b *mediaGroupBuffer) Flush(key string) {
	b.mu.Lock()
	entry, ok := b.entries[key]
	if ok {
		delete(b.entries, key)
		entry.timer.Stop()
	}
	b.mu.Unlock()

	if ok {
		b.onFlush(entry.flush)
	}
}

// Dispose flushes every pending entry, cancelling its timer first. Used at
// shutdown so buffered bursts still reach the pipeline.
func (b *mediaGroupBuffer) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	pending := make([]*mediaGroupEntry, 0, len(b.entries))
	for key, entry := range b.entries {
		delete(b.entries, key)
		entry.timer.Stop()
		pending = append(pending, entry)
	}
	b.mu.Unlock()

	for _, entry := range pending {
		b.onFlush(entry.flush)
	}
}
