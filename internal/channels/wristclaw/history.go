package wristclaw

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/wristclaw/internal/host"
)

// historyBuffer holds the per-group window of non-mentioning messages that a
// mention-policy group accumulates. The buffered entries become agent context
// for the next mention-triggered reply and are cleared after it dispatches.
type historyBuffer struct {
	mu     sync.Mutex
	limit  int
	groups map[string][]host.HistoryEntry
}

func newHistoryBuffer(limit int) *historyBuffer {
	return &historyBuffer{limit: limit, groups: make(map[string][]host.HistoryEntry)}
}

// Append records a message for the group, dropping the oldest entry once the
// window is full.
func (h *historyBuffer) Append(channelID string, entry host.HistoryEntry) {
	if h.limit <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := append(h.groups[channelID], entry)
	if len(entries) > h.limit {
		entries = entries[len(entries)-h.limit:]
	}
	h.groups[channelID] = entries
}

// Snapshot returns a copy of the group's buffered entries.
func (h *historyBuffer) Snapshot(channelID string) []host.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.groups[channelID]
	if len(entries) == 0 {
		return nil
	}
	return append([]host.HistoryEntry(nil), entries...)
}

// Clear drops the group's buffer after a mention-triggered dispatch.
func (h *historyBuffer) Clear(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups, channelID)
}

// renderHistory formats buffered entries as "[HH:MM] <sender>: <body>" lines.
func renderHistory(entries []host.HistoryEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s: %s\n", e.Timestamp.Format("15:04"), e.Sender, e.Body)
	}
	return b.String()
}
