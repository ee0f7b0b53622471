package wristclaw

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/wristclaw/internal/channels/wristclaw/protocol"
)

// catchUpLimit is the max messages fetched per channel after a reconnect.
const catchUpLimit = 50

// runCatchUp replays messages that arrived while the connection was down: for
// each channel with a known last-seen message id, fetch what came after it and
// feed the results through the normal gated pipeline. The per-account dedup
// set absorbs anything the live stream already delivered.
//
// Runs on its own goroutine; the REST calls are paced by the account's
// catch-up rate limiter so a reconnect with many channels does not hammer the
// server.
func (m *Monitor) runCatchUp(ctx context.Context) {
	m.mu.Lock()
	botUserID := m.identity.UserID
	targets := make(map[string]string, len(m.lastSeen))
	for channelID, afterID := range m.lastSeen {
		targets[channelID] = afterID
	}
	m.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	slog.Info("wristclaw catch-up starting", "account", m.account.ID, "channels", len(targets))

	replayed := 0
	for channelID, afterID := range targets {
		if err := m.catchupRate.Wait(ctx); err != nil {
			return
		}
		if !protocol.ValidID(channelID) || !protocol.ValidID(afterID) {
			continue
		}

		msgs, err := m.client.ChannelMessages(ctx, channelID, afterID, catchUpLimit)
		if err != nil {
			slog.Warn("wristclaw: catch-up fetch failed",
				"account", m.account.ID, "channel", channelID, "error", err)
			continue
		}

		cursor := afterID
		for _, msg := range msgs {
			if msg.MessageID != "" {
				// Advance lastSeen only while it still sits on the replay
				// cursor. A live message:new interleaved with the replay has
				// already moved it forward; rewinding would re-fetch on the
				// next reconnect.
				m.mu.Lock()
				if m.lastSeen[channelID] == cursor {
					m.lastSeen[channelID] = msg.MessageID
					cursor = msg.MessageID
				}
				m.mu.Unlock()
			}

			_, _, via, _ := messageParts(msg)
			if isEcho(via, msg.AuthorID, botUserID) {
				continue
			}
			if msg.ChannelID == "" {
				msg.ChannelID = channelID
			}
			m.dispatchGated(ctx, msg, channelID, nil)
			replayed++
		}
	}

	if replayed > 0 {
		slog.Info("wristclaw catch-up done", "account", m.account.ID, "replayed", replayed)
	}
}
