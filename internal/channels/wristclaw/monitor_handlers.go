package wristclaw

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/wristclaw/internal/channels/wristclaw/protocol"
)

// onAuthenticated runs the post-auth session setup: fetch the bot identity
// once, subscribe to the user stream and every conversation channel, rebuild
// the pair and group maps, and kick off catch-up on reconnects.
func (m *Monitor) onAuthenticated(ctx context.Context) error {
	conn := m.currentConn()
	if conn == nil {
		return nil
	}

	m.mu.Lock()
	haveIdentity := m.haveIdentity
	m.mu.Unlock()

	if !haveIdentity {
		identity, err := m.client.Me(ctx)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.identity = identity
		m.haveIdentity = true
		m.mu.Unlock()
		slog.Info("wristclaw identity resolved",
			"account", m.account.ID, "user_id", identity.UserID, "name", identity.DisplayName)
	}

	m.mu.Lock()
	userID := m.identity.UserID
	m.mu.Unlock()

	if err := conn.WriteJSON(ctx, protocol.NewSubscribeFrame("user:"+userID)); err != nil {
		return err
	}

	convs, err := m.client.Conversations(ctx)
	if err != nil {
		return err
	}

	pairToChannel := make(map[string]string, len(convs))
	groupChannels := make(map[string]bool)
	for _, conv := range convs {
		if conv.PairID != "" {
			pairToChannel[conv.PairID] = conv.ChannelID
		}
		if conv.Type == protocol.ConversationGroup {
			groupChannels[conv.ChannelID] = true
		}
	}
	m.mu.Lock()
	m.pairToChannel = pairToChannel
	m.groupChannels = groupChannels
	wasConnectedBefore := m.firstConnect
	m.firstConnect = true
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, conv := range convs {
		channelID := conv.ChannelID
		if channelID == "" {
			continue
		}
		g.Go(func() error {
			return conn.WriteJSON(gctx, protocol.NewSubscribeFrame("channel:"+channelID))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("wristclaw session ready",
		"account", m.account.ID, "conversations", len(convs), "groups", len(groupChannels))

	if wasConnectedBefore {
		go m.runCatchUp(ctx)
	}
	return nil
}

// handleEvent dispatches one non-lifecycle server event. Unknown event types
// are ignored.
func (m *Monitor) handleEvent(ctx context.Context, ev protocol.Event) {
	switch ev.Type {
	case protocol.EventMessageNew:
		var msg protocol.MessageEvent
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			slog.Debug("wristclaw: bad message:new payload", "account", m.account.ID, "error", err)
			return
		}
		m.handleMessageNew(ctx, msg, ev.Channel)

	case protocol.EventMessageUpdate:
		var msg protocol.MessageEvent
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			return
		}
		text := msg.Text
		if text == "" && msg.Content != nil {
			text = msg.Content.Text
		}
		if text != "" && m.voice.Resolve(msg.MessageID, text) {
			slog.Debug("wristclaw transcription resolved", "account", m.account.ID, "message", msg.MessageID)
		}

	case protocol.EventVoiceTranscribed:
		// Legacy servers emit a dedicated event instead of message:update.
		var msg protocol.MessageEvent
		if err := json.Unmarshal(ev.Payload, &msg); err != nil || msg.Text == "" {
			return
		}
		if m.voice.Resolve(msg.MessageID, msg.Text) {
			return
		}
		// No pending waiter: the message:new never arrived on this path, so
		// synthesize a voice message and run it through the pipeline.
		if msg.AuthorID == "" {
			m.mu.Lock()
			if author, ok := m.msgAuthors.Get(msg.MessageID); ok {
				msg.AuthorID = author
			}
			m.mu.Unlock()
		}
		msg.Content = &protocol.MessageContent{ContentType: "voice", Text: msg.Text}
		channelID := m.resolveChannelID(msg, ev.Channel)
		if channelID == "" {
			return
		}
		m.dispatchGated(ctx, msg, channelID, nil)

	case protocol.EventPairCreated:
		var pe protocol.PairEvent
		if err := json.Unmarshal(ev.Payload, &pe); err != nil {
			return
		}
		go m.refreshPairs(ctx, pe)

	case protocol.EventMemberAdded:
		var me protocol.MemberEvent
		if err := json.Unmarshal(ev.Payload, &me); err != nil || me.ChannelID == "" {
			return
		}
		m.mu.Lock()
		m.groupChannels[me.ChannelID] = true
		m.mu.Unlock()
		if conn := m.currentConn(); conn != nil {
			if err := conn.WriteJSON(ctx, protocol.NewSubscribeFrame("channel:"+me.ChannelID)); err != nil {
				slog.Debug("wristclaw: subscribe after member_added failed",
					"account", m.account.ID, "channel", me.ChannelID, "error", err)
			}
		}

	case protocol.EventMemberChanged, protocol.EventSubscribed:
		slog.Debug("wristclaw event", "account", m.account.ID, "type", ev.Type, "channel", ev.Channel)

	case protocol.EventError:
		var ee protocol.ErrorEvent
		_ = json.Unmarshal(ev.Payload, &ee)
		slog.Warn("wristclaw server error event",
			"account", m.account.ID, "code", ee.Code, "message", ee.Message)

	default:
		slog.Debug("wristclaw: ignoring event", "account", m.account.ID, "type", ev.Type)
	}
}

// handleMessageNew resolves the channel, records bookkeeping, offers images to
// the media-group buffer, and hands everything else to the gated pipeline.
func (m *Monitor) handleMessageNew(ctx context.Context, msg protocol.MessageEvent, wsChannel string) {
	m.status.Inbound()

	channelID := m.resolveChannelID(msg, wsChannel)
	if channelID == "" {
		slog.Debug("wristclaw: message without resolvable channel",
			"account", m.account.ID, "message", msg.MessageID, "pair", msg.PairID)
		return
	}

	m.mu.Lock()
	m.lastSeen[channelID] = msg.MessageID
	if msg.AuthorID != "" {
		m.msgAuthors.Set(msg.MessageID, msg.AuthorID)
	}
	m.mu.Unlock()

	contentType, _, _, mediaURL := messageParts(msg)
	groupKey := channelID + ":" + msg.AuthorID
	if m.media.TryBuffer(groupKey, msg, channelID, mediaURL, contentType == "image") {
		return
	}

	m.dispatchGated(ctx, msg, channelID, nil)
}

// flushMediaGroup receives collapsed image bursts from the media-group buffer.
// Timer callbacks carry no request context, so the monitor's run context (or
// background at shutdown) gates the dispatch.
func (m *Monitor) flushMediaGroup(f mediaGroupFlush) {
	ctx := m.runContext()
	m.dispatchGated(ctx, f.Event, f.ChannelID, f.ExtraURLs)
}

// dispatchGated admits the message into the pipeline if a dispatch slot is
// free, and drops it otherwise. Dropping keeps a flooded channel from queueing
// unbounded work behind the websocket reader.
func (m *Monitor) dispatchGated(ctx context.Context, msg protocol.MessageEvent, channelID string, extraURLs []string) {
	select {
	case m.dispatchSem <- struct{}{}:
	default:
		slog.Warn("wristclaw: dispatch slots exhausted, dropping message",
			"account", m.account.ID, "channel", channelID, "message", msg.MessageID)
		return
	}

	m.wg.Add(1)
	go func() {
		defer func() {
			<-m.dispatchSem
			m.wg.Done()
		}()
		m.processMessage(ctx, msg, channelID, extraURLs)
	}()
}

// resolveChannelID resolves the target channel, in priority order: the event's
// own channel_id, the pair map, then the subscription channel name.
func (m *Monitor) resolveChannelID(msg protocol.MessageEvent, wsChannel string) string {
	if msg.ChannelID != "" {
		return msg.ChannelID
	}
	if msg.PairID != "" {
		m.mu.Lock()
		mapped := m.pairToChannel[msg.PairID]
		m.mu.Unlock()
		if mapped != "" {
			return mapped
		}
	}
	if id, ok := strings.CutPrefix(wsChannel, "channel:"); ok {
		return id
	}
	return ""
}

// refreshPairs re-reads the pair list after pair:created and merges new
// mappings. Additive only: concurrent message events may already have used
// existing entries.
func (m *Monitor) refreshPairs(ctx context.Context, pe protocol.PairEvent) {
	if pe.PairID != "" && pe.ChannelID != "" {
		m.mu.Lock()
		m.pairToChannel[pe.PairID] = pe.ChannelID
		m.mu.Unlock()
	}

	pairs, err := m.client.Pairs(ctx)
	if err != nil {
		slog.Debug("wristclaw: pair list refresh failed", "account", m.account.ID, "error", err)
		return
	}
	m.mu.Lock()
	for _, p := range pairs {
		if p.PairID != "" && p.ChannelID != "" {
			m.pairToChannel[p.PairID] = p.ChannelID
		}
	}
	m.mu.Unlock()

	if pe.ChannelID != "" {
		if conn := m.currentConn(); conn != nil {
			_ = conn.WriteJSON(ctx, protocol.NewSubscribeFrame("channel:"+pe.ChannelID))
		}
	}
}

// messageParts extracts the content type, text, via marker and media URL from
// an event, preferring the nested payload over the legacy flat fields.
func messageParts(msg protocol.MessageEvent) (contentType, text, via, mediaURL string) {
	text = msg.Text
	mediaURL = msg.MediaURL
	if c := msg.Content; c != nil {
		contentType = c.ContentType
		via = c.Via
		if c.Text != "" {
			text = c.Text
		}
		if c.MediaURL != "" {
			mediaURL = c.MediaURL
		}
	}
	if contentType == "" {
		if mediaURL != "" {
			contentType = "image"
		} else {
			contentType = "text"
		}
	}
	return contentType, text, via, mediaURL
}

// messageTimestamp parses created_at, falling back to the receive time.
func messageTimestamp(msg protocol.MessageEvent) time.Time {
	if msg.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, msg.CreatedAt); err == nil {
			return ts
		}
	}
	return time.Now()
}
