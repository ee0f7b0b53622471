package wristclaw

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/wristclaw/internal/channels"
	"github.com/nextlevelbuilder/wristclaw/internal/channels/typing"
	"github.com/nextlevelbuilder/wristclaw/internal/channels/wristclaw/protocol"
	"github.com/nextlevelbuilder/wristclaw/internal/host"
	"github.com/nextlevelbuilder/wristclaw/internal/sessions"
)

const (
	// maxMediaBytes caps a single inbound media download.
	maxMediaBytes = 10 << 20 // 10 MiB

	// outboundChunkLimit is the per-message character cap of the Wrist server.
	outboundChunkLimit = 4000

	// replyPreviewLimit caps the quoted preview prepended for reply context.
	replyPreviewLimit = 100
)

// Body placeholders for non-text content.
const (
	placeholderVoice       = "🎤 語音訊息"
	placeholderImage       = "📷 圖片"
	placeholderImages      = "📷 %d 張圖片"
	placeholderInteractive = "📋 互動訊息"
)

// processMessage runs one inbound message through the full gate-and-dispatch
// pipeline. It executes on a dispatch worker goroutine; every early return is
// a deliberate drop.
func (m *Monitor) processMessage(ctx context.Context, msg protocol.MessageEvent, channelID string, extraURLs []string) {
	contentType, text, via, mediaURL := messageParts(msg)

	m.mu.Lock()
	botUserID := m.identity.UserID
	botName := m.identity.DisplayName
	isGroup := m.groupChannels[channelID]
	m.mu.Unlock()

	if isEcho(via, msg.AuthorID, botUserID) {
		return
	}
	if msg.MessageID == "" {
		return
	}
	if !claimMessage(msg.MessageID) {
		slog.Debug("wristclaw: message claimed by another account",
			"account", m.account.ID, "message", msg.MessageID)
		return
	}
	if !m.markProcessed(msg.MessageID) {
		return
	}

	senderID := msg.AuthorID
	isOwner := m.account.OwnerUserID != "" && senderID == m.account.OwnerUserID

	// Access gates.
	mentionGated := false
	if isGroup {
		verdict := channels.CheckGroupPolicy(
			channels.GroupPolicy(m.account.GroupPolicy), m.account.GroupAllowFrom, senderID, m.account.OwnerUserID)
		switch verdict {
		case channels.Deny:
			slog.Debug("wristclaw: group policy denied",
				"account", m.account.ID, "channel", channelID, "sender", senderID)
			return
		case channels.RecordOnly:
			mentionGated = true
		}
	} else {
		if !channels.CheckDMPolicy(
			channels.DMPolicy(m.account.DMPolicy), m.account.AllowFrom, senderID, m.account.OwnerUserID) {
			slog.Debug("wristclaw: dm policy denied",
				"account", m.account.ID, "channel", channelID, "sender", senderID)
			return
		}
	}

	if m.limiter.IsLimited(senderID) {
		slog.Warn("wristclaw: sender rate limited",
			"account", m.account.ID, "channel", channelID, "sender", senderID)
		return
	}

	// Body.
	var mediaURLs []string
	body := strings.TrimSpace(text)
	switch contentType {
	case "text":
		if body == "" {
			return
		}

	case "voice":
		transcript := body
		if transcript == "" {
			transcript = strings.TrimSpace(m.voice.Wait(ctx, msg.MessageID))
		}
		if transcript == "" {
			if !m.account.VoiceFallback {
				slog.Debug("wristclaw: voice transcription missing, dropping",
					"account", m.account.ID, "message", msg.MessageID)
				return
			}
			transcript = placeholderVoice
		}
		body = transcript

	case "image":
		urls := make([]string, 0, 1+len(extraURLs))
		if isSafeMediaURL(mediaURL, m.client.Hostname()) {
			urls = append(urls, mediaURL)
		} else if mediaURL != "" {
			slog.Warn("wristclaw: rejecting off-server media url",
				"account", m.account.ID, "message", msg.MessageID)
		}
		urls = append(urls, extraURLs...) // buffer already safety-checked these
		mediaURLs = urls
		if body == "" {
			body = imagePlaceholder(len(urls))
		}

	case "interactive":
		if body == "" {
			body = placeholderInteractive
		}

	default:
		if body == "" {
			return
		}
	}

	// Mention gate, after the body exists so stripping applies to it.
	var inboundHistory []host.HistoryEntry
	senderLabel := msg.SenderName
	if senderLabel == "" {
		senderLabel = senderID
	}
	ts := messageTimestamp(msg)
	if mentionGated {
		pool := mentionPool(m.account.MentionNames, botName)
		mentioned, stripped := detectAndStripMention(body, pool)
		if !mentioned {
			m.history.Append(channelID, host.HistoryEntry{
				Sender: senderLabel, Body: body, Timestamp: ts, MessageID: msg.MessageID,
			})
			return
		}
		if stripped == "" {
			return
		}
		body = stripped
		inboundHistory = m.history.Snapshot(channelID)
		m.history.Clear(channelID)
	}

	// Reply context.
	if msg.ReplyTo != nil {
		if preview := sanitizePreview(msg.ReplyTo.TextPreview); preview != "" {
			body = "[回覆 " + preview + "]\n" + body
		}
	}

	mediaPaths := m.fetchMedia(ctx, msg.MessageID, mediaURLs)

	// Routing.
	peerKind := sessions.PeerDirect
	peerID := senderID
	if isGroup {
		peerKind = sessions.PeerGroup
		peerID = channelID
	}
	agentID, err := m.runtime.Routing.ResolveAgentRoute(ctx, host.Route{
		Channel:   sessions.ChannelLiteral,
		AccountID: m.account.ID,
		PeerID:    peerID,
		PeerKind:  string(peerKind),
	})
	if err != nil {
		slog.Error("wristclaw: agent route resolution failed",
			"account", m.account.ID, "channel", channelID, "error", err)
		return
	}
	if !isOwner && m.account.SecretaryAgentID != "" {
		agentID = m.account.SecretaryAgentID
	}

	sessionKey := sessions.BuildSessionKey(m.account.ID, peerKind, channelID)
	prevTS, err := m.runtime.Session.ReadSessionUpdatedAt(sessionKey)
	if err != nil {
		prevTS = time.Time{}
	}

	envelopeBody := body
	if hist := renderHistory(inboundHistory); hist != "" {
		envelopeBody = hist + body
	}
	envelope := m.runtime.Reply.FormatAgentEnvelope(host.EnvelopeInput{
		ChannelName:   sessions.ChannelLiteral,
		SenderLabel:   senderLabel,
		Body:          envelopeBody,
		Timestamp:     ts,
		PrevTimestamp: prevTS,
	})

	if err := m.runtime.Session.RecordInboundSession(ctx, host.InboundSessionRecord{
		SessionKey: sessionKey,
		AccountID:  m.account.ID,
		ChannelID:  channelID,
		SenderID:   senderID,
		ReceivedAt: ts,
	}); err != nil {
		slog.Warn("wristclaw: session record failed",
			"account", m.account.ID, "session", sessionKey, "error", err)
	}

	inbound := host.InboundContext{
		RunID:             uuid.NewString(),
		AgentID:           agentID,
		SessionKey:        sessionKey,
		AccountID:         m.account.ID,
		ChannelID:         channelID,
		SenderID:          senderID,
		SenderName:        senderLabel,
		MessageID:         msg.MessageID,
		PeerKind:          string(peerKind),
		BodyForAgent:      body,
		Envelope:          envelope,
		CommandAuthorized: isOwner,
		MediaPaths:        mediaPaths,
		MediaURLs:         mediaURLs,
		InboundHistory:    inboundHistory,
	}
	m.dispatchReply(ctx, channelID, inbound)
}

// markProcessed records a message id in the per-account dedup set, pruning a
// batch when the set is full so a burst does not evict one-by-one.
func (m *Monitor) markProcessed(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed.Has(messageID) {
		return false
	}
	if m.processed.Len() >= processedSetCap {
		m.processed.EvictOldest(processedEvictBatch)
	}
	m.processed.Add(messageID)
	return true
}

// dispatchReply invokes the agent with a typing heartbeat running and streams
// reply chunks back to the channel, re-splitting each to the outbound limit.
func (m *Monitor) dispatchReply(ctx context.Context, channelID string, inbound host.InboundContext) {
	tc := typing.Start(typing.Options{Send: func(status string) {
		conn := m.currentConn()
		if conn == nil {
			return
		}
		if err := conn.WriteJSON(ctx, protocol.NewTypingFrame("channel:"+channelID, status)); err != nil {
			slog.Debug("wristclaw: typing write failed",
				"account", m.account.ID, "channel", channelID, "error", err)
		}
	}})
	defer tc.StopAndClear()

	mode := m.runtime.Text.ResolveChunkMode(sessions.ChannelLiteral)
	deliver := func(chunk string) error {
		tc.MarkTyping()
		converted := m.runtime.Text.ConvertMarkdownTables(chunk)
		for _, piece := range m.runtime.Text.ChunkMarkdownTextWithMode(converted, mode, outboundChunkLimit) {
			if piece == "" {
				continue
			}
			if err := m.runtime.Sender.Send(ctx, channelID, piece); err != nil {
				return err
			}
			m.status.Outbound()
		}
		return nil
	}

	if err := m.runtime.Reply.Dispatch(ctx, inbound, deliver); err != nil {
		slog.Error("wristclaw: dispatch failed",
			"account", m.account.ID, "channel", channelID, "run", inbound.RunID, "error", err)
	}
}

// fetchMedia downloads each safe media URL, saves it through the host media
// store, and returns the local paths. Individual failures are logged and
// skipped.
func (m *Monitor) fetchMedia(ctx context.Context, messageID string, urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	paths := make([]string, 0, len(urls))
	for _, raw := range urls {
		resolved := m.client.ResolveMediaURL(raw)
		data, contentType, err := m.runtime.Media.FetchRemoteMedia(ctx, resolved, maxMediaBytes)
		if err != nil {
			slog.Warn("wristclaw: media fetch failed",
				"account", m.account.ID, "message", messageID, "error", err)
			continue
		}
		path, err := m.runtime.Media.SaveMediaBuffer(data, contentType, "inbound")
		if err != nil {
			slog.Warn("wristclaw: media save failed",
				"account", m.account.ID, "message", messageID, "error", err)
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// imagePlaceholder renders the body for caption-less image messages.
func imagePlaceholder(count int) string {
	if count > 1 {
		return fmt.Sprintf(placeholderImages, count)
	}
	return placeholderImage
}

// sanitizePreview strips control characters (keeping tab and newlines as
// spaces) from a reply preview and caps its length.
func sanitizePreview(preview string) string {
	var b strings.Builder
	for _, r := range preview {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r < 0x20 || r == 0x7f:
			// drop
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > replyPreviewLimit {
		out = string(runes[:replyPreviewLimit]) + "…"
	}
	return out
}
