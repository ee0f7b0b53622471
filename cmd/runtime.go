package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/wristclaw/internal/channels/wristclaw/protocol"
	"github.com/nextlevelbuilder/wristclaw/internal/host"
)

// standaloneRuntime is the host shim used when wristclaw runs outside an
// OpenClaw-compatible host: dispatches are logged instead of invoking an
// agent, and outbound delivery is a log line. Useful for verifying policies,
// subscriptions and connectivity against a live server.
type standaloneRuntime struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	mediaDir string
	http     *http.Client
}

func newStandaloneRuntime() host.Runtime {
	r := &standaloneRuntime{
		sessions: make(map[string]time.Time),
		mediaDir: filepath.Join(os.TempDir(), "wristclaw-media"),
		http:     &http.Client{},
	}
	return host.Runtime{Routing: r, Session: r, Reply: r, Text: r, Media: r, Sender: r}
}

func (r *standaloneRuntime) ResolveAgentRoute(ctx context.Context, route host.Route) (string, error) {
	if v := os.Getenv("WRISTCLAW_AGENT_ID"); v != "" {
		return v, nil
	}
	return "main", nil
}

func (r *standaloneRuntime) ResolveStorePath(sessionKey string) string {
	return filepath.Join(os.TempDir(), "wristclaw-sessions", sessionKey)
}

func (r *standaloneRuntime) ReadSessionUpdatedAt(sessionKey string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionKey], nil
}

func (r *standaloneRuntime) RecordInboundSession(ctx context.Context, rec host.InboundSessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[rec.SessionKey] = rec.ReceivedAt
	return nil
}

func (r *standaloneRuntime) FormatAgentEnvelope(in host.EnvelopeInput) string {
	ts := in.Timestamp.Format("2006-01-02 15:04")
	return fmt.Sprintf("[%s] %s @ %s:\n%s", ts, in.SenderLabel, in.ChannelName, in.Body)
}

// Dispatch logs the inbound context; no agent is attached in standalone mode.
func (r *standaloneRuntime) Dispatch(ctx context.Context, inbound host.InboundContext, deliver func(chunk string) error) error {
	slog.Info("inbound message accepted",
		"run", inbound.RunID,
		"agent", inbound.AgentID,
		"session", inbound.SessionKey,
		"channel", inbound.ChannelID,
		"sender", inbound.SenderName,
		"media", len(inbound.MediaPaths),
		"history", len(inbound.InboundHistory),
		"body", inbound.BodyForAgent)
	return nil
}

func (r *standaloneRuntime) ConvertMarkdownTables(text string) string { return text }

func (r *standaloneRuntime) ResolveChunkMode(channel string) host.ChunkMode {
	return host.ChunkModeLength
}

func (r *standaloneRuntime) ChunkMarkdownTextWithMode(text string, mode host.ChunkMode, limit int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > limit {
		out = append(out, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(out, string(runes))
}

func (r *standaloneRuntime) FetchRemoteMedia(ctx context.Context, url string, maxBytes int64) ([]byte, string, error) {
	resp, err := protocol.Fetch(ctx, r.http, protocol.FetchRequest{URL: url, Retries: 1})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("media fetch: exceeds %d bytes", maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (r *standaloneRuntime) SaveMediaBuffer(data []byte, contentType, scope string) (string, error) {
	if err := os.MkdirAll(r.mediaDir, 0o755); err != nil {
		return "", err
	}
	ext := ".bin"
	switch {
	case strings.Contains(contentType, "jpeg"):
		ext = ".jpg"
	case strings.Contains(contentType, "png"):
		ext = ".png"
	case strings.Contains(contentType, "gif"):
		ext = ".gif"
	case strings.Contains(contentType, "webp"):
		ext = ".webp"
	}
	path := filepath.Join(r.mediaDir, scope+"-"+uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (r *standaloneRuntime) Send(ctx context.Context, channelID, text string) error {
	slog.Info("outbound (standalone, not delivered)", "channel", channelID, "text", text)
	return nil
}
