// Package host declares the capability set the wristclaw plugin consumes from
// the enclosing OpenClaw-compatible runtime. The plugin never implements
// these itself (tests use stubs): agent routing, the session store, reply
// dispatch, text chunking, and media helpers are all owned by the host.
package host

import (
	"context"
	"time"
)

// Route identifies the conversation a message arrived on for agent routing.
type Route struct {
	Channel   string // fixed "wristclaw"
	AccountID string
	PeerID    string // sender for DMs, channel id for groups
	PeerKind  string // "direct" or "group"
}

// Routing resolves which agent handles a conversation.
type Routing interface {
	// ResolveAgentRoute returns the default agent id for the route. The
	// monitor applies the account's secretary override for visitors itself.
	ResolveAgentRoute(ctx context.Context, route Route) (agentID string, err error)
}

// SessionStore is the host's session persistence surface.
type SessionStore interface {
	// ResolveStorePath maps a session key to its backing store path.
	ResolveStorePath(sessionKey string) string

	// ReadSessionUpdatedAt returns the last activity timestamp of a session,
	// or the zero time when the session does not exist yet.
	ReadSessionUpdatedAt(sessionKey string) (time.Time, error)

	// RecordInboundSession notes inbound activity for the session. Errors are
	// logged by the caller and never abort the pipeline.
	RecordInboundSession(ctx context.Context, rec InboundSessionRecord) error
}

// InboundSessionRecord describes one inbound message for the session store.
type InboundSessionRecord struct {
	SessionKey string
	AccountID  string
	ChannelID  string
	SenderID   string
	ReceivedAt time.Time
}

// HistoryEntry is one buffered group message handed to the agent as context
// for a mention-triggered reply.
type HistoryEntry struct {
	Sender    string
	Body      string
	Timestamp time.Time
	MessageID string
}

// EnvelopeInput carries the fields the host formats around the raw body.
type EnvelopeInput struct {
	ChannelName   string
	SenderLabel   string
	Body          string
	Timestamp     time.Time
	PrevTimestamp time.Time // zero when the session is new
}

// InboundContext is the finalized dispatch payload. End-to-end tests observe
// dispatches by capturing this value in a stub host.
type InboundContext struct {
	RunID             string
	AgentID           string
	SessionKey        string
	AccountID         string
	ChannelID         string
	SenderID          string
	SenderName        string
	MessageID         string
	PeerKind          string
	BodyForAgent      string
	Envelope          string
	CommandAuthorized bool // true only for the account owner
	MediaPaths        []string
	MediaURLs         []string
	InboundHistory    []HistoryEntry
}

// Reply is the host's reply dispatcher. Dispatch invokes the agent and calls
// deliver once per reply chunk, in order; it returns only after the final
// chunk. Per-chunk delivery errors are the plugin's to log.
type Reply interface {
	FormatAgentEnvelope(in EnvelopeInput) string
	Dispatch(ctx context.Context, inbound InboundContext, deliver func(chunk string) error) error
}

// ChunkMode selects how outbound text is split for the channel.
type ChunkMode string

const (
	ChunkModeLength    ChunkMode = "length"
	ChunkModeParagraph ChunkMode = "paragraph"
)

// Text is the host's markdown/chunking surface.
type Text interface {
	ConvertMarkdownTables(text string) string
	ResolveChunkMode(channel string) ChunkMode
	ChunkMarkdownTextWithMode(text string, mode ChunkMode, limit int) []string
}

// Media is the host's media download/storage surface.
type Media interface {
	// FetchRemoteMedia downloads url, enforcing maxBytes, and returns the
	// bytes and detected content type.
	FetchRemoteMedia(ctx context.Context, url string, maxBytes int64) (data []byte, contentType string, err error)

	// SaveMediaBuffer persists a downloaded buffer under the given scope
	// (e.g. "inbound") and returns the local path.
	SaveMediaBuffer(data []byte, contentType, scope string) (path string, err error)
}

// Sender delivers one outbound text piece to a channel. Implemented by the
// plugin's outbound helper, outside this core.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// Runtime bundles every capability the monitor needs.
type Runtime struct {
	Routing Routing
	Session SessionStore
	Reply   Reply
	Text    Text
	Media   Media
	Sender  Sender
}
