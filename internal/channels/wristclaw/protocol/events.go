// Package protocol implements the Wrist server wire protocol: the JSON event
// frames of the WebSocket control plane and the Bearer-authenticated REST data
// plane the wristclaw monitor drives.
package protocol

import "encoding/json"

// Server → client event types.
const (
	EventAuthenticated    = "authenticated"
	EventPong             = "pong"
	EventSubscribed       = "subscribed"
	EventMessageNew       = "message:new"
	EventMessageUpdate    = "message:update"
	EventVoiceTranscribed = "voice:transcribed"
	EventPairCreated      = "pair:created"
	EventMemberAdded      = "group:member_added"
	EventMemberChanged    = "group:member_changed"
	EventError            = "error"
)

// Typing indicator statuses.
const (
	TypingThinking = "thinking"
	TypingActive   = "typing"
	TypingStopped  = "stopped"
)

// Conversation types.
const (
	ConversationPair  = "pair"
	ConversationGroup = "group"
)

// Event is one inbound WebSocket frame. Payload stays raw until the event
// type is known; unknown types are ignored without error.
type Event struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageEvent is the payload of message:new, message:update and
// voice:transcribed events. channel_id may be absent: the monitor resolves it
// from pair_id or the subscription channel name.
type MessageEvent struct {
	MessageID  string          `json:"message_id"`
	ChannelID  string          `json:"channel_id,omitempty"`
	PairID     string          `json:"pair_id,omitempty"`
	AuthorID   string          `json:"author_id,omitempty"`
	SenderName string          `json:"sender_name,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
	MediaURL   string          `json:"media_url,omitempty"`
	Text       string          `json:"text,omitempty"` // message:update / voice:transcribed transcription
	ReplyTo    *ReplyContext   `json:"reply_context,omitempty"`
	Content    *MessageContent `json:"payload,omitempty"`
}

// MessageContent is the nested content object of a message.
type MessageContent struct {
	ContentType string  `json:"content_type,omitempty"`
	Text        string  `json:"text,omitempty"`
	MediaURL    string  `json:"media_url,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	Via         string  `json:"via,omitempty"`
}

// ReplyContext describes the message being replied to.
type ReplyContext struct {
	MessageID   string `json:"message_id,omitempty"`
	AuthorID    string `json:"author_id,omitempty"`
	TextPreview string `json:"text_preview,omitempty"`
}

// PairEvent is the payload of pair:created.
type PairEvent struct {
	PairID    string `json:"pair_id"`
	ChannelID string `json:"channel_id,omitempty"`
}

// MemberEvent is the payload of group:member_added / group:member_changed.
type MemberEvent struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id,omitempty"`
}

// ErrorEvent is the payload of error events.
type ErrorEvent struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// --- Client → server frames ---

// AuthFrame is the first frame sent after connect.
type AuthFrame struct {
	Type    string      `json:"type"`
	Payload AuthPayload `json:"payload"`
}

type AuthPayload struct {
	APIKey string `json:"apiKey"`
}

// SubscribeFrame subscribes to "channel:<id>", "user:<id>" or "pair:<id>".
type SubscribeFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// PingFrame is the client heartbeat; the server answers with a pong event.
type PingFrame struct {
	Type string `json:"type"`
}

// TypingFrame reports agent activity on a channel.
type TypingFrame struct {
	Type    string        `json:"type"`
	Channel string        `json:"channel"`
	Payload TypingPayload `json:"payload"`
}

type TypingPayload struct {
	Status string `json:"status"`
}

// NewAuthFrame builds the auth frame for the given API key.
func NewAuthFrame(apiKey string) AuthFrame {
	return AuthFrame{Type: "auth", Payload: AuthPayload{APIKey: apiKey}}
}

// NewSubscribeFrame builds a subscribe frame for a raw subscription name.
func NewSubscribeFrame(channel string) SubscribeFrame {
	return SubscribeFrame{Type: "subscribe", Channel: channel}
}

// NewTypingFrame builds a typing frame with the given status.
func NewTypingFrame(channel, status string) TypingFrame {
	return TypingFrame{Type: "typing", Channel: channel, Payload: TypingPayload{Status: status}}
}
