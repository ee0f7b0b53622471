// Package sessions builds the canonical session keys the wristclaw plugin
// hands to the host runtime.
//
// Keys follow the OpenClaw canonical format:
//
//	agent:wristclaw:[{accountId}:]{direct|group}:ch:{channelId}
//
// The second segment is the fixed channel literal "wristclaw", not the agent
// id, so session identity survives agent routing changes. The accountId
// segment appears only for named accounts; the default account omits it.
//
// Examples:
//
//	agent:wristclaw:direct:ch:ch-1
//	agent:wristclaw:work:group:ch:ch-42
package sessions

import (
	"fmt"
	"strings"
)

// ChannelLiteral is the fixed channel-id segment of every session key.
const ChannelLiteral = "wristclaw"

// DefaultAccountID is the account id whose segment is omitted from keys.
const DefaultAccountID = "default"

// PeerKind distinguishes DM from group conversations.
type PeerKind string

const (
	PeerDirect PeerKind = "direct"
	PeerGroup  PeerKind = "group"
)

// BuildSessionKey builds the canonical session key for a conversation.
func BuildSessionKey(accountID string, kind PeerKind, channelID string) string {
	if accountID == "" || accountID == DefaultAccountID {
		return fmt.Sprintf("agent:%s:%s:ch:%s", ChannelLiteral, kind, channelID)
	}
	return fmt.Sprintf("agent:%s:%s:%s:ch:%s", ChannelLiteral, accountID, kind, channelID)
}

// ParseSessionKey splits a canonical key into its accountId (possibly empty),
// peer kind and channel id. ok is false for keys this plugin did not build.
func ParseSessionKey(key string) (accountID string, kind PeerKind, channelID string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 5 || parts[0] != "agent" || parts[1] != ChannelLiteral {
		return "", "", "", false
	}
	rest := parts[2:]
	if rest[0] != string(PeerDirect) && rest[0] != string(PeerGroup) {
		accountID = rest[0]
		rest = rest[1:]
	}
	if len(rest) != 3 || rest[1] != "ch" {
		return "", "", "", false
	}
	k := PeerKind(rest[0])
	if k != PeerDirect && k != PeerGroup {
		return "", "", "", false
	}
	return accountID, k, rest[2], true
}
