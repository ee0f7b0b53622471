// Package channels holds the access-policy primitives shared by channel
// plugins: DM and group policies with allowlist matching, and the per-sender
// rate limiter. The wristclaw monitor evaluates these gates before any
// inbound message reaches the agent runtime.
package channels

// DMPolicy controls how direct messages from non-owner senders are handled.
type DMPolicy string

const (
	DMPolicyOpen      DMPolicy = "open"      // accept all (default)
	DMPolicyAllowlist DMPolicy = "allowlist" // only allowlisted senders
	DMPolicyDisabled  DMPolicy = "disabled"  // reject all DMs
)

// GroupPolicy controls how group messages are handled.
type GroupPolicy string

const (
	GroupPolicyMention  GroupPolicy = "mention"  // record history, reply only when @mentioned (default)
	GroupPolicyOpen     GroupPolicy = "open"     // reply to every accepted message
	GroupPolicyDisabled GroupPolicy = "disabled" // ignore groups entirely
)

// Verdict is the outcome of a policy gate.
type Verdict int

const (
	Deny Verdict = iota
	Allow
	// RecordOnly admits the message into the group history buffer; the caller
	// must still apply the @mention gate before dispatching.
	RecordOnly
)

// InAllowlist reports whether id matches the allowlist. A literal "*" entry
// admits everyone.
func InAllowlist(allowlist []string, id string) bool {
	for _, entry := range allowlist {
		if entry == "*" || entry == id {
			return true
		}
	}
	return false
}

// CheckDMPolicy evaluates the DM gate. The owner always passes. An allowlist
// policy with an empty list denies everyone else.
func CheckDMPolicy(policy DMPolicy, allowlist []string, senderID, ownerID string) bool {
	if ownerID != "" && senderID == ownerID {
		return true
	}
	switch policy {
	case DMPolicyDisabled:
		return false
	case DMPolicyAllowlist:
		return InAllowlist(allowlist, senderID)
	default: // open
		return true
	}
}

// CheckGroupPolicy evaluates the group gate. When a group allowlist is
// configured, non-owner senders must match it before the policy applies.
// A "mention" policy yields RecordOnly: the caller checks @mention separately.
func CheckGroupPolicy(policy GroupPolicy, allowlist []string, senderID, ownerID string) Verdict {
	if policy == GroupPolicyDisabled {
		return Deny
	}
	isOwner := ownerID != "" && senderID == ownerID
	if len(allowlist) > 0 && !isOwner && !InAllowlist(allowlist, senderID) {
		return Deny
	}
	if policy == GroupPolicyOpen {
		return Allow
	}
	return RecordOnly
}
