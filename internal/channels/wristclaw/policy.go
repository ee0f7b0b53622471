package wristclaw

import (
	"net/url"
	"strings"
)

// isEcho reports whether an event originated from this plugin or the bot
// user itself. Echoes never reach the agent.
func isEcho(via, authorID, botUserID string) bool {
	if via == "openclaw" {
		return true
	}
	return botUserID != "" && authorID == botUserID
}

// isSafeMediaURL gates media fetches against SSRF: a URL is safe iff it is
// server-relative or its hostname equals the account server's hostname.
// Empty URLs are unsafe (nothing to fetch).
func isSafeMediaURL(mediaURL, serverHostname string) bool {
	if mediaURL == "" {
		return false
	}
	if strings.HasPrefix(mediaURL, "/") {
		return true
	}
	u, err := url.Parse(mediaURL)
	if err != nil {
		return false
	}
	return u.Hostname() != "" && u.Hostname() == serverHostname
}
