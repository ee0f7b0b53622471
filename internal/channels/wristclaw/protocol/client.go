package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// channelIDPattern validates channel and message ids before they are spliced
// into request paths.
var channelIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidID reports whether id is safe to embed in a REST path.
func ValidID(id string) bool { return channelIDPattern.MatchString(id) }

// Client is the Bearer-authenticated REST client for one account's Wrist
// server. All calls go through the retrying Fetch helper.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	retries int
}

// NewClient creates a REST client for the given server base URL and API key.
func NewClient(baseURL, apiKey string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("wristclaw: parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("wristclaw: server url must be http(s), got %q", baseURL)
	}
	return &Client{baseURL: u, apiKey: apiKey, http: &http.Client{}, retries: 2}, nil
}

// BaseURL returns the parsed server base URL.
func (c *Client) BaseURL() *url.URL { return c.baseURL }

// Hostname returns the server hostname, used for media-URL safety checks.
func (c *Client) Hostname() string { return c.baseURL.Hostname() }

// ResolveMediaURL resolves a server-relative media path against the base URL.
// Absolute URLs pass through unchanged.
func (c *Client) ResolveMediaURL(mediaURL string) string {
	if strings.HasPrefix(mediaURL, "/") {
		return c.baseURL.String() + mediaURL
	}
	return mediaURL
}

// WebSocketURL derives the control-plane URL: the http(s) scheme swapped for
// ws(s) with /v1/ws appended.
func (c *Client) WebSocketURL() string {
	scheme := "ws"
	if c.baseURL.Scheme == "https" {
		scheme = "wss"
	}
	u := *c.baseURL
	u.Scheme = scheme
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ws"
	return u.String()
}

// Identity is the bot identity from /v1/me.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Conversation is one entry of /v1/conversations.
type Conversation struct {
	Type      string `json:"type"` // "pair" or "group"
	ChannelID string `json:"channel_id"`
	PairID    string `json:"pair_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`
}

// Pair is one entry of /v1/pair/list.
type Pair struct {
	PairID    string          `json:"pair_id"`
	ChannelID string          `json:"channel_id"`
	User      json.RawMessage `json:"user,omitempty"`
}

// Health is the /health probe response.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Me fetches the bot identity.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	var out Identity
	return out, c.getJSON(ctx, "/v1/me", &out)
}

// Conversations fetches every conversation the account participates in.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.getJSON(ctx, "/v1/conversations", &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// Pairs fetches the pair list, used on pair:created to pick up new mappings.
func (c *Client) Pairs(ctx context.Context) ([]Pair, error) {
	var out struct {
		Pairs []Pair `json:"pairs"`
	}
	if err := c.getJSON(ctx, "/v1/pair/list", &out); err != nil {
		return nil, err
	}
	return out.Pairs, nil
}

// ChannelMessages fetches up to limit messages after the given message id,
// in ascending order. Both ids must be path-safe.
func (c *Client) ChannelMessages(ctx context.Context, channelID, afterID string, limit int) ([]MessageEvent, error) {
	if !ValidID(channelID) {
		return nil, fmt.Errorf("wristclaw: invalid channel id %q", channelID)
	}
	if !ValidID(afterID) {
		return nil, fmt.Errorf("wristclaw: invalid message id %q", afterID)
	}
	path := "/v1/channels/" + channelID + "/messages?after=" + afterID + "&limit=" + strconv.Itoa(limit)
	var out struct {
		Messages []MessageEvent `json:"messages"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// CheckHealth probes /health. Unlike the /v1 endpoints it needs no auth, but
// sending the Bearer header is harmless.
func (c *Client) CheckHealth(ctx context.Context) (Health, error) {
	var out Health
	return out, c.getJSON(ctx, "/health", &out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := Fetch(ctx, c.http, FetchRequest{
		URL: c.baseURL.String() + path,
		Headers: map[string]string{
			"Authorization": "Bearer " + c.apiKey,
			"Accept":        "application/json",
		},
		Retries: c.retries,
	})
	if err != nil {
		return fmt.Errorf("wristclaw: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20)) // 4MB cap
	if err != nil {
		return fmt.Errorf("wristclaw: GET %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wristclaw: GET %s: status %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("wristclaw: GET %s: parse response: %w", path, err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
