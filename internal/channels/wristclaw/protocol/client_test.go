package protocol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestClient builds a Client against an httptest server.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

// TestClient_MeSendsBearerAuth verifies the Authorization header and response
// decoding of /v1/me.
func TestClient_MeSendsBearerAuth(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("bad auth header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"user_id": "bot-1", "display_name": "Wrist Bot",
		})
	}))

	id, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if id.UserID != "bot-1" || id.DisplayName != "Wrist Bot" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

// TestClient_Conversations verifies decoding of pairs and groups.
func TestClient_Conversations(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"conversations":[` + //nolint:errcheck
			`{"type":"pair","channel_id":"ch-1","pair_id":"p-1"},` +
			`{"type":"group","channel_id":"ch-2","group_name":"dev"}]}`))
	}))

	convs, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].PairID != "p-1" || convs[1].GroupName != "dev" {
		t.Fatalf("unexpected conversations %+v", convs)
	}
}

// TestClient_ChannelMessagesValidatesIDs verifies path-safety validation
// before any request is sent.
func TestClient_ChannelMessagesValidatesIDs(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for invalid ids")
	}))

	if _, err := c.ChannelMessages(context.Background(), "ch/../evil", "m1", 50); err == nil {
		t.Fatal("expected error for invalid channel id")
	}
	if _, err := c.ChannelMessages(context.Background(), "ch-1", "m?1", 50); err == nil {
		t.Fatal("expected error for invalid message id")
	}
}

// TestClient_ChannelMessagesQuery verifies the after/limit query parameters.
func TestClient_ChannelMessagesQuery(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/channels/ch-1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("after") != "m2" || q.Get("limit") != "50" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"messages":[{"message_id":"m3","author_id":"u1",` + //nolint:errcheck
			`"payload":{"content_type":"text","text":"hi"}}]}`))
	}))

	msgs, err := c.ChannelMessages(context.Background(), "ch-1", "m2", 50)
	if err != nil {
		t.Fatalf("ChannelMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].MessageID != "m3" || msgs[0].Content.Text != "hi" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

// TestClient_WebSocketURL verifies scheme swapping and path append.
func TestClient_WebSocketURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://wrist.example.com", "wss://wrist.example.com/v1/ws"},
		{"http://localhost:8080", "ws://localhost:8080/v1/ws"},
		{"https://wrist.example.com/api/", "wss://wrist.example.com/api/v1/ws"},
	}
	for _, tc := range cases {
		c, err := NewClient(tc.base, "k")
		if err != nil {
			t.Fatalf("NewClient(%q): %v", tc.base, err)
		}
		if got := c.WebSocketURL(); got != tc.want {
			t.Errorf("WebSocketURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

// TestClient_ResolveMediaURL verifies server-relative resolution.
func TestClient_ResolveMediaURL(t *testing.T) {
	c, err := NewClient("https://wrist.example.com", "k")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := c.ResolveMediaURL("/media/abc.jpg"); got != "https://wrist.example.com/media/abc.jpg" {
		t.Fatalf("relative resolve: got %q", got)
	}
	if got := c.ResolveMediaURL("https://cdn.example.com/x.jpg"); got != "https://cdn.example.com/x.jpg" {
		t.Fatalf("absolute passthrough: got %q", got)
	}
}

// TestValidID covers the path-safety pattern.
func TestValidID(t *testing.T) {
	for _, ok := range []string{"ch-1", "A_b-9", "m3"} {
		if !ValidID(ok) {
			t.Errorf("expected %q valid", ok)
		}
	}
	for _, bad := range []string{"", "a b", "x/y", "m?1", "ch:1"} {
		if ValidID(bad) {
			t.Errorf("expected %q invalid", bad)
		}
	}
}
