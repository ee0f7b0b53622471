package wristclaw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/nextlevelbuilder/wristclaw/internal/channels/wristclaw/protocol"
)

func TestValidateWSURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"wss://wrist.example/v1/ws", true},
		{"ws://localhost:8080/v1/ws", true},
		{"ws://127.0.0.1:9000/v1/ws", true},
		{"ws://[::1]:9000/v1/ws", true},
		{"ws://wrist.example/v1/ws", false},
		{"ws://10.0.0.5/v1/ws", false},
	}
	for _, tt := range tests {
		err := validateWSURL(tt.url)
		if (err == nil) != tt.ok {
			t.Errorf("validateWSURL(%q) err = %v, want ok=%v", tt.url, err, tt.ok)
		}
	}
}

func TestResolveChannelID(t *testing.T) {
	h := newStubHost()
	m := newTestMonitor(t, testAccount(), h)
	m.pairToChannel["p-1"] = "ch-from-pair"

	tests := []struct {
		name      string
		msg       protocol.MessageEvent
		wsChannel string
		want      string
	}{
		{"explicit channel id", protocol.MessageEvent{ChannelID: "ch-1"}, "channel:ch-2", "ch-1"},
		{"pair mapping", protocol.MessageEvent{PairID: "p-1"}, "", "ch-from-pair"},
		{"subscription name", protocol.MessageEvent{}, "channel:ch-3", "ch-3"},
		{"unknown pair falls through", protocol.MessageEvent{PairID: "p-x"}, "channel:ch-4", "ch-4"},
		{"unresolvable", protocol.MessageEvent{}, "user:u-1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.resolveChannelID(tt.msg, tt.wsChannel); got != tt.want {
				t.Fatalf("resolveChannelID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageParts(t *testing.T) {
	nested := protocol.MessageEvent{
		Text:     "flat",
		MediaURL: "/flat.jpg",
		Content:  &protocol.MessageContent{ContentType: "image", Text: "nested", MediaURL: "/nested.jpg", Via: "mobile"},
	}
	ct, text, via, mediaURL := messageParts(nested)
	if ct != "image" || text != "nested" || via != "mobile" || mediaURL != "/nested.jpg" {
		t.Fatalf("nested parts = %q %q %q %q", ct, text, via, mediaURL)
	}

	flat := protocol.MessageEvent{Text: "just text"}
	ct, text, _, _ = messageParts(flat)
	if ct != "text" || text != "just text" {
		t.Fatalf("flat parts = %q %q", ct, text)
	}

	bareMedia := protocol.MessageEvent{MediaURL: "/m.jpg"}
	if ct, _, _, _ = messageParts(bareMedia); ct != "image" {
		t.Fatalf("bare media content type = %q", ct)
	}
}

// wristServer is a minimal in-process Wrist server: REST endpoints plus a
// WebSocket handler that authenticates, waits for the channel subscription,
// and pushes the given frames in order. The returned counter tracks accepted
// WebSocket connections.
func wristServer(t *testing.T, pushPayloads ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var wsConns atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(protocol.Identity{UserID: "bot-1", DisplayName: "Claw"})
	})
	mux.HandleFunc("/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"conversations": []protocol.Conversation{
				{Type: "pair", ChannelID: "ch-1", PairID: "p-1"},
			},
		})
	})
	mux.HandleFunc("/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		wsConns.Add(1)
		defer c.CloseNow()
		ctx := r.Context()

		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var auth map[string]any
		if json.Unmarshal(data, &auth) != nil || auth["type"] != "auth" {
			return
		}
		if c.Write(ctx, websocket.MessageText, []byte(`{"type":"authenticated"}`)) != nil {
			return
		}

		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			var frame map[string]any
			if json.Unmarshal(data, &frame) != nil {
				continue
			}
			switch frame["type"] {
			case "subscribe":
				if frame["channel"] == "channel:ch-1" {
					for _, payload := range pushPayloads {
						if c.Write(ctx, websocket.MessageText, []byte(payload)) != nil {
							return
						}
					}
				}
			case "ping":
				if c.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`)) != nil {
					return
				}
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &wsConns
}

// TestMonitorSessionFlow runs the full connect → auth → subscribe → message →
// dispatch path against an in-process server.
func TestMonitorSessionFlow(t *testing.T) {
	push := `{"type":"message:new","channel":"channel:ch-1","payload":{` +
		`"message_id":"ws-m-1","channel_id":"ch-1","author_id":"owner-1",` +
		`"payload":{"content_type":"text","text":"hello over ws"}}}`
	srv, _ := wristServer(t, push)

	account := testAccount()
	account.ServerURL = srv.URL
	h := newStubHost()
	m := newTestMonitor(t, account, h)
	m.haveIdentity = false // force the /v1/me round trip

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(h.dispatched()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	d := h.dispatched()
	if len(d) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(d))
	}
	if d[0].BodyForAgent != "hello over ws" || d[0].ChannelID != "ch-1" {
		t.Fatalf("dispatch = %+v", d[0])
	}
	if d[0].SessionKey != "agent:wristclaw:direct:ch:ch-1" {
		t.Fatalf("session key = %q", d[0].SessionKey)
	}

	m.Stop()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if snap := m.Status(); snap.Running {
		t.Fatal("status should report stopped")
	}
}

// TestMonitorDropsUnparseableFrame pushes a garbage frame ahead of a valid
// message on the same connection: the frame must be dropped without a
// reconnect, and the message behind it must still dispatch.
func TestMonitorDropsUnparseableFrame(t *testing.T) {
	push := `{"type":"message:new","channel":"channel:ch-1","payload":{` +
		`"message_id":"ws-m-2","channel_id":"ch-1","author_id":"owner-1",` +
		`"payload":{"content_type":"text","text":"after the garbage"}}}`
	srv, wsConns := wristServer(t, `{{{ not json`, push)

	account := testAccount()
	account.ServerURL = srv.URL
	h := newStubHost()
	m := newTestMonitor(t, account, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(h.dispatched()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	d := h.dispatched()
	if len(d) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(d))
	}
	if d[0].BodyForAgent != "after the garbage" {
		t.Fatalf("body = %q", d[0].BodyForAgent)
	}
	if n := wsConns.Load(); n != 1 {
		t.Fatalf("connections = %d, want 1 (bad frame must not reconnect)", n)
	}

	m.Stop()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

// TestMonitorRefusesCleartextRemote verifies the ws:// loopback guard is
// enforced at startup.
func TestMonitorRefusesCleartextRemote(t *testing.T) {
	account := testAccount()
	account.ServerURL = "http://wrist.example"
	h := newStubHost()
	m := newTestMonitor(t, account, h)

	if err := m.Run(context.Background()); err == nil {
		t.Fatal("Run should refuse cleartext ws to a remote host")
	}
}

// TestCatchUpReplaysMissed fetches messages after the last seen id, skips
// echoes, and feeds the rest through the pipeline.
func TestCatchUpReplaysMissed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/channels/ch-1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") != "m-0" {
			t.Errorf("after = %q, want m-0", r.URL.Query().Get("after"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []protocol.MessageEvent{
				{MessageID: "m-1", AuthorID: "owner-1",
					Content: &protocol.MessageContent{ContentType: "text", Text: "missed one"}},
				{MessageID: "m-2", AuthorID: "owner-1",
					Content: &protocol.MessageContent{ContentType: "text", Text: "own echo", Via: "openclaw"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	account := testAccount()
	account.ServerURL = srv.URL
	h := newStubHost()
	m := newTestMonitor(t, account, h)
	m.lastSeen["ch-1"] = "m-0"

	m.runCatchUp(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for len(h.dispatched()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	d := h.dispatched()
	if len(d) != 1 {
		t.Fatalf("dispatches = %d, want 1 (echo skipped)", len(d))
	}
	if d[0].BodyForAgent != "missed one" {
		t.Fatalf("body = %q", d[0].BodyForAgent)
	}

	m.mu.Lock()
	last := m.lastSeen["ch-1"]
	m.mu.Unlock()
	if last != "m-2" {
		t.Fatalf("lastSeen = %q, want m-2", last)
	}
}

// TestCatchUpDoesNotRewindLiveCursor advances lastSeen through a live event
// while the replay fetch is in flight and verifies the replay keeps
// dispatching without rewinding the cursor to an older id.
func TestCatchUpDoesNotRewindLiveCursor(t *testing.T) {
	var mon *Monitor
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/channels/ch-1/messages", func(w http.ResponseWriter, r *http.Request) {
		// Simulate a live message:new racing the replay.
		mon.mu.Lock()
		mon.lastSeen["ch-1"] = "m-live"
		mon.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []protocol.MessageEvent{
				{MessageID: "m-1", AuthorID: "owner-1",
					Content: &protocol.MessageContent{ContentType: "text", Text: "replayed"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	account := testAccount()
	account.ServerURL = srv.URL
	h := newStubHost()
	mon = newTestMonitor(t, account, h)
	mon.lastSeen["ch-1"] = "m-0"

	mon.runCatchUp(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for len(h.dispatched()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := len(h.dispatched()); n != 1 {
		t.Fatalf("dispatches = %d, want 1", n)
	}

	mon.mu.Lock()
	last := mon.lastSeen["ch-1"]
	mon.mu.Unlock()
	if last != "m-live" {
		t.Fatalf("lastSeen = %q, want m-live (replay must not rewind)", last)
	}
}

// TestDispatchGatedDropsWhenSaturated fills every dispatch slot and verifies
// the next message is dropped instead of queued.
func TestDispatchGatedDropsWhenSaturated(t *testing.T) {
	h := newStubHost()
	m := newTestMonitor(t, testAccount(), h)

	for i := 0; i < cap(m.dispatchSem); i++ {
		m.dispatchSem <- struct{}{}
	}
	m.dispatchGated(context.Background(), textMessage("m-1", "owner-1", "hi"), "ch-1", nil)

	time.Sleep(50 * time.Millisecond)
	if n := len(h.dispatched()); n != 0 {
		t.Fatalf("saturated dispatch still ran: %d", n)
	}
}

// TestHandleEventVoiceUpdate routes a message:update transcription to the
// voice waiter.
func TestHandleEventVoiceUpdate(t *testing.T) {
	h := newStubHost()
	m := newTestMonitor(t, testAccount(), h)
	m.voice.timeout = 2 * time.Second

	done := make(chan string, 1)
	go func() { done <- m.voice.Wait(context.Background(), "m-1") }()
	deadline := time.Now().Add(time.Second)
	for m.voice.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	payload, _ := json.Marshal(protocol.MessageEvent{MessageID: "m-1", Text: "spoken words"})
	m.handleEvent(context.Background(), protocol.Event{Type: protocol.EventMessageUpdate, Payload: payload})

	select {
	case got := <-done:
		if got != "spoken words" {
			t.Fatalf("transcription = %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never resolved")
	}
}

// TestHandleEventVoiceTranscribedLegacy synthesizes a voice message through
// the pipeline when no waiter is pending, pulling the author from the cache.
func TestHandleEventVoiceTranscribedLegacy(t *testing.T) {
	h := newStubHost()
	m := newTestMonitor(t, testAccount(), h)
	m.msgAuthors.Set("m-1", "owner-1")

	payload, _ := json.Marshal(protocol.MessageEvent{MessageID: "m-1", Text: "legacy transcription"})
	m.handleEvent(context.Background(), protocol.Event{
		Type:    protocol.EventVoiceTranscribed,
		Channel: "channel:ch-1",
		Payload: payload,
	})

	deadline := time.Now().Add(2 * time.Second)
	for len(h.dispatched()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	d := h.dispatched()
	if len(d) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(d))
	}
	if d[0].BodyForAgent != "legacy transcription" || d[0].SenderID != "owner-1" {
		t.Fatalf("dispatch = %+v", d[0])
	}
}

// TestHandleEventMemberAdded registers the new group locally even without a
// live connection.
func TestHandleEventMemberAdded(t *testing.T) {
	h := newStubHost()
	m := newTestMonitor(t, testAccount(), h)

	payload, _ := json.Marshal(protocol.MemberEvent{ChannelID: "grp-9", UserID: "u-1"})
	m.handleEvent(context.Background(), protocol.Event{Type: protocol.EventMemberAdded, Payload: payload})

	m.mu.Lock()
	isGroup := m.groupChannels["grp-9"]
	m.mu.Unlock()
	if !isGroup {
		t.Fatal("grp-9 should be tracked as a group")
	}
}
