// Package wristclaw implements the inbound gateway core of the wristclaw
// messaging-channel plugin: one long-lived monitor per account that keeps an
// authenticated WebSocket to the Wrist server, subscribes to every
// conversation, and turns inbound events into host dispatch requests after
// running them through the echo/dedup/access/mention/rate-limit gates.
package wristclaw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/wristclaw/internal/channels"
	"github.com/nextlevelbuilder/wristclaw/internal/channels/wristclaw/protocol"
	"github.com/nextlevelbuilder/wristclaw/internal/config"
	"github.com/nextlevelbuilder/wristclaw/internal/containers"
	"github.com/nextlevelbuilder/wristclaw/internal/host"
)

const (
	pingInterval     = 30 * time.Second
	pongTimeout      = 10 * time.Second
	initialBackoff   = 1000 * time.Millisecond
	maxBackoff       = 60 * time.Second
	rateCleanupEvery = 5 * time.Minute

	messageAuthorCacheCap = 500
	processedSetCap       = 1000
	processedEvictBatch   = processedSetCap / 5 // 20% batch eviction

	eventMailboxSize = 64
)

// errStopped signals an operator-initiated stop, as opposed to a dropped
// connection.
var errStopped = errors.New("wristclaw: monitor stopped")

// Monitor is the per-account session manager. A single goroutine owns the
// session loop; pipeline workers run concurrently, gated by dispatchSem, and
// every map they share with the loop sits behind mu.
type Monitor struct {
	account config.AccountConfig
	client  *protocol.Client
	runtime host.Runtime
	status  *statusSink

	mu            sync.Mutex
	conn          *protocol.WSConn
	identity      protocol.Identity
	haveIdentity  bool
	firstConnect  bool // true once the first authenticated transition completed
	pairToChannel map[string]string
	groupChannels map[string]bool
	lastSeen      map[string]string // channelId → last observed messageId
	msgAuthors    *containers.BoundedMap[string, string]
	processed     *containers.BoundedSet[string]

	dispatchSem chan struct{}
	limiter     *channels.SenderRateLimiter
	media       *mediaGroupBuffer
	voice       *voiceWaiter
	history     *historyBuffer
	catchupRate *rate.Limiter

	backoff  time.Duration
	runCtx   context.Context // set by Run; gates timer-driven dispatches
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor builds a monitor for one account. The account must already be
// normalized.
func NewMonitor(account config.AccountConfig, runtime host.Runtime) (*Monitor, error) {
	client, err := protocol.NewClient(account.ServerURL, account.APIKey)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		account:       account,
		client:        client,
		runtime:       runtime,
		status:        newStatusSink(account.ID),
		pairToChannel: make(map[string]string),
		groupChannels: make(map[string]bool),
		lastSeen:      make(map[string]string),
		msgAuthors:    containers.NewBoundedMap[string, string](messageAuthorCacheCap),
		processed:     containers.NewBoundedSet[string](processedSetCap),
		dispatchSem:   make(chan struct{}, account.MaxConcurrent),
		limiter:       channels.NewSenderRateLimiter(account.RateLimitMax, account.RateLimitWindow()),
		voice:         newVoiceWaiter(),
		history:       newHistoryBuffer(account.HistoryLimit),
		catchupRate:   rate.NewLimiter(rate.Limit(5), 5), // 5 catch-up requests/s per account
		backoff:       initialBackoff,
		stopCh:        make(chan struct{}),
	}
	m.media = newMediaGroupBuffer(m.flushMediaGroup, func(u string) bool {
		return isSafeMediaURL(u, m.client.Hostname())
	})
	return m, nil
}

// Status returns the monitor's health snapshot.
func (m *Monitor) Status() StatusSnapshot { return m.status.Snapshot() }

// Run connects and processes events until ctx is cancelled or Stop is called,
// reconnecting with exponential backoff on connection loss. A cleartext
// ws:// URL to a non-loopback host is a fatal configuration error.
func (m *Monitor) Run(ctx context.Context) error {
	wsURL := m.client.WebSocketURL()
	if err := validateWSURL(wsURL); err != nil {
		slog.Error("wristclaw: refusing to start", "account", m.account.ID, "error", err)
		m.status.MarkStop(err)
		return err
	}

	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	m.status.MarkStart()
	slog.Info("wristclaw monitor starting", "account", m.account.ID, "server", m.client.BaseURL().Host)

	for {
		err := m.runSession(ctx, wsURL)
		if errors.Is(err, errStopped) || ctx.Err() != nil {
			m.shutdown(ctx)
			m.status.MarkStop(nil)
			slog.Info("wristclaw monitor stopped", "account", m.account.ID)
			return nil
		}
		if err != nil {
			m.status.MarkError(err)
		}

		delay := m.nextBackoff()
		slog.Warn("wristclaw disconnected, reconnecting",
			"account", m.account.ID, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			m.shutdown(ctx)
			m.status.MarkStop(nil)
			return nil
		case <-m.stopCh:
			m.shutdown(ctx)
			m.status.MarkStop(nil)
			return nil
		case <-time.After(delay):
		}
	}
}

// Stop requests a graceful shutdown. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// runSession owns one WebSocket connection: dial, auth, then the mailbox loop
// merging reader frames and timer ticks until the connection dies.
func (m *Monitor) runSession(ctx context.Context, wsURL string) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(sctx, 15*time.Second)
	conn, err := protocol.DialWS(dialCtx, wsURL, nil)
	dialCancel()
	if err != nil {
		return err
	}
	m.setConn(conn)
	defer func() {
		m.setConn(nil)
		conn.Close(1000, "")
	}()

	if err := conn.WriteJSON(sctx, protocol.NewAuthFrame(m.account.APIKey)); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	events := make(chan protocol.Event, eventMailboxSize)
	readErr := make(chan error, 1)
	go func() {
		for {
			ev, rerr := conn.ReadEvent(sctx)
			if errors.Is(rerr, protocol.ErrBadFrame) {
				// Garbage on a healthy connection; dropping the frame beats a
				// reconnect that can lose everything pushed in the meantime.
				slog.Error("wristclaw: dropping unparseable frame",
					"account", m.account.ID, "error", rerr)
				continue
			}
			if rerr != nil {
				readErr <- rerr
				return
			}
			select {
			case events <- ev:
			case <-sctx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	cleanupTicker := time.NewTicker(rateCleanupEvery)
	defer cleanupTicker.Stop()

	// pongDeadline is armed by each ping and disarmed by the pong event.
	var pongDeadline *time.Timer
	var pongC <-chan time.Time
	defer func() {
		if pongDeadline != nil {
			pongDeadline.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return errStopped
		case <-m.stopCh:
			return errStopped

		case rerr := <-readErr:
			if code := protocol.CloseStatus(rerr); code != -1 {
				return fmt.Errorf("connection closed (code %d): %w", code, rerr)
			}
			return rerr

		case <-pingTicker.C:
			if werr := conn.WriteJSON(sctx, protocol.PingFrame{Type: "ping"}); werr != nil {
				slog.Debug("wristclaw ping write failed", "account", m.account.ID, "error", werr)
				continue
			}
			if pongDeadline == nil {
				pongDeadline = time.NewTimer(pongTimeout)
			} else {
				pongDeadline.Reset(pongTimeout)
			}
			pongC = pongDeadline.C

		case <-pongC:
			slog.Warn("wristclaw pong timeout, forcing reconnect", "account", m.account.ID)
			conn.Close(1006, "pong timeout")
			pongC = nil

		case <-cleanupTicker.C:
			m.limiter.Cleanup()

		case ev := <-events:
			switch ev.Type {
			case protocol.EventPong:
				if pongDeadline != nil {
					pongDeadline.Stop()
				}
				pongC = nil
			case protocol.EventAuthenticated:
				m.resetBackoff()
				if aerr := m.onAuthenticated(sctx); aerr != nil {
					slog.Error("wristclaw session setup failed", "account", m.account.ID, "error", aerr)
					return aerr
				}
			default:
				m.handleEvent(sctx, ev)
			}
		}
	}
}

// shutdown flushes pending media groups through the pipeline, resolves
// pending voice waiters to empty, and waits for in-flight dispatches.
func (m *Monitor) shutdown(ctx context.Context) {
	m.media.Dispose()
	m.voice.Dispose()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		slog.Warn("wristclaw shutdown timed out waiting for dispatches", "account", m.account.ID)
	case <-ctx.Done():
	}
}

func (m *Monitor) setConn(conn *protocol.WSConn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Monitor) currentConn() *protocol.WSConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

func (m *Monitor) runContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runCtx != nil {
		return m.runCtx
	}
	return context.Background()
}

func (m *Monitor) nextBackoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.backoff
	m.backoff = min(m.backoff*2, maxBackoff)
	return d
}

func (m *Monitor) resetBackoff() {
	m.mu.Lock()
	m.backoff = initialBackoff
	m.mu.Unlock()
}

// validateWSURL refuses cleartext WebSocket URLs to non-loopback hosts: the
// API key would cross the wire unencrypted.
func validateWSURL(wsURL string) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("invalid websocket url %q: %w", wsURL, err)
	}
	if u.Scheme != "ws" {
		return nil
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return nil
	}
	return fmt.Errorf("refusing cleartext ws:// to non-loopback host %q (use https server_url)", u.Host)
}
