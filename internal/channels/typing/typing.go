// Package typing drives the typing-status heartbeat a channel shows while the
// agent is working: "thinking" until the first reply chunk lands, then a
// single transition to "typing", then stopped.
package typing

import (
	"sync"
	"time"
)

// Status values re-sent by the heartbeat.
const (
	StatusThinking = "thinking"
	StatusTyping   = "typing"
	StatusStopped  = "stopped"
)

const defaultKeepalive = 3500 * time.Millisecond

// Options configures a Controller.
type Options struct {
	// Keepalive is the heartbeat interval (default 3.5s).
	Keepalive time.Duration

	// Send delivers the current status to the channel. Errors are the
	// callback's to log; the controller never retries.
	Send func(status string)
}

// Controller owns one typing heartbeat. All methods are safe for concurrent
// use; Stop is idempotent.
type Controller struct {
	mu      sync.Mutex
	status  string
	ticker  *time.Ticker
	done    chan struct{}
	stopped bool
	send    func(status string)
}

// Start creates a controller in the "thinking" state, sends the initial
// status, and begins the heartbeat.
func Start(opts Options) *Controller {
	keepalive := opts.Keepalive
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	send := opts.Send
	if send == nil {
		send = func(string) {}
	}

	c := &Controller{
		status: StatusThinking,
		ticker: time.NewTicker(keepalive),
		done:   make(chan struct{}),
		send:   send,
	}
	c.send(StatusThinking)
	go c.loop()
	return c
}

func (c *Controller) loop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.ticker.C:
			c.mu.Lock()
			status := c.status
			stopped := c.stopped
			c.mu.Unlock()
			if !stopped {
				c.send(status)
			}
		}
	}
}

// MarkTyping performs the one thinking → typing transition: the new status is
// sent once and the heartbeat stops. Later calls are no-ops.
func (c *Controller) MarkTyping() {
	c.mu.Lock()
	if c.stopped || c.status == StatusTyping {
		c.mu.Unlock()
		return
	}
	c.status = StatusTyping
	c.mu.Unlock()

	c.send(StatusTyping)
	c.Stop()
}

// Stop cancels the heartbeat. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	c.ticker.Stop()
	close(c.done)
}

// StopAndClear cancels the heartbeat and reports "stopped" to the channel.
func (c *Controller) StopAndClear() {
	c.mu.Lock()
	alreadyStopped := c.stopped
	c.mu.Unlock()

	c.Stop()
	if !alreadyStopped {
		c.send(StatusStopped)
	}
}
