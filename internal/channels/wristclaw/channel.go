package wristclaw

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/wristclaw/internal/config"
	"github.com/nextlevelbuilder/wristclaw/internal/host"
)

// Channel is the wristclaw plugin entry point: one monitor per configured
// account, started and stopped together.
type Channel struct {
	runtime host.Runtime

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewChannel builds a monitor for every account in cfg. Accounts must already
// be normalized; duplicate ids were rejected at load time.
func NewChannel(cfg *config.Config, runtime host.Runtime) (*Channel, error) {
	c := &Channel{runtime: runtime, monitors: make(map[string]*Monitor, len(cfg.Accounts))}
	for _, account := range cfg.Accounts {
		m, err := NewMonitor(account, runtime)
		if err != nil {
			return nil, fmt.Errorf("wristclaw: account %q: %w", account.ID, err)
		}
		c.monitors[account.ID] = m
	}
	return c, nil
}

// Run starts every account monitor and blocks until all have stopped. A fatal
// error in one monitor (bad config, refused URL) stops the rest.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	monitors := make([]*Monitor, 0, len(c.monitors))
	for _, m := range c.monitors {
		monitors = append(monitors, m)
	}
	c.mu.Unlock()

	if len(monitors) == 0 {
		return fmt.Errorf("wristclaw: no accounts configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range monitors {
		m := m
		g.Go(func() error { return m.Run(gctx) })
	}
	return g.Wait()
}

// Stop requests a graceful shutdown of every monitor.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.monitors {
		m.Stop()
	}
}

// Status returns the health snapshot of every account monitor.
func (c *Channel) Status() []StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StatusSnapshot, 0, len(c.monitors))
	for _, m := range c.monitors {
		out = append(out, m.Status())
	}
	return out
}
