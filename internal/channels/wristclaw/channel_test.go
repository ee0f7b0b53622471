package wristclaw

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/wristclaw/internal/config"
)

func TestNewChannelBuildsMonitors(t *testing.T) {
	cfg := &config.Config{Accounts: []config.AccountConfig{
		{ID: "default", ServerURL: "https://wrist.example", APIKey: "k1"},
		{ID: "work", ServerURL: "https://work.example", APIKey: "k2"},
	}}
	for i := range cfg.Accounts {
		if err := cfg.Accounts[i].Normalize(); err != nil {
			t.Fatalf("normalize: %v", err)
		}
	}

	c, err := NewChannel(cfg, newStubHost().runtime())
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	if got := len(c.Status()); got != 2 {
		t.Fatalf("monitors = %d, want 2", got)
	}
}

func TestNewChannelRejectsBadServerURL(t *testing.T) {
	cfg := &config.Config{Accounts: []config.AccountConfig{
		{ID: "default", ServerURL: "ftp://wrist.example", APIKey: "k"},
	}}
	if _, err := NewChannel(cfg, newStubHost().runtime()); err == nil {
		t.Fatal("non-http server url should fail")
	}
}

func TestChannelRunWithoutAccounts(t *testing.T) {
	c, err := NewChannel(&config.Config{}, newStubHost().runtime())
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("Run with no accounts should error")
	}
}
