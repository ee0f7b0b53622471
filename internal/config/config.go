// Package config loads the wristclaw plugin configuration: one or more Wrist
// accounts plus their access policies. The file format is JSON5 so operators
// can comment their config.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the wristclaw plugin.
type Config struct {
	LogLevel string          `json:"log_level,omitempty"` // "debug", "info" (default), "warn", "error"
	Accounts []AccountConfig `json:"accounts"`
}

// AccountConfig describes one Wrist account the plugin monitors.
type AccountConfig struct {
	ID        string `json:"id"`         // account identifier; "default" may omit itself from session keys
	ServerURL string `json:"server_url"` // http(s) base URL of the Wrist server
	APIKey    string `json:"api_key"`

	OwnerUserID string `json:"owner_user_id,omitempty"` // always allowed, command-authorized

	DMPolicy       string              `json:"dm_policy,omitempty"`        // "open" (default), "allowlist", "disabled"
	AllowFrom      FlexibleStringSlice `json:"allow_from,omitempty"`       // DM allowlist; ids or "*"
	GroupPolicy    string              `json:"group_policy,omitempty"`     // "mention" (default), "open", "disabled"
	GroupAllowFrom FlexibleStringSlice `json:"group_allow_from,omitempty"` // group sender allowlist

	MentionNames FlexibleStringSlice `json:"mention_names,omitempty"` // lowercase names the bot answers to
	HistoryLimit int                 `json:"history_limit,omitempty"` // buffered group messages for context (default 20, 0=default)

	SecretaryAgentID string `json:"secretary_agent_id,omitempty"` // visitor traffic routes here when set

	// VoiceFallback re-enables the legacy placeholder body for voice messages
	// whose transcription never arrives. Default: drop the message.
	VoiceFallback bool `json:"voice_fallback,omitempty"`

	RateLimitMax       int `json:"rate_limit_max,omitempty"`        // messages per sender per window (default 10)
	RateLimitWindowSec int `json:"rate_limit_window_sec,omitempty"` // window seconds (default 60)
	MaxConcurrent      int `json:"max_concurrent,omitempty"`        // parallel dispatches (default 3)
}

// Defaults applied by Normalize.
const (
	DefaultHistoryLimit  = 20
	DefaultRateLimitMax  = 10
	DefaultMaxConcurrent = 3
	DefaultRateWindow    = 60 * time.Second
)

// Normalize fills zero fields with defaults and validates required ones.
func (a *AccountConfig) Normalize() error {
	if a.ID == "" {
		a.ID = "default"
	}
	if a.ServerURL == "" {
		return fmt.Errorf("account %q: server_url is required", a.ID)
	}
	if a.APIKey == "" {
		return fmt.Errorf("account %q: api_key is required", a.ID)
	}
	if a.DMPolicy == "" {
		a.DMPolicy = "open"
	}
	if a.GroupPolicy == "" {
		a.GroupPolicy = "mention"
	}
	if a.HistoryLimit <= 0 {
		a.HistoryLimit = DefaultHistoryLimit
	}
	if a.RateLimitMax <= 0 {
		a.RateLimitMax = DefaultRateLimitMax
	}
	if a.RateLimitWindowSec <= 0 {
		a.RateLimitWindowSec = int(DefaultRateWindow / time.Second)
	}
	if a.MaxConcurrent <= 0 {
		a.MaxConcurrent = DefaultMaxConcurrent
	}
	return nil
}

// RateLimitWindow returns the configured window as a duration.
func (a *AccountConfig) RateLimitWindow() time.Duration {
	return time.Duration(a.RateLimitWindowSec) * time.Second
}

// Default returns a Config with sensible defaults and no accounts.
func Default() *Config {
	return &Config{LogLevel: "info"}
}
