package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, expands ${ENV} references in secret
// fields, and normalizes every account.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Env-only deployments run without a config file.
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnvOverrides()

	seen := make(map[string]bool, len(cfg.Accounts))
	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		acct.APIKey = expandEnvRef(acct.APIKey)
		if err := acct.Normalize(); err != nil {
			return nil, err
		}
		if seen[acct.ID] {
			return nil, fmt.Errorf("duplicate account id %q", acct.ID)
		}
		seen[acct.ID] = true
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WRISTCLAW_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// Single-account deployments can run without a config file at all.
	server := os.Getenv("WRISTCLAW_SERVER_URL")
	apiKey := os.Getenv("WRISTCLAW_API_KEY")
	if server != "" && apiKey != "" && len(c.Accounts) == 0 {
		c.Accounts = append(c.Accounts, AccountConfig{
			ID:          "default",
			ServerURL:   server,
			APIKey:      apiKey,
			OwnerUserID: os.Getenv("WRISTCLAW_OWNER_USER_ID"),
		})
	}
}

// expandEnvRef resolves "${VAR}" values to the named env var; anything else
// passes through untouched so literal keys keep working.
func expandEnvRef(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(v, "${"), "}"))
	}
	return v
}
