// Package cmd implements the wristclaw CLI: run the account monitors, check
// server health, print the version.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/wristclaw/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "wristclaw",
	Short: "wristclaw — Wrist channel monitor for OpenClaw-compatible hosts",
	Long: "wristclaw keeps an authenticated WebSocket to each configured Wrist account,\n" +
		"applies the inbound access policies (echo, dedup, DM/group gates, @mention,\n" +
		"rate limit) and hands accepted messages to the agent runtime.",
	Run: func(cmd *cobra.Command, args []string) {
		runMonitors()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: wristclaw.json or $WRISTCLAW_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(versionCmd())
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("WRISTCLAW_CONFIG"); v != "" {
		return v
	}
	return "wristclaw.json"
}

// setupLogging installs the process slog handler. --verbose wins over the
// configured level.
func setupLogging(configLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(configLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
