package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wristclaw/internal/channels/wristclaw/protocol"
	"github.com/nextlevelbuilder/wristclaw/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and server connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("wristclaw doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, env-only)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if len(cfg.Accounts) == 0 {
		fmt.Println("  No accounts configured")
		return
	}

	fmt.Println()
	fmt.Println("  Accounts:")
	for _, account := range cfg.Accounts {
		fmt.Printf("    %-12s %s\n", account.ID+":", account.ServerURL)
		fmt.Printf("      %-10s dm=%s group=%s rate=%d/%ds\n", "Policies:",
			account.DMPolicy, account.GroupPolicy, account.RateLimitMax, account.RateLimitWindowSec)

		client, err := protocol.NewClient(account.ServerURL, account.APIKey)
		if err != nil {
			fmt.Printf("      %-10s INVALID (%s)\n", "Server:", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		health, err := client.CheckHealth(ctx)
		if err != nil {
			fmt.Printf("      %-10s UNREACHABLE (%s)\n", "Health:", err)
			cancel()
			continue
		}
		fmt.Printf("      %-10s %s (server %s)\n", "Health:", health.Status, health.Version)

		identity, err := client.Me(ctx)
		cancel()
		if err != nil {
			fmt.Printf("      %-10s AUTH FAILED (%s)\n", "Identity:", err)
			continue
		}
		fmt.Printf("      %-10s %s (%s)\n", "Identity:", identity.DisplayName, identity.UserID)
	}
}
