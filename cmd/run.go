package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wristclaw/internal/channels/wristclaw"
	"github.com/nextlevelbuilder/wristclaw/internal/config"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the account monitors",
		Run: func(cmd *cobra.Command, args []string) {
			runMonitors()
		},
	}
}

// runMonitors loads the config, starts every account monitor, and restarts
// them when the config file changes. Blocks until SIGINT/SIGTERM.
func runMonitors() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgPath := resolveConfigPath()
	for {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("config load failed", "path", cfgPath, "error", err)
			os.Exit(1)
		}
		setupLogging(cfg.LogLevel)

		channel, err := wristclaw.NewChannel(cfg, newStandaloneRuntime())
		if err != nil {
			slog.Error("channel setup failed", "error", err)
			os.Exit(1)
		}

		runCtx, cancel := context.WithCancel(ctx)
		reload := watchConfig(runCtx, cfgPath)
		errCh := make(chan error, 1)
		go func() { errCh <- channel.Run(runCtx) }()

		select {
		case <-ctx.Done():
			channel.Stop()
			<-errCh
			cancel()
			slog.Info("wristclaw shut down")
			return

		case <-reload:
			slog.Info("config changed, restarting monitors", "path", cfgPath)
			channel.Stop()
			cancel()
			<-errCh

		case err := <-errCh:
			cancel()
			if err != nil {
				slog.Error("monitors exited", "error", err)
				os.Exit(1)
			}
			return
		}
	}
}

// watchConfig emits once when the config file is written, created or renamed.
// Edits are debounced so editors that write in several syscalls trigger a
// single restart.
func watchConfig(ctx context.Context, path string) <-chan struct{} {
	out := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watch unavailable", "error", err)
		return out
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		slog.Warn("config watch failed", "dir", dir, "error", err)
		watcher.Close()
		return out
	}

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		base := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					select {
					case out <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Debug("config watch error", "error", err)
			}
		}
	}()
	return out
}
