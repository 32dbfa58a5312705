// Command codecontinued is the codecontinue daemon.
// It listens on a Unix domain socket for requests from editor clients and
// answers with inline code completions.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	codecontinue "github.com/Paranoid-AF/codecontinue"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// reloadDebounce coalesces the burst of events a single save produces.
const reloadDebounce = 100 * time.Millisecond

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "log every request and response to stderr")
	flag.Parse()

	if *showVersion {
		fmt.Println("codecontinued", Version)
		os.Exit(0)
	}

	cfg, err := codecontinue.LoadConfig()
	if err != nil {
		cfg = codecontinue.DefaultConfig()
	}
	logger := codecontinue.SetupLogging(os.Stderr, *verbose || cfg.Logging.EnableLogging)
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
	}

	socketPath := resolveSocketPath()

	slog.Info("starting", "socket", socketPath)

	srv, err := NewServer(socketPath)
	if err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	srv.OnReload(func(cfg *codecontinue.Config) {
		logger.SetLevel(codecontinue.LogLevel(*verbose || cfg.Logging.EnableLogging))
	})

	watcher, err := NewConfigWatcher(codecontinue.ConfigPath(), reloadDebounce, func() {
		srv.Reload()
	})
	if err != nil {
		slog.Warn("config hot-reload disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("shutting down")
		if watcher != nil {
			watcher.Stop()
		}
		srv.Close()
		os.Exit(0)
	}()

	slog.Info("ready")
	if err := srv.Serve(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func resolveSocketPath() string {
	if path := os.Getenv("CODECONTINUE_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/codecontinue.sock"
	}
	return fmt.Sprintf("/tmp/codecontinue-%d.sock", os.Getuid())
}
