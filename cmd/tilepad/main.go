// Command tilepad runs the tile deck hub: the WebSocket control plane for
// devices and plugins plus the asset HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/internal/server"
	"github.com/tilepad/tilepad-server/pkg/config"
	"github.com/tilepad/tilepad-server/pkg/hub"
	"github.com/tilepad/tilepad-server/pkg/hub/store"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `Tilepad - programmable tile deck hub

Usage:
  tilepad <command> [flags]

Commands:
  init     Initialize a sample configuration file
  start    Start the hub server
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/tilepad/config.yaml)
  --force            Force overwrite existing config file (init command only)

Examples:
  # Initialize config file
  tilepad init

  # Start the hub with the default config location
  tilepad start

  # Start with a custom config
  tilepad start --config /etc/tilepad/config.yaml

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: TILEPAD_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    TILEPAD_LOGGING_LEVEL=DEBUG
    TILEPAD_SERVER_PORT=59371
    TILEPAD_PLUGINS_DEV_WATCH=true
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
	case "version", "--version", "-v":
		fmt.Printf("tilepad %s (commit: %s, built: %s)\n", version, commit, date)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/tilepad/config.yaml)")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")

	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	configPath := *configFile
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	if _, err := os.Stat(configPath); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: configuration file already exists: %s\n", configPath)
		fmt.Fprintln(os.Stderr, "Use --force to overwrite it.")
		os.Exit(1)
	}

	if err := config.Save(config.DefaultConfig(), configPath); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the hub with: tilepad start")
}

func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/tilepad/config.yaml)")

	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := hub.New(&hub.Options{
		Database:   &store.Config{Path: cfg.Database.Path},
		PluginDirs: []string{cfg.Plugins.CoreDir, cfg.Plugins.UserDir},
		UploadsDir: cfg.Assets.UploadsDir,
		DevWatch:   cfg.Plugins.DevWatch,
	})
	if err != nil {
		log.Fatalf("Failed to initialize hub: %v", err)
	}
	defer h.Close()

	for _, dir := range []string{cfg.Assets.IconsDir, cfg.Assets.UploadsDir, cfg.Assets.FontsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("cannot create asset directory", "dir", dir, "error", err)
		}
	}

	// A port picked in the UI survives restarts and wins over the config
	// file; until the user picks one the settings row holds 0 and the
	// configured port applies.
	port := cfg.Server.Port
	settings, err := h.Store().GetSettings(ctx)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Port != 0 {
		port = settings.Port
	}

	srv := server.New(server.Config{
		Host:       cfg.Server.Host,
		Port:       port,
		Metrics:    cfg.Metrics.Enabled,
		IconsDir:   cfg.Assets.IconsDir,
		UploadsDir: cfg.Assets.UploadsDir,
		FontsDir:   cfg.Assets.FontsDir,
	}, h)

	logger.Info("Configuration loaded",
		"source", configSource(*configFile),
		"database", filepath.Clean(cfg.Database.Path),
		"plugins", len(h.Plugins().Plugins()))

	go h.Run(ctx)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Hub is running. Press Ctrl+C to stop.", "port", port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			os.Exit(1)
		}
		logger.Info("Hub stopped gracefully")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
		logger.Info("Hub stopped")
	}
}

// configSource describes where the configuration was loaded from.
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.DefaultConfigPath()
	}
	return "defaults"
}
