package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/bridgebot/internal/backend"
	"github.com/user/bridgebot/internal/dispatch"
	"github.com/user/bridgebot/internal/engine"
	"github.com/user/bridgebot/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("no telegram token configured (set TELEGRAM_BOT_TOKEN or telegram.token)")
	}

	client := backend.New(backend.Config{
		BaseURL:     cfg.Backend.BaseURL,
		APIKey:      cfg.Backend.APIKey,
		IdleTimeout: time.Duration(cfg.Backend.IdleTimeoutSecs) * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup-fatal checks: an unreachable backend or unresolvable agent
	// identity means nothing downstream can work.
	if err := client.Probe(ctx); err != nil {
		return fmt.Errorf("backend probe: %w", err)
	}
	agentAddress, err := client.AgentIdentity(ctx)
	if err != nil {
		return fmt.Errorf("resolve agent identity: %w", err)
	}
	slog.Info("backend ready", "base_url", cfg.Backend.BaseURL, "agent_address", agentAddress)

	source, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		APIEndpoint:  cfg.Telegram.APIEndpoint,
		RegistryFile: filepath.Join(cfg.DataDir, "chats.json"),
	})
	if err != nil {
		return fmt.Errorf("connect messaging transport: %w", err)
	}

	eng, err := engine.New(source, client, dispatch.New(), engine.Config{
		AgentAddress:      agentAddress,
		Greeting:          cfg.Discovery.Greeting,
		DiscoveryInterval: time.Duration(cfg.Discovery.IntervalSecs) * time.Second,
		StateFile:         cfg.Discovery.StateFile,
		MaxAttempts:       cfg.Retry.MaxAttempts,
		RetryDelay:        time.Duration(cfg.Retry.DelaySecs) * time.Second,
		Model:             cfg.Backend.Model,
		MaxInputTokens:    cfg.Backend.MaxInputTokens,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	slog.Info("bridgebot started",
		"log_level", cfg.LogLevel,
		"discovery_interval", cfg.Discovery.IntervalSecs,
		"retry_max_attempts", cfg.Retry.MaxAttempts,
	)

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("engine stopped: %w", err)
	}
	slog.Info("shutting down")
	return nil
}
