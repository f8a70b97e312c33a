package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/bridgebot/internal/backend"
)

func init() {
	rootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check backend connectivity and print the agent identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		client := backend.New(backend.Config{
			BaseURL:     cfg.Backend.BaseURL,
			APIKey:      cfg.Backend.APIKey,
			IdleTimeout: time.Duration(cfg.Backend.IdleTimeoutSecs) * time.Second,
		})

		if err := client.Probe(cmd.Context()); err != nil {
			return fmt.Errorf("backend probe: %w", err)
		}
		fmt.Fprintf(os.Stdout, "backend reachable at %s\n", cfg.Backend.BaseURL)

		address, err := client.AgentIdentity(cmd.Context())
		if err != nil {
			return fmt.Errorf("resolve agent identity: %w", err)
		}
		fmt.Fprintf(os.Stdout, "agent address: %s\n", address)
		return nil
	},
}
