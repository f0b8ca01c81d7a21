package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/helpdesk-sync/internal/credential"
	"github.com/nhle/helpdesk-sync/internal/model"
	"github.com/nhle/helpdesk-sync/internal/theme"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "helpdesk-sync",
	Short: "Export helpdesk organizations, users, tickets, comments and topics",
	Long: `helpdesk-sync polls a Zendesk-style helpdesk REST API and emits
normalized, cross-referenced records to the configured sinks.

Configuration is read from ~/.config/helpdesk-sync/config.yaml unless
--config is given. HELPDESK_SYNC_* environment variables override it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the config file")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "store", Title: "Local Store Commands:"},
	)
	rootCmd.AddCommand(runCmd, checkCmd, recordsCmd, runsCmd, credentialCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig reads the config file. With requireAuth it also pulls a
// keyring token when the file has no credential and validates the result.
func loadConfig(requireAuth bool) (*model.Config, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if !requireAuth {
		return cfg, nil
	}

	if err := credential.Resolve(cfg); err != nil && !errors.Is(err, credential.ErrNotFound) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
