package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/helpdesk-sync/internal/theme"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	GroupID: "sync",
	Short:   "Validate the config and helpdesk credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, theme.HeaderStyle.Render("helpdesk-sync check"))
		fmt.Fprintln(out, theme.KeyValue("config", configPath))
		fmt.Fprintln(out, theme.KeyValue("url", cfg.BaseURL()))
		fmt.Fprintln(out, theme.KeyValue("user", cfg.User))

		agent, err := newSource(cfg).ValidateConnection(cmd.Context())
		if err != nil {
			fmt.Fprintln(out, theme.KeyValue("connection", theme.ErrorStyle.Render("failed")))
			return err
		}

		fmt.Fprintln(out, theme.KeyValue("connection", theme.SuccessStyle.Render("ok")))
		fmt.Fprintln(out, theme.KeyValue("agent", agent))
		return nil
	},
}
