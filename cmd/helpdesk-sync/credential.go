package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/helpdesk-sync/internal/credential"
	"github.com/nhle/helpdesk-sync/internal/model"
	"github.com/nhle/helpdesk-sync/internal/theme"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage the API token kept in the system keyring",
	Long: `The token is stored under "<domain>/<user>" and is used when the
config file sets neither password nor api_token.`,
}

var credentialSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Prompt for an API token and store it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := credentialConfig()
		if err != nil {
			return err
		}

		var token string
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("API token").
					Description(fmt.Sprintf("for %s on %s", cfg.User, cfg.BaseURL())).
					EchoMode(huh.EchoModePassword).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("token must not be empty")
						}
						return nil
					}).
					Value(&token),
			),
		).Run()
		if err != nil {
			return err
		}

		if err := credential.Set(cfg.CredentialKey(), strings.TrimSpace(token)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render("stored"), cfg.CredentialKey())
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := credentialConfig()
		if err != nil {
			return err
		}

		if err := credential.Delete(cfg.CredentialKey()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render("deleted"), cfg.CredentialKey())
		return nil
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd, credentialDeleteCmd)
}

// credentialConfig loads the config without validating credentials, since
// managing them is the point of the command.
func credentialConfig() (*model.Config, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	if cfg.Domain == "" || cfg.User == "" {
		return nil, errors.New("domain and user must be configured")
	}
	return cfg, nil
}
