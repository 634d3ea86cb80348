package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/talksum/talksum/pkg/talksum/config"
)

// newSetupCmd creates the `talksum setup` interactive configuration wizard.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-time configuration",
		Long: `Walk through the initial configuration: Nextcloud server, bot
credentials, trigger word, and timezone. Writes config.yaml and stores
the bot secret in the OS keyring when available.`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()

	var secret string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Nextcloud base URL").
				Placeholder("https://cloud.example.com").
				Value(&cfg.Nextcloud.URL).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("the server URL is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Bot app id").
				Value(&cfg.Nextcloud.AppID),
			huh.NewInput().
				Title("Shared bot secret").
				EchoMode(huh.EchoModePassword).
				Value(&secret),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Trigger word").
				Description("The mention that addresses the bot in a room.").
				Value(&cfg.Bot.Trigger),
			huh.NewInput().
				Title("Timezone").
				Description("Used for all time references in summaries, e.g. Europe/Berlin. Empty = server-local.").
				Value(&cfg.Timezone),
			huh.NewInput().
				Title("Webhook listen address").
				Value(&cfg.Gateway.Address),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if secret != "" {
		if config.KeyringAvailable() {
			if err := config.StoreSecret(secret); err != nil {
				fmt.Printf("Could not store the secret in the OS keyring (%v); writing it to config.yaml instead.\n", err)
				cfg.Nextcloud.Secret = secret
			} else {
				fmt.Println("Bot secret stored in the OS keyring.")
			}
		} else {
			cfg.Nextcloud.Secret = secret
		}
	}

	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = config.DefaultPath
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s. Start the bot with 'talksum serve'.\n", path)
	return nil
}
