package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/paths"
)

// newHarnessCmd groups the commands that inspect and mutate
// harness.{enabled,autonomy} in settings.json.
func newHarnessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harness",
		Short: "Inspect or change harness enablement and autonomy",
	}
	cmd.AddCommand(
		newHarnessStatusCmd(),
		newHarnessEnableCmd(),
		newHarnessDisableCmd(),
		newHarnessAutonomyCmd(),
		newHarnessSecretCmd(),
	)
	return cmd
}

// newHarnessSecretCmd stores or clears a secret (currently just the
// Discord bot token) in the OS keyring rather than settings.json.
func newHarnessSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Store or clear a secret in the OS keyring instead of settings.json",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set-discord-token <token>",
			Short: "Store the Discord bot token in the OS keyring",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.StoreSecret("discord_token", args[0]); err != nil {
					return fmt.Errorf("store secret: %w", err)
				}
				fmt.Println("discord token stored in OS keyring")
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear-discord-token",
			Short: "Remove the Discord bot token from the OS keyring",
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := config.DeleteSecret("discord_token"); err != nil {
					return fmt.Errorf("delete secret: %w", err)
				}
				fmt.Println("discord token removed from OS keyring")
				return nil
			},
		},
	)
	return cmd
}

func newHarnessStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show harness enablement, autonomy, and quiet hours",
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := paths.Resolve()
			if err != nil {
				return fmt.Errorf("resolve state home: %w", err)
			}
			cfg, err := loadSettings(home)
			if err != nil {
				return err
			}
			fmt.Printf("enabled:     %v\n", cfg.Harness.Enabled)
			fmt.Printf("autonomy:    %s\n", cfg.Harness.Autonomy)
			fmt.Printf("quiet hours: %s - %s\n", cfg.Harness.QuietHours.Start, cfg.Harness.QuietHours.End)
			fmt.Printf("digest time: %s\n", cfg.Harness.DigestTime)
			return nil
		},
	}
}

func newHarnessEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Enable the harness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setHarnessEnabled(true)
		},
	}
}

func newHarnessDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the harness (messages still deliver an un-verified agent reply)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setHarnessEnabled(false)
		},
	}
}

func setHarnessEnabled(enabled bool) error {
	home, err := paths.Resolve()
	if err != nil {
		return fmt.Errorf("resolve state home: %w", err)
	}
	cfg, err := loadSettings(home)
	if err != nil {
		return err
	}
	cfg.Harness.Enabled = enabled
	if err := config.Save(home.SettingsFile, cfg); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	fmt.Printf("harness enabled: %v\n", enabled)
	return nil
}

func newHarnessAutonomyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "autonomy [low|normal|strict]",
		Short: "Show or set harness.autonomy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := paths.Resolve()
			if err != nil {
				return fmt.Errorf("resolve state home: %w", err)
			}
			cfg, err := loadSettings(home)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Println(cfg.Harness.Autonomy)
				return nil
			}
			level := args[0]
			if level != "low" && level != "normal" && level != "strict" {
				return fmt.Errorf("autonomy must be low, normal, or strict, got %q", level)
			}
			cfg.Harness.Autonomy = level
			if err := config.Save(home.SettingsFile, cfg); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			fmt.Printf("autonomy set to %s\n", level)
			return nil
		},
	}
}
