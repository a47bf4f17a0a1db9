// Package commands implements the tinyagi CLI subcommands using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/paths"
	"github.com/tinyagi/tinyagi/internal/store"
)

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "tinyagi",
		Short: "Personal assistant orchestrator: queue, harness, scheduler, channels",
		Long: `tinyagi runs a personal-assistant message pipeline: a file queue with
crash recovery, a generator/verifier/reviser harness with risk-scaled
budgets, a publish gate, a proactive scheduler, and WhatsApp/Discord
channel adapters.

Examples:
  tinyagi serve
  tinyagi harness status
  tinyagi task list
  tinyagi metrics`,
		Version:       version,
		SilenceUsage:  true,
	}

	root.PersistentFlags().Bool("verbose", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newHarnessCmd(),
		newTaskCmd(),
		newMemoryCmd(),
		newBrowserCmd(),
		newPermissionCmd(),
		newToolsCmd(),
		newSkillsCmd(),
		newMetricsCmd(),
	)

	return root
}

// newLogger builds the process-wide slog.Logger, text-formatted to stderr
// so command output on stdout stays machine-parseable.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openHome resolves the state home and opens the relational repository at
// its harness db path.
func openHome() (*paths.Home, *store.Store, error) {
	home, err := paths.Resolve()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve state home: %w", err)
	}
	s, err := store.Open(store.Config{Path: home.HarnessDB, ForeignKeys: true})
	if err != nil {
		return nil, nil, fmt.Errorf("open repository: %w", err)
	}
	return home, s, nil
}

// loadSettings prefers a hand-authored settings.yaml next to settings.json,
// if present, falling back to the canonical JSON file Save always writes.
func loadSettings(home *paths.Home) (*config.Config, error) {
	yamlPath := strings.TrimSuffix(home.SettingsFile, filepath.Ext(home.SettingsFile)) + ".yaml"
	if _, err := os.Stat(yamlPath); err == nil {
		return config.Load(yamlPath)
	}
	return config.Load(home.SettingsFile)
}
