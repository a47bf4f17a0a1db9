package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/app"
	"github.com/tinyagi/tinyagi/internal/paths"
)

// newServeCmd creates the daemon command: queue processor, proactive
// scheduler, and every enabled channel adapter, running until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the queue processor, scheduler, and channel adapters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger(cmd)

			home, err := paths.Resolve()
			if err != nil {
				return fmt.Errorf("resolve state home: %w", err)
			}
			cfg, err := loadSettings(home)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}

			a, err := app.New(home, cfg, log)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log.Info("tinyagi running", "state_home", home.Root, "harness_enabled", cfg.Harness.Enabled)
			return a.Run(ctx)
		},
	}
}

