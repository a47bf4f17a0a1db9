package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/app"
	"github.com/tinyagi/tinyagi/internal/browser"
	"github.com/tinyagi/tinyagi/internal/paths"
)

// newBrowserCmd groups commands over browser sessions, tabs, and the
// payment-risk approval queue described in spec.md §4.I.
func newBrowserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browser",
		Short: "Inspect browser sessions, tabs, and approvals",
	}
	cmd.AddCommand(
		newBrowserSessionsCmd(),
		newBrowserTabsCmd(),
		newBrowserAttachCmd(),
		newBrowserApproveCmd(),
		newBrowserDenyCmd(),
		newBrowserApprovalsCmd(),
		newBrowserReplayCmd(),
	)
	return cmd
}

func newBrowserSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded browser sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.ListBrowserSessions()
			if err != nil {
				return fmt.Errorf("list browser sessions: %w", err)
			}
			if len(rows) == 0 {
				fmt.Println("no browser sessions yet")
				return nil
			}
			for _, r := range rows {
				fmt.Printf("%-36s run=%-36s %s:%d %s\n", r.SessionID, r.RunID, r.Host, r.Port, r.Status)
			}
			return nil
		},
	}
}

func newBrowserTabsCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "List browser tabs, optionally filtered to one session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.ListBrowserTabs(sessionID)
			if err != nil {
				return fmt.Errorf("list browser tabs: %w", err)
			}
			if len(rows) == 0 {
				fmt.Println("no browser tabs yet")
				return nil
			}
			for _, r := range rows {
				fmt.Printf("%-36s session=%-36s run=%-36s %s\n", r.TabID, r.SessionID, r.RunID, r.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "restrict to one sessionId")
	return cmd
}

func newBrowserAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <runId>",
		Short: "Resolve (or launch) the shared browser session and print where it is listening",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := paths.Resolve()
			if err != nil {
				return fmt.Errorf("resolve state home: %w", err)
			}
			cfg, err := loadSettings(home)
			if err != nil {
				return err
			}
			if !cfg.Harness.Browser.Enabled {
				return fmt.Errorf("harness.browser.enabled is false in settings")
			}

			a, err := app.New(home, cfg, newLogger(cmd))
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer a.Close()

			sess, err := a.AttachSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("attach browser session: %w", err)
			}
			fmt.Printf("attached session %s\n", sess)
			return nil
		},
	}
}

func newBrowserApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <requestId>",
		Short: "Approve a pending payment-risk browser action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decideBrowserApproval(args[0], "approved")
		},
	}
}

func newBrowserDenyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deny <requestId>",
		Short: "Deny a pending payment-risk browser action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decideBrowserApproval(args[0], "denied")
		},
	}
}

func decideBrowserApproval(requestID, status string) error {
	_, s, err := openHome()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DecideBrowserApproval(requestID, status); err != nil {
		return fmt.Errorf("decide browser approval: %w", err)
	}
	fmt.Printf("%s: %s\n", requestID, status)
	return nil
}

func newBrowserApprovalsCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "List browser approval requests, optionally filtered to one user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.ListBrowserApprovals(userID)
			if err != nil {
				return fmt.Errorf("list browser approvals: %w", err)
			}
			if len(rows) == 0 {
				fmt.Println("no browser approval requests")
				return nil
			}
			for _, r := range rows {
				fmt.Printf("%-36s run=%-36s action=%-36s %s\n", r.RequestID, r.RunID, r.ActionID, r.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "restrict to runs owned by one userId")
	return cmd
}

func newBrowserReplayCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "replay <runId>",
		Short: "Re-execute the most recent tab's recorded trace for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := paths.Resolve()
			if err != nil {
				return fmt.Errorf("resolve state home: %w", err)
			}
			cfg, err := loadSettings(home)
			if err != nil {
				return err
			}

			a, err := app.New(home, cfg, newLogger(cmd))
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer a.Close()

			result, err := a.ReplayRun(cmd.Context(), args[0], baseURL)
			if errors.Is(err, browser.ErrNoReplayableTrace) {
				fmt.Println(browser.ErrNoReplayableTrace.Error())
				return nil
			}
			if err != nil {
				return fmt.Errorf("replay run: %w", err)
			}
			fmt.Printf("outcome: %s\n", result.Outcome)
			if result.Guidance != "" {
				fmt.Printf("guidance: %s\n", result.Guidance)
			}
			for _, line := range result.ExtractedLines {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "URL to navigate to before replaying the recorded steps")
	return cmd
}
