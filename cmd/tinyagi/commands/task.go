package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newTaskCmd groups task-run inspection commands.
func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "List or show task runs",
	}
	cmd.AddCommand(newTaskListCmd(), newTaskShowCmd())
	return cmd
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every task run, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns()
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("no task runs yet")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%-40s %-18s %-12s %s\n", r.RunID, r.Status, r.RiskLevel, truncate(r.Objective, 60))
			}
			return nil
		},
	}
}

func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <runId>",
		Short: "Show one task run plus its event trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("no such run: %s", args[0])
			}
			fmt.Printf("run_id:          %s\n", run.RunID)
			fmt.Printf("status:          %s\n", run.Status)
			fmt.Printf("risk_level:      %s\n", run.RiskLevel)
			fmt.Printf("assigned_agent:  %s\n", run.AssignedAgent)
			fmt.Printf("loop_iteration:  %d/%d\n", run.LoopIteration, run.MaxIterations)
			fmt.Printf("objective:       %s\n", run.Objective)
			fmt.Printf("result:          %s\n", run.ResultText)

			events, err := s.ListEvents(run.RunID)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			fmt.Println("\nevents:")
			for _, e := range events {
				fmt.Printf("  [%s] %s: %s\n", e.CreatedAt.Format("15:04:05"), e.Kind, truncate(e.Payload, 120))
			}
			return nil
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
