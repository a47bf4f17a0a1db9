package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/memory"
)

// newMemoryCmd groups commands over the durable memory_records table and
// the raw/daily-summary memory files on disk.
func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or edit remembered facts about a user",
	}
	cmd.AddCommand(newMemoryShowCmd(), newMemoryForgetCmd(), newMemorySummarizeCmd())
	return cmd
}

func newMemoryShowCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "show <userId>",
		Short: "List memory records for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.MemoryForUser(args[0], category)
			if err != nil {
				return fmt.Errorf("load memory: %w", err)
			}
			if len(rows) == 0 {
				fmt.Println("no memory records")
				return nil
			}
			for _, m := range rows {
				fmt.Printf("[%s] %s = %s (confidence %.2f, updated %s)\n", m.Category, m.Key, m.Value, m.Confidence, m.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "restrict to one category")
	return cmd
}

func newMemoryForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <userId> <topic>",
		Short: "Delete memory records matching a category or key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.ForgetMemory(args[0], args[1])
			if err != nil {
				return fmt.Errorf("forget memory: %w", err)
			}
			fmt.Printf("deleted %d record(s)\n", n)
			return nil
		},
	}
}

func newMemorySummarizeCmd() *cobra.Command {
	var dateStr string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Build (or rebuild) the daily memory summary for one UTC date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			date := time.Now().UTC()
			if dateStr != "" {
				date, err = time.Parse("2006-01-02", dateStr)
				if err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
			}

			path, err := memory.BuildDailySummary(home.MemoryRawDir, home.MemoryDailyDir, date)
			if err != nil {
				return fmt.Errorf("build daily summary: %w", err)
			}
			if err := s.UpsertDailySummary(date.Format("2006-01-02"), path); err != nil {
				return fmt.Errorf("record daily summary: %w", err)
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dateStr, "date", "", "UTC date to summarize, YYYY-MM-DD (default: today)")
	return cmd
}
