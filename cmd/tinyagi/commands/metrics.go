package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/metrics"
)

// newMetricsCmd prints the repository's raw counters plus the derived
// response_loss_rate, per spec.md §6.
func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show operational counters and the derived response loss rate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := openHome()
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := metrics.Collect(s)
			if err != nil {
				return fmt.Errorf("collect metrics: %w", err)
			}

			names := make([]string, 0, len(snap.Counters))
			for name := range snap.Counters {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-32s %g\n", name, snap.Counters[name])
			}
			fmt.Printf("%-32s %.4f\n", "response_loss_rate", snap.ResponseLossRate)
			return nil
		},
	}
}
