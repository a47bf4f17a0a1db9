// Package metrics derives the CLI-facing view over the Relational
// Repository's raw counters, per spec.md §6's `metrics` command.
package metrics

import "fmt"

// Repository is the subset of *store.Store the metrics command needs.
type Repository interface {
	Metrics() (map[string]float64, error)
}

// deliveredMetric and droppedMetric name the counters response_loss_rate is
// derived from.
const (
	deliveredMetric = "messages_delivered_count"
	droppedMetric   = "messages_dropped_count"
)

// Snapshot is every raw counter plus the derived response_loss_rate.
type Snapshot struct {
	Counters         map[string]float64
	ResponseLossRate float64
}

// Collect reads every counter from repo and derives response_loss_rate =
// dropped/(delivered+dropped), per spec.md §6. A zero denominator yields a
// zero rate rather than a division error, since no traffic means no loss.
func Collect(repo Repository) (Snapshot, error) {
	counters, err := repo.Metrics()
	if err != nil {
		return Snapshot{}, fmt.Errorf("collect metrics: %w", err)
	}

	delivered := counters[deliveredMetric]
	dropped := counters[droppedMetric]
	var rate float64
	if total := delivered + dropped; total > 0 {
		rate = dropped / total
	}

	return Snapshot{Counters: counters, ResponseLossRate: rate}, nil
}
