package store

import (
	"fmt"
	"time"
)

// IncrementMetric implements tooling.EventRecorder's metric side: upserts
// the running counter and appends an append-only metric-event row, per
// spec.md §3's Metrics shape.
func (s *Store) IncrementMetric(name string, delta float64) {
	// Metrics increments are best-effort telemetry; a failure here must
	// never fail the caller's primary operation.
	if err := s.incrementMetric(name, delta); err != nil {
		_ = err
	}
}

func (s *Store) incrementMetric(name string, delta float64) error {
	_, err := s.DB.Exec(`
		INSERT INTO metrics (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value`,
		name, delta)
	if err != nil {
		return fmt.Errorf("increment metric: %w", err)
	}
	_, err = s.DB.Exec(`INSERT INTO metric_events (name, delta, metadata, created_at) VALUES (?, ?, '', ?)`,
		name, delta, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record metric event: %w", err)
	}
	return nil
}

// RecordToolEvent implements tooling.EventRecorder's event side by
// delegating to RecordEvent keyed off a synthetic run-less id, since tool
// lifecycle events in spec.md §4.H step 6 are not always tied to a run.
func (s *Store) RecordToolEvent(kind, userID, tool, command string) {
	_ = s.RecordEvent("tool:"+userID, kind, tool+" "+command)
}

// Metrics returns every counter as a name->value map, for the `metrics` CLI
// command, which additionally derives response_loss_rate.
func (s *Store) Metrics() (map[string]float64, error) {
	rows, err := s.DB.Query(`SELECT name, value FROM metrics`)
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}
