package store

import (
	"fmt"
	"time"
)

// RecordEvent appends a typed TaskEvent row, unconditional insert per
// spec.md §4.A ("inserts for event tables are unconditional").
func (s *Store) RecordEvent(runID, kind, payload string) error {
	_, err := s.DB.Exec(`
		INSERT INTO task_events (run_id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		runID, kind, payload, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// RecordStep appends a loop generator/verifier/reviser step row.
func (s *Store) RecordStep(runID, kind string, iteration int, output, verdict string) error {
	_, err := s.DB.Exec(`
		INSERT INTO task_steps (run_id, kind, iteration, output, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, kind, iteration, output, verdict, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// EventRow is a read-back of a single task_events row.
type EventRow struct {
	RunID     string
	Kind      string
	Payload   string
	CreatedAt time.Time
}

// ListEvents returns every event for a run in insertion order.
func (s *Store) ListEvents(runID string) ([]EventRow, error) {
	rows, err := s.DB.Query(`
		SELECT run_id, kind, payload, created_at FROM task_events WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var createdAt string
		if err := rows.Scan(&e.RunID, &e.Kind, &e.Payload, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
