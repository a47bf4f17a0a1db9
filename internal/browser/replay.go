package browser

import (
	"encoding/json"
	"fmt"
)

// AuditRow mirrors the fields of store.AuditRow the replay planner needs,
// kept decoupled from internal/store to avoid a dependency cycle.
type AuditRow struct {
	ActionID      string
	SelectorTrace string
	Status        string
}

// TraceSource is satisfied by *store.Store.
type TraceSource interface {
	LatestTabTraceForRun(runID string) ([]AuditRow, error)
}

// ErrNoReplayableTrace is returned when a run has no recorded browser
// audit trail to replay.
var ErrNoReplayableTrace = fmt.Errorf("No replayable browser trace found")

// BuildReplayPlan reads the most recent tab's audit trail for runID and
// reconstructs an executable plan from its successful and checkpoint
// entries, deduping by actionId and dropping ill-formed entries, per
// spec.md §4.I's replayBrowserRun.
func BuildReplayPlan(src TraceSource, runID, baseURL string) ([]Step, error) {
	rows, err := src.LatestTabTraceForRun(runID)
	if err != nil {
		return nil, fmt.Errorf("load trace: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoReplayableTrace
	}

	seen := map[string]bool{}
	var steps []Step
	if baseURL != "" {
		steps = append(steps, Step{Kind: StepNavigate, URL: baseURL})
	}

	for _, row := range rows {
		if row.Status != "completed" && row.Status != "needs_input" {
			continue
		}
		if seen[row.ActionID] {
			continue
		}
		var entry traceEntry
		if err := json.Unmarshal([]byte(row.SelectorTrace), &entry); err != nil {
			continue
		}
		if entry.ActionID != row.ActionID || entry.Step.Kind == "" {
			continue
		}
		seen[row.ActionID] = true
		steps = append(steps, entry.Step)
	}

	if len(steps) == 0 {
		return nil, ErrNoReplayableTrace
	}
	return steps, nil
}
