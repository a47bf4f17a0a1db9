package store

import (
	"database/sql"
	"fmt"
	"time"
)

// RunStatus is one of the TaskRun lifecycle states from spec.md §3.
type RunStatus string

const (
	RunQueued           RunStatus = "queued"
	RunInProgress       RunStatus = "in_progress"
	RunNeedsInput        RunStatus = "needs_input"
	RunNeedsRevision     RunStatus = "needs_revision"
	RunVerified          RunStatus = "verified"
	RunRejected          RunStatus = "rejected"
	RunAwaitingApproval  RunStatus = "awaiting_approval"
	RunSent              RunStatus = "sent"
	RunFailed            RunStatus = "failed"
)

// Run mirrors the TaskRun row shape.
type Run struct {
	RunID           string
	TaskID          string
	Channel         string
	Sender          string
	SenderID        string
	ConversationID  string
	BranchKey       string
	Objective       string
	RiskLevel       string
	Status          RunStatus
	AssignedAgent   string
	LoopIteration   int
	MaxIterations   int
	VerifierOutcome string
	ResultText      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateRun inserts a new run row with status in_progress, per spec.md §3's
// lifecycle ("created in_progress").
func (s *Store) CreateRun(r *Run) error {
	now := time.Now().UTC()
	r.Status = RunInProgress
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := s.DB.Exec(`
		INSERT INTO task_runs (run_id, task_id, channel, sender, sender_id, conversation_id,
			branch_key, objective, risk_level, status, assigned_agent, loop_iteration,
			max_iterations, verifier_outcome, result_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.TaskID, r.Channel, r.Sender, r.SenderID, r.ConversationID,
		r.BranchKey, r.Objective, r.RiskLevel, r.Status, r.AssignedAgent, r.LoopIteration,
		r.MaxIterations, r.VerifierOutcome, r.ResultText, fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRunProgress updates the mutable loop-progress columns. The harness
// orchestrator calls it once, after the loop engine returns; the columns are
// not written during intermediate iterations.
func (s *Store) UpdateRunProgress(runID string, loopIteration int, verifierOutcome, resultText string) error {
	_, err := s.DB.Exec(`
		UPDATE task_runs SET loop_iteration = ?, verifier_outcome = ?, result_text = ?, updated_at = ?
		WHERE run_id = ?`,
		loopIteration, verifierOutcome, resultText, fmtTime(time.Now().UTC()), runID,
	)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// FinalizeRun sets the terminal status, called by the harness orchestrator.
func (s *Store) FinalizeRun(runID string, status RunStatus, resultText string) error {
	_, err := s.DB.Exec(`
		UPDATE task_runs SET status = ?, result_text = ?, updated_at = ? WHERE run_id = ?`,
		status, resultText, fmtTime(time.Now().UTC()), runID,
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return nil
}

// GetRun reads a single run by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.DB.QueryRow(`
		SELECT run_id, task_id, channel, sender, sender_id, conversation_id, branch_key,
			objective, risk_level, status, assigned_agent, loop_iteration, max_iterations,
			verifier_outcome, result_text, created_at, updated_at
		FROM task_runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns every run, most recently updated first, for the `task
// list` CLI command.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.DB.Query(`
		SELECT run_id, task_id, channel, sender, sender_id, conversation_id, branch_key,
			objective, risk_level, status, assigned_agent, loop_iteration, max_iterations,
			verifier_outcome, result_text, created_at, updated_at
		FROM task_runs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SupersedeNeedsInput marks every needs_input run older than cutoff for
// (channel, senderId) as rejected and records a superseded_by_new_message
// event for each, per spec.md §4.A.
func (s *Store) SupersedeNeedsInput(channel, senderID string, cutoff time.Time) ([]string, error) {
	rows, err := s.DB.Query(`
		SELECT run_id FROM task_runs
		WHERE channel = ? AND sender_id = ? AND status = ? AND updated_at < ?`,
		channel, senderID, RunNeedsInput, fmtTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("find superseded runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if err := s.FinalizeRun(id, RunRejected, ""); err != nil {
			return nil, err
		}
		if err := s.RecordEvent(id, "superseded_by_new_message", ""); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// ListBlockedRunsForOutreach returns the newest blocked run per (channel,
// senderId) for runs in needs_input/awaiting_approval with no newer sibling,
// per spec.md §4.A.
func (s *Store) ListBlockedRunsForOutreach(minAge time.Duration) ([]*Run, error) {
	cutoff := fmtTime(time.Now().UTC().Add(-minAge))
	rows, err := s.DB.Query(`
		SELECT run_id, task_id, channel, sender, sender_id, conversation_id, branch_key,
			objective, risk_level, status, assigned_agent, loop_iteration, max_iterations,
			verifier_outcome, result_text, created_at, updated_at
		FROM task_runs t
		WHERE status IN (?, ?) AND updated_at < ?
		AND updated_at = (
			SELECT MAX(updated_at) FROM task_runs t2
			WHERE t2.channel = t.channel AND t2.sender_id = t.sender_id
			AND t2.status IN (?, ?)
		)`,
		RunNeedsInput, RunAwaitingApproval, cutoff, RunNeedsInput, RunAwaitingApproval)
	if err != nil {
		return nil, fmt.Errorf("list blocked runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var createdAt, updatedAt string
	var conversationID, branchKey, assignedAgent, verifierOutcome, resultText sql.NullString
	err := row.Scan(
		&r.RunID, &r.TaskID, &r.Channel, &r.Sender, &r.SenderID, &conversationID, &branchKey,
		&r.Objective, &r.RiskLevel, &r.Status, &assignedAgent, &r.LoopIteration, &r.MaxIterations,
		&verifierOutcome, &resultText, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.ConversationID = conversationID.String
	r.BranchKey = branchKey.String
	r.AssignedAgent = assignedAgent.String
	r.VerifierOutcome = verifierOutcome.String
	r.ResultText = resultText.String
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
