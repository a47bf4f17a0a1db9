package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateBrowserSession records a new session row.
func (s *Store) CreateBrowserSession(sessionID, runID, host string, port int, profilePath string) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.DB.Exec(`
		INSERT INTO browser_sessions (session_id, run_id, host, port, profile_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?)`,
		sessionID, runID, host, port, profilePath, now, now)
	if err != nil {
		return fmt.Errorf("create browser session: %w", err)
	}
	return nil
}

// CreateBrowserTab records a new tab row, owned by runID.
func (s *Store) CreateBrowserTab(tabID, sessionID, runID string) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.DB.Exec(`
		INSERT INTO browser_tabs (tab_id, session_id, run_id, status, created_at, updated_at)
		VALUES (?, ?, ?, 'active', ?, ?)`,
		tabID, sessionID, runID, now, now)
	if err != nil {
		return fmt.Errorf("create browser tab: %w", err)
	}
	return nil
}

// SetTabStatus transitions a tab's status (active -> error|released), per
// spec.md §3's BrowserTab invariant.
func (s *Store) SetTabStatus(tabID, status string) error {
	_, err := s.DB.Exec(`UPDATE browser_tabs SET status = ?, updated_at = ? WHERE tab_id = ?`,
		status, fmtTime(time.Now().UTC()), tabID)
	if err != nil {
		return fmt.Errorf("set tab status: %w", err)
	}
	return nil
}

// RecordBrowserAction inserts an action row.
func (s *Store) RecordBrowserAction(actionID, runID, tabID, kind, selector, value, risk string, requiresApproval bool, status string) error {
	_, err := s.DB.Exec(`
		INSERT INTO browser_actions (action_id, run_id, tab_id, kind, selector, value, risk, requires_approval, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		actionID, runID, tabID, kind, selector, value, risk, requiresApproval, status, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record browser action: %w", err)
	}
	return nil
}

// SetActionStatus updates a single action's terminal status.
func (s *Store) SetActionStatus(actionID, status string) error {
	_, err := s.DB.Exec(`UPDATE browser_actions SET status = ? WHERE action_id = ?`, status, actionID)
	if err != nil {
		return fmt.Errorf("set action status: %w", err)
	}
	return nil
}

// CreateBrowserApproval creates a pending approval request for a
// payment-risk action, per spec.md §4.I.
func (s *Store) CreateBrowserApproval(requestID, runID, actionID string) error {
	_, err := s.DB.Exec(`
		INSERT INTO browser_approvals (request_id, run_id, action_id, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)`,
		requestID, runID, actionID, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("create browser approval: %w", err)
	}
	return nil
}

// DecideBrowserApproval records an approve/deny decision.
func (s *Store) DecideBrowserApproval(requestID, status string) error {
	_, err := s.DB.Exec(`UPDATE browser_approvals SET status = ?, decided_at = ? WHERE request_id = ?`,
		status, fmtTime(time.Now().UTC()), requestID)
	if err != nil {
		return fmt.Errorf("decide browser approval: %w", err)
	}
	return nil
}

// BrowserApprovalRow is a read-back row for `browser approvals`.
type BrowserApprovalRow struct {
	RequestID, RunID, ActionID, Status string
}

// ListBrowserApprovals lists approvals, optionally filtered to runs
// belonging to userId via the joined task_runs row.
func (s *Store) ListBrowserApprovals(userID string) ([]BrowserApprovalRow, error) {
	var rows *sql.Rows
	var err error
	if userID == "" {
		rows, err = s.DB.Query(`SELECT request_id, run_id, action_id, status FROM browser_approvals ORDER BY created_at DESC`)
	} else {
		rows, err = s.DB.Query(`
			SELECT a.request_id, a.run_id, a.action_id, a.status
			FROM browser_approvals a JOIN task_runs t ON t.run_id = a.run_id
			WHERE t.sender_id = ? ORDER BY a.created_at DESC`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list browser approvals: %w", err)
	}
	defer rows.Close()

	var out []BrowserApprovalRow
	for rows.Next() {
		var r BrowserApprovalRow
		if err := rows.Scan(&r.RequestID, &r.RunID, &r.ActionID, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordBrowserAudit inserts an audit row, always present for every action
// per spec.md §3's invariant.
func (s *Store) RecordBrowserAudit(runID, tabID, actionID, beforeShot, afterShot, selectorTrace string) error {
	_, err := s.DB.Exec(`
		INSERT INTO browser_audits (run_id, tab_id, action_id, before_screenshot, after_screenshot, selector_trace, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, tabID, actionID, beforeShot, afterShot, selectorTrace, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record browser audit: %w", err)
	}
	return nil
}

// BrowserSessionRow is a read-back session row for `browser sessions`.
type BrowserSessionRow struct {
	SessionID, RunID, Host, Status string
	Port                           int
	CreatedAt                      time.Time
}

// ListBrowserSessions lists every recorded browser session, most recent first.
func (s *Store) ListBrowserSessions() ([]BrowserSessionRow, error) {
	rows, err := s.DB.Query(`SELECT session_id, run_id, host, port, status, created_at FROM browser_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list browser sessions: %w", err)
	}
	defer rows.Close()

	var out []BrowserSessionRow
	for rows.Next() {
		var r BrowserSessionRow
		var createdAt string
		if err := rows.Scan(&r.SessionID, &r.RunID, &r.Host, &r.Port, &r.Status, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// BrowserTabRow is a read-back tab row for `browser tabs`.
type BrowserTabRow struct {
	TabID, SessionID, RunID, Status string
	CreatedAt                       time.Time
}

// ListBrowserTabs lists tabs, optionally filtered to one sessionId.
func (s *Store) ListBrowserTabs(sessionID string) ([]BrowserTabRow, error) {
	var rows *sql.Rows
	var err error
	if sessionID == "" {
		rows, err = s.DB.Query(`SELECT tab_id, session_id, run_id, status, created_at FROM browser_tabs ORDER BY created_at DESC`)
	} else {
		rows, err = s.DB.Query(`SELECT tab_id, session_id, run_id, status, created_at FROM browser_tabs WHERE session_id = ? ORDER BY created_at DESC`, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("list browser tabs: %w", err)
	}
	defer rows.Close()

	var out []BrowserTabRow
	for rows.Next() {
		var r BrowserTabRow
		var createdAt string
		if err := rows.Scan(&r.TabID, &r.SessionID, &r.RunID, &r.Status, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AuditRow is a read-back audit row for replay.
type AuditRow struct {
	TabID, ActionID, SelectorTrace, Status string
	CreatedAt                              time.Time
}

// LatestTabTraceForRun returns every audit row for the most recently-created
// tab of runID, oldest first, for BrowserExecutor.Replay.
func (s *Store) LatestTabTraceForRun(runID string) ([]AuditRow, error) {
	var tabID string
	err := s.DB.QueryRow(`SELECT tab_id FROM browser_tabs WHERE run_id = ? ORDER BY created_at DESC LIMIT 1`, runID).Scan(&tabID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest tab: %w", err)
	}

	rows, err := s.DB.Query(`
		SELECT a.tab_id, a.action_id, a.selector_trace, b.status, a.created_at
		FROM browser_audits a JOIN browser_actions b ON b.action_id = a.action_id
		WHERE a.tab_id = ? ORDER BY a.created_at ASC`, tabID)
	if err != nil {
		return nil, fmt.Errorf("read selector trace: %w", err)
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		var createdAt string
		if err := rows.Scan(&a.TabID, &a.ActionID, &a.SelectorTrace, &a.Status, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}
