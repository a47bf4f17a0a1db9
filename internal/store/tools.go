package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9-]+`)

func slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// RegisterToolIfNew implements tooling.ToolRegistrar: inserts the tool row
// if it does not already exist, leaving status/trustClass untouched for a
// tool already known (a human decision via `tools approve`/`tools block`
// should not be clobbered by re-registration), per spec.md §4.H step 3.
func (s *Store) RegisterToolIfNew(name, source, trustClass string) error {
	var exists int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM tools WHERE name = ?`, name).Scan(&exists); err != nil {
		return fmt.Errorf("check tool exists: %w", err)
	}
	if exists > 0 {
		return nil
	}
	now := fmtTime(time.Now().UTC())
	_, err := s.DB.Exec(`
		INSERT INTO tools (tool_id, name, source, trust_class, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', '', ?, ?)`,
		slugify(name), name, source, trustClass, now, now)
	if err != nil {
		return fmt.Errorf("register tool: %w", err)
	}
	return nil
}

// ApproveTool flips a tool's status to approved.
func (s *Store) ApproveTool(name string) error {
	return s.setToolStatus(name, "approved")
}

// BlockTool flips a tool's status to blocked.
func (s *Store) BlockTool(name string) error {
	return s.setToolStatus(name, "blocked")
}

func (s *Store) setToolStatus(name, status string) error {
	_, err := s.DB.Exec(`UPDATE tools SET status = ?, updated_at = ? WHERE name = ?`,
		status, fmtTime(time.Now().UTC()), name)
	if err != nil {
		return fmt.Errorf("set tool status: %w", err)
	}
	return nil
}

// ToolRow is a read-back row for listing.
type ToolRow struct {
	ToolID, Name, Source, TrustClass, Status string
}

// ListTools returns every registered tool.
func (s *Store) ListTools() ([]ToolRow, error) {
	rows, err := s.DB.Query(`SELECT tool_id, name, source, trust_class, status FROM tools ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []ToolRow
	for rows.Next() {
		var t ToolRow
		var source sql.NullString
		if err := rows.Scan(&t.ToolID, &t.Name, &source, &t.TrustClass, &t.Status); err != nil {
			return nil, err
		}
		t.Source = source.String
		out = append(out, t)
	}
	return out, rows.Err()
}
