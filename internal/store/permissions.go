package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HasActivePermission implements tooling.PermissionChecker.
func (s *Store) HasActivePermission(userID, tool, action string) (bool, error) {
	var count int
	err := s.DB.QueryRow(`
		SELECT COUNT(*) FROM permissions WHERE user_id = ? AND subject = ? AND action = ? AND status = 'active'`,
		userID, tool, action).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return count > 0, nil
}

// CreatePendingPermission creates a pending permission row and returns a
// fresh requestId, per spec.md §4.H step 4.
func (s *Store) CreatePendingPermission(userID, tool, action string) (string, error) {
	id := newPermissionRequestID()
	now := fmtTime(time.Now().UTC())
	_, err := s.DB.Exec(`
		INSERT INTO permissions (permission_id, user_id, subject, action, resource, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', 'pending', ?, ?)`,
		id, userID, tool, action, now, now)
	if err != nil {
		return "", fmt.Errorf("create pending permission: %w", err)
	}
	return id, nil
}

// newPermissionRequestID mirrors tooling.NewRequestID's "perm_<uuid>"
// convention without internal/store depending on internal/tooling.
func newPermissionRequestID() string {
	return "perm_" + uuid.New().String()
}

// GrantPermission activates a permission for (userId, subject, action,
// resource), creating the row if none exists, used by the `permission
// grant` CLI command.
func (s *Store) GrantPermission(userID, subject, action, resource string) error {
	var id string
	err := s.DB.QueryRow(`
		SELECT permission_id FROM permissions WHERE user_id = ? AND subject = ? AND action = ?`,
		userID, subject, action).Scan(&id)
	now := fmtTime(time.Now().UTC())
	if err == sql.ErrNoRows {
		id = uuid.New().String()
		_, err = s.DB.Exec(`
			INSERT INTO permissions (permission_id, user_id, subject, action, resource, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 'active', ?, ?)`,
			id, userID, subject, action, resource, now, now)
		if err != nil {
			return fmt.Errorf("grant permission: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup permission: %w", err)
	}
	_, err = s.DB.Exec(`UPDATE permissions SET status = 'active', resource = ?, updated_at = ? WHERE permission_id = ?`,
		resource, now, id)
	if err != nil {
		return fmt.Errorf("activate permission: %w", err)
	}
	return nil
}

// RevokePermission marks a permission revoked by id.
func (s *Store) RevokePermission(permissionID string) error {
	_, err := s.DB.Exec(`UPDATE permissions SET status = 'revoked', updated_at = ? WHERE permission_id = ?`,
		fmtTime(time.Now().UTC()), permissionID)
	if err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}
	return nil
}

// PermissionRow is a read-back row for listing.
type PermissionRow struct {
	PermissionID, UserID, Subject, Action, Resource, Status string
}

// ListPermissions returns permissions, optionally filtered by userId (empty
// string lists all).
func (s *Store) ListPermissions(userID string) ([]PermissionRow, error) {
	var rows *sql.Rows
	var err error
	if userID == "" {
		rows, err = s.DB.Query(`SELECT permission_id, user_id, subject, action, resource, status FROM permissions ORDER BY updated_at DESC`)
	} else {
		rows, err = s.DB.Query(`SELECT permission_id, user_id, subject, action, resource, status FROM permissions WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var out []PermissionRow
	for rows.Next() {
		var p PermissionRow
		var resource sql.NullString
		if err := rows.Scan(&p.PermissionID, &p.UserID, &p.Subject, &p.Action, &resource, &p.Status); err != nil {
			return nil, err
		}
		p.Resource = resource.String
		out = append(out, p)
	}
	return out, rows.Err()
}
