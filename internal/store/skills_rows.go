package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SkillRow mirrors the Skill row shape from spec.md §3.
type SkillRow struct {
	SkillID, Name, Status, ContentPath string
	CurrentVersion                     int
}

// CreateSkillDraft inserts a new skill row (status draft) plus its v1
// version row, per spec.md §4.K.
func (s *Store) CreateSkillDraft(skillID, name, contentPath string) error {
	now := fmtTime(time.Now().UTC())
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO skills (skill_id, name, status, content_path, current_version, created_at, updated_at)
		VALUES (?, ?, 'draft', ?, 1, ?, ?)`,
		skillID, name, contentPath, now, now); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert skill: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO skill_versions (skill_id, version, content_path, created_at) VALUES (?, 1, ?, ?)`,
		skillID, contentPath, now); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert skill version: %w", err)
	}
	return tx.Commit()
}

// SkillByNormalizedName finds an existing skill whose name matches, for the
// dedup-by-normalized-name rule in spec.md §4.K.
func (s *Store) SkillByNormalizedName(name string) (*SkillRow, error) {
	row := s.DB.QueryRow(`SELECT skill_id, name, status, content_path, current_version FROM skills WHERE name = ?`, name)
	var sk SkillRow
	err := row.Scan(&sk.SkillID, &sk.Name, &sk.Status, &sk.ContentPath, &sk.CurrentVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup skill: %w", err)
	}
	return &sk, nil
}

// GetSkill reads a skill by id.
func (s *Store) GetSkill(skillID string) (*SkillRow, error) {
	row := s.DB.QueryRow(`SELECT skill_id, name, status, content_path, current_version FROM skills WHERE skill_id = ?`, skillID)
	var sk SkillRow
	err := row.Scan(&sk.SkillID, &sk.Name, &sk.Status, &sk.ContentPath, &sk.CurrentVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return &sk, nil
}

// ListSkills returns every skill.
func (s *Store) ListSkills() ([]SkillRow, error) {
	rows, err := s.DB.Query(`SELECT skill_id, name, status, content_path, current_version FROM skills ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []SkillRow
	for rows.Next() {
		var sk SkillRow
		if err := rows.Scan(&sk.SkillID, &sk.Name, &sk.Status, &sk.ContentPath, &sk.CurrentVersion); err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// SetSkillStatus flips a skill's status (activate/disable).
func (s *Store) SetSkillStatus(skillID, status string) error {
	_, err := s.DB.Exec(`UPDATE skills SET status = ?, updated_at = ? WHERE skill_id = ?`,
		status, fmtTime(time.Now().UTC()), skillID)
	if err != nil {
		return fmt.Errorf("set skill status: %w", err)
	}
	return nil
}

// AddSkillVersion appends a new version row and updates the skill's current
// pointer.
func (s *Store) AddSkillVersion(skillID, contentPath string) (int, error) {
	var maxVersion int
	if err := s.DB.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM skill_versions WHERE skill_id = ?`, skillID).Scan(&maxVersion); err != nil {
		return 0, fmt.Errorf("find max version: %w", err)
	}
	next := maxVersion + 1
	now := fmtTime(time.Now().UTC())

	tx, err := s.DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO skill_versions (skill_id, version, content_path, created_at) VALUES (?, ?, ?, ?)`,
		skillID, next, contentPath, now); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("insert skill version: %w", err)
	}
	if _, err := tx.Exec(`UPDATE skills SET content_path = ?, current_version = ?, updated_at = ? WHERE skill_id = ?`,
		contentPath, next, now, skillID); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("update skill pointer: %w", err)
	}
	return next, tx.Commit()
}

// SkillVersionPath resolves the content path for a specific version,
// defaulting to the latest when version is 0, for `skills rollback`.
func (s *Store) SkillVersionPath(skillID string, version int) (string, error) {
	var path string
	var err error
	if version == 0 {
		err = s.DB.QueryRow(`SELECT content_path FROM skill_versions WHERE skill_id = ? ORDER BY version DESC LIMIT 1`, skillID).Scan(&path)
	} else {
		err = s.DB.QueryRow(`SELECT content_path FROM skill_versions WHERE skill_id = ? AND version = ?`, skillID, version).Scan(&path)
	}
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no such skill version")
	}
	if err != nil {
		return "", fmt.Errorf("lookup skill version: %w", err)
	}
	return path, nil
}

// RollbackSkill points the skill's current content path at the content path
// of an earlier version, per spec.md §4.K ("rollback updates the current
// content path to a prior version's path").
func (s *Store) RollbackSkill(skillID string, version int) error {
	path, err := s.SkillVersionPath(skillID, version)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`UPDATE skills SET content_path = ?, updated_at = ? WHERE skill_id = ?`,
		path, fmtTime(time.Now().UTC()), skillID)
	if err != nil {
		return fmt.Errorf("rollback skill: %w", err)
	}
	return nil
}
