package store

import (
	"database/sql"
	"fmt"
	"time"
)

// MemoryRow mirrors MemoryRecord from spec.md §3.
type MemoryRow struct {
	RecordID, UserID, Category, Key, Value string
	Confidence                             float64
	SourceRunID                            string
	CreatedAt, UpdatedAt                   time.Time
}

// UpsertMemory inserts or updates a memory row keyed by (userId, category,
// key); a newer ingest with higher confidence wins, per spec.md §3's
// invariant. A newer ingest with lower confidence still refreshes updatedAt
// and value (the most recent statement of a preference should win on
// content), but never decreases confidence.
func (s *Store) UpsertMemory(recordID, userID, category, key, value string, confidence float64, sourceRunID string) error {
	now := fmtTime(time.Now().UTC())

	var existingConfidence float64
	err := s.DB.QueryRow(`SELECT confidence FROM memory_records WHERE user_id = ? AND category = ? AND key = ?`,
		userID, category, key).Scan(&existingConfidence)

	if err == sql.ErrNoRows {
		_, err = s.DB.Exec(`
			INSERT INTO memory_records (record_id, user_id, category, key, value, confidence, source_run_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			recordID, userID, category, key, value, confidence, sourceRunID, now, now)
		if err != nil {
			return fmt.Errorf("insert memory record: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup memory record: %w", err)
	}

	newConfidence := confidence
	if existingConfidence > newConfidence {
		newConfidence = existingConfidence
	}
	_, err = s.DB.Exec(`
		UPDATE memory_records SET value = ?, confidence = ?, source_run_id = ?, updated_at = ?
		WHERE user_id = ? AND category = ? AND key = ?`,
		value, newConfidence, sourceRunID, now, userID, category, key)
	if err != nil {
		return fmt.Errorf("update memory record: %w", err)
	}
	return nil
}

// MemoryForUser returns every memory row for userId, optionally filtered to
// one category (empty string means all categories).
func (s *Store) MemoryForUser(userID, category string) ([]MemoryRow, error) {
	var rows *sql.Rows
	var err error
	if category == "" {
		rows, err = s.DB.Query(`SELECT record_id, user_id, category, key, value, confidence, source_run_id, created_at, updated_at
			FROM memory_records WHERE user_id = ?`, userID)
	} else {
		rows, err = s.DB.Query(`SELECT record_id, user_id, category, key, value, confidence, source_run_id, created_at, updated_at
			FROM memory_records WHERE user_id = ? AND category = ?`, userID, category)
	}
	if err != nil {
		return nil, fmt.Errorf("read memory for user: %w", err)
	}
	defer rows.Close()

	var out []MemoryRow
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ForgetMemory deletes every row for (userId, topic) where topic matches the
// category or the key.
func (s *Store) ForgetMemory(userID, topic string) (int64, error) {
	res, err := s.DB.Exec(`DELETE FROM memory_records WHERE user_id = ? AND (category = ? OR key = ?)`, userID, topic, topic)
	if err != nil {
		return 0, fmt.Errorf("forget memory: %w", err)
	}
	return res.RowsAffected()
}

func scanMemoryRow(row rowScanner) (MemoryRow, error) {
	var m MemoryRow
	var sourceRunID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&m.RecordID, &m.UserID, &m.Category, &m.Key, &m.Value, &m.Confidence, &sourceRunID, &createdAt, &updatedAt)
	if err != nil {
		return m, fmt.Errorf("scan memory row: %w", err)
	}
	m.SourceRunID = sourceRunID.String
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return m, nil
}

// UpsertDailySummary records a daily memory summary file path.
func (s *Store) UpsertDailySummary(date, path string) error {
	_, err := s.DB.Exec(`
		INSERT INTO memory_daily_summaries (summary_date, path, created_at) VALUES (?, ?, ?)
		ON CONFLICT(summary_date) DO UPDATE SET path = excluded.path`,
		date, path, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert daily summary: %w", err)
	}
	return nil
}
