package store

import (
	"fmt"
	"time"
)

// RecordOutreach appends a proactive_outreach row for runID, per spec.md
// §4.M's blocked-outreach step.
func (s *Store) RecordOutreach(runID, senderID string) error {
	_, err := s.DB.Exec(`INSERT INTO proactive_outreach (run_id, sender_id, outreach_at) VALUES (?, ?, ?)`,
		runID, senderID, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record outreach: %w", err)
	}
	return nil
}

// OutreachHistory is the count and most recent timestamp of prior outreach
// for a run, used to enforce spec.md §4.M's "fewer than 3 prior outreach
// events and last outreach >= 4h ago" rule.
type OutreachHistory struct {
	Count      int
	LastSentAt time.Time
}

// OutreachHistoryForRun reads the outreach count and most recent timestamp
// for runID.
func (s *Store) OutreachHistoryForRun(runID string) (OutreachHistory, error) {
	var count int
	var lastRaw string
	err := s.DB.QueryRow(`SELECT COUNT(*), COALESCE(MAX(outreach_at), '') FROM proactive_outreach WHERE run_id = ?`, runID).
		Scan(&count, &lastRaw)
	if err != nil {
		return OutreachHistory{}, fmt.Errorf("read outreach history: %w", err)
	}
	h := OutreachHistory{Count: count}
	if lastRaw != "" {
		h.LastSentAt, _ = time.Parse(time.RFC3339, lastRaw)
	}
	return h, nil
}

// DigestTarget is a distinct (channel, senderId) pair with recent activity,
// a digest enumeration candidate.
type DigestTarget struct {
	Channel  string
	SenderID string
}

// DigestTargetsSince enumerates distinct (channel, senderId) pairs with a
// run updated since cutoff, per spec.md §4.M's digest enumeration step.
func (s *Store) DigestTargetsSince(cutoff time.Time) ([]DigestTarget, error) {
	rows, err := s.DB.Query(`
		SELECT DISTINCT channel, sender_id FROM task_runs WHERE updated_at >= ?`, fmtTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("enumerate digest targets: %w", err)
	}
	defer rows.Close()

	var out []DigestTarget
	for rows.Next() {
		var t DigestTarget
		if err := rows.Scan(&t.Channel, &t.SenderID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DigestAlreadySent reports whether a digest was already recorded for
// (date, channel, senderId), per spec.md §4.M's once-per-day rule.
func (s *Store) DigestAlreadySent(date, channel, senderID string) (bool, error) {
	var n int
	err := s.DB.QueryRow(`
		SELECT COUNT(*) FROM proactive_digest_sent WHERE digest_date = ? AND channel = ? AND sender_id = ?`,
		date, channel, senderID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check digest sent: %w", err)
	}
	return n > 0, nil
}

// MarkDigestSent records a digest as sent for (date, channel, senderId).
func (s *Store) MarkDigestSent(date, channel, senderID string) error {
	_, err := s.DB.Exec(`
		INSERT INTO proactive_digest_sent (digest_date, channel, sender_id, sent_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(digest_date, channel, sender_id) DO NOTHING`,
		date, channel, senderID, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("mark digest sent: %w", err)
	}
	return nil
}
