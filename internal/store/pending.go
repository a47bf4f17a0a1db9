package store

import (
	"database/sql"
	"fmt"
	"time"
)

// PendingMessage mirrors ChannelPendingMessage from spec.md §3.
type PendingMessage struct {
	MessageID, Channel, Sender, SenderID, ChatRef, ReplyRef string
	ExpiresAt                                               time.Time
}

// RememberPending upserts a durable pending-message row with a TTL, per
// spec.md §4.A / scenario S7.
func (s *Store) RememberPending(p PendingMessage, ttl time.Duration) error {
	now := time.Now().UTC()
	expires := now.Add(ttl)
	_, err := s.DB.Exec(`
		INSERT INTO channel_pending_messages (message_id, channel, sender, sender_id, chat_ref, reply_ref, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			channel=excluded.channel, sender=excluded.sender, sender_id=excluded.sender_id,
			chat_ref=excluded.chat_ref, reply_ref=excluded.reply_ref, expires_at=excluded.expires_at`,
		p.MessageID, p.Channel, p.Sender, p.SenderID, p.ChatRef, p.ReplyRef, fmtTime(expires), fmtTime(now),
	)
	if err != nil {
		return fmt.Errorf("remember pending message: %w", err)
	}
	return nil
}

// ReadPending returns the pending row for (channel, messageId) if present
// and not expired, else nil.
func (s *Store) ReadPending(channel, messageID string) (*PendingMessage, error) {
	row := s.DB.QueryRow(`
		SELECT message_id, channel, sender, sender_id, chat_ref, reply_ref, expires_at
		FROM channel_pending_messages WHERE channel = ? AND message_id = ?`, channel, messageID)

	var p PendingMessage
	var chatRef, replyRef sql.NullString
	var expiresAt string
	err := row.Scan(&p.MessageID, &p.Channel, &p.Sender, &p.SenderID, &chatRef, &replyRef, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending message: %w", err)
	}
	p.ChatRef = chatRef.String
	p.ReplyRef = replyRef.String
	p.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)

	if p.ExpiresAt.Before(time.Now().UTC()) {
		return nil, nil
	}
	return &p, nil
}

// ClearPending deletes a pending row by messageId.
func (s *Store) ClearPending(messageID string) error {
	_, err := s.DB.Exec(`DELETE FROM channel_pending_messages WHERE message_id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("clear pending message: %w", err)
	}
	return nil
}

// CleanupExpiredPending purges every expired pending row. Idempotent: a
// second call with nothing expired deletes zero rows without error, per
// spec.md §8's "Pending-store TTL" property.
func (s *Store) CleanupExpiredPending() (int64, error) {
	res, err := s.DB.Exec(`DELETE FROM channel_pending_messages WHERE expires_at < ?`, fmtTime(time.Now().UTC()))
	if err != nil {
		return 0, fmt.Errorf("cleanup expired pending: %w", err)
	}
	return res.RowsAffected()
}
