package store

import (
	"fmt"
	"time"
)

type SessionMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) SaveSessionMessage(msg *SessionMessage) error {
	result, err := s.db.Exec(`
		INSERT INTO session_messages (session_id, role, content)
		VALUES (?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content)
	if err != nil {
		return fmt.Errorf("save session message: %w", err)
	}
	msg.ID, _ = result.LastInsertId()
	return nil
}

// GetSessionMessages returns the last limit messages of a session in
// chronological order.
func (s *Store) GetSessionMessages(sessionID string, limit int) ([]SessionMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, created_at
		FROM session_messages
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get session messages: %w", err)
	}
	defer rows.Close()

	var messages []SessionMessage
	for rows.Next() {
		var m SessionMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		messages = append(messages, m)
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}

func (s *Store) ClearSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM session_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
