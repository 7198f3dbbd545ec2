package store

import (
	"database/sql"
	"fmt"
	"time"
)

// KnowledgeEntry is one stored finding of the knowledge service.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Topics    []string  `json:"topics"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) SaveKnowledge(e *KnowledgeEntry) error {
	topics, err := marshalList(e.Topics)
	if err != nil {
		return fmt.Errorf("save knowledge: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO knowledge_entries (id, query, content, source, topics)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			query = excluded.query,
			content = excluded.content,
			source = excluded.source,
			topics = excluded.topics`,
		e.ID, e.Query, e.Content, e.Source, topics)
	if err != nil {
		return fmt.Errorf("save knowledge: %w", err)
	}
	return nil
}

func scanKnowledge(sc scanner) (*KnowledgeEntry, error) {
	e := &KnowledgeEntry{}
	var topics string
	if err := sc.Scan(&e.ID, &e.Query, &e.Content, &e.Source, &topics, &e.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if e.Topics, err = unmarshalList(topics); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) GetKnowledge(id string) (*KnowledgeEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, query, content, source, topics, created_at
		FROM knowledge_entries WHERE id = ?`, id)
	e, err := scanKnowledge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge: %w", err)
	}
	return e, nil
}

// ListKnowledge returns every entry, newest first.
func (s *Store) ListKnowledge() ([]KnowledgeEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, query, content, source, topics, created_at
		FROM knowledge_entries ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()

	var entries []KnowledgeEntry
	for rows.Next() {
		e, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *Store) CountKnowledge() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM knowledge_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count knowledge: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteKnowledge(id string) error {
	_, err := s.db.Exec(`DELETE FROM knowledge_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete knowledge: %w", err)
	}
	return nil
}
