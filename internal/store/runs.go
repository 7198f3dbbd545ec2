package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Run is the record of one orchestrated query.
type Run struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Answer     string    `json:"answer"`
	Sources    []string  `json:"sources"`
	AgentsUsed []string  `json:"agents_used"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Mode       string    `json:"mode"`
	Reasoning  string    `json:"reasoning,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) SaveRun(r *Run) error {
	sources, err := marshalList(r.Sources)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	agents, err := marshalList(r.AgentsUsed)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO runs (id, query, answer, sources, agents_used, status, error, mode, reasoning, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			answer = excluded.answer,
			sources = excluded.sources,
			agents_used = excluded.agents_used,
			status = excluded.status,
			error = excluded.error,
			reasoning = excluded.reasoning,
			duration_ms = excluded.duration_ms`,
		r.ID, r.Query, r.Answer, sources, agents, r.Status, r.Error, r.Mode, r.Reasoning, r.DurationMs)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

const runColumns = `id, query, answer, sources, agents_used, status, error, mode, reasoning, duration_ms, created_at`

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	var sources, agents string
	err := sc.Scan(&r.ID, &r.Query, &r.Answer, &sources, &agents, &r.Status, &r.Error,
		&r.Mode, &r.Reasoning, &r.DurationMs, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if r.Sources, err = unmarshalList(sources); err != nil {
		return nil, err
	}
	if r.AgentsUsed, err = unmarshalList(agents); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRun returns nil, nil when no run has the id.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type RunStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

func (s *Store) GetRunStats() (RunStats, error) {
	var st RunStats
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("get run stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return st, fmt.Errorf("scan run stats: %w", err)
		}
		st.Total += n
		switch status {
		case RunCompleted:
			st.Completed = n
		case RunFailed:
			st.Failed = n
		case RunCancelled:
			st.Cancelled = n
		}
	}
	return st, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalList(raw string) ([]string, error) {
	list := []string{}
	if raw == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return list, nil
}
