package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ScheduledQuery is a query the scheduler runs through the workflow on a
// cron, interval or one-off schedule.
type ScheduledQuery struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule"`
	Query      string     `json:"query"`
	Status     string     `json:"status"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

const scheduleColumns = `id, name, schedule, query, status, next_run_at, last_run_at, last_status, last_run_id, created_at`

func scanSchedule(sc scanner) (*ScheduledQuery, error) {
	q := &ScheduledQuery{}
	var lastStatus, lastRunID sql.NullString
	err := sc.Scan(&q.ID, &q.Name, &q.Schedule, &q.Query, &q.Status,
		&q.NextRunAt, &q.LastRunAt, &lastStatus, &lastRunID, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.LastStatus = lastStatus.String
	q.LastRunID = lastRunID.String
	return q, nil
}

func (s *Store) SaveSchedule(q *ScheduledQuery) error {
	_, err := s.db.Exec(`
		INSERT INTO schedules (id, name, schedule, query, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			schedule = excluded.schedule,
			query = excluded.query,
			status = excluded.status,
			next_run_at = excluded.next_run_at`,
		q.ID, q.Name, q.Schedule, q.Query, q.Status, q.NextRunAt)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(id string) (*ScheduledQuery, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	q, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return q, nil
}

func (s *Store) ListSchedules() ([]ScheduledQuery, error) {
	return s.querySchedules(`SELECT ` + scheduleColumns + ` FROM schedules ORDER BY created_at`)
}

func (s *Store) GetDueSchedules(now time.Time) ([]ScheduledQuery, error) {
	return s.querySchedules(`SELECT `+scheduleColumns+` FROM schedules
		WHERE status = 'active' AND next_run_at <= ?
		ORDER BY next_run_at`, now)
}

func (s *Store) querySchedules(query string, args ...any) ([]ScheduledQuery, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	list := []ScheduledQuery{}
	for rows.Next() {
		q, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		list = append(list, *q)
	}
	return list, rows.Err()
}

func (s *Store) UpdateScheduleRun(id, lastStatus, lastRunID string, nextRunAt *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE schedules
		SET last_run_at = CURRENT_TIMESTAMP, last_status = ?, last_run_id = ?, next_run_at = ?
		WHERE id = ?`, lastStatus, lastRunID, nextRunAt, id)
	if err != nil {
		return fmt.Errorf("update schedule run: %w", err)
	}
	return nil
}

func (s *Store) UpdateScheduleStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE schedules SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update schedule status: %w", err)
	}
	return nil
}

func (s *Store) DeleteSchedule(id string) error {
	_, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}
