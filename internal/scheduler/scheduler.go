// Package scheduler runs stored queries through the workflow on cron,
// interval or one-off schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/natsbus"
	"github.com/mtzanidakis/quorum/internal/store"
	"github.com/mtzanidakis/quorum/internal/workflow"
)

const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"

	defaultPollInterval = 30 * time.Second
)

type Executor interface {
	Execute(ctx context.Context, s *workflow.State, obs workflow.Observer) error
}

type Publisher interface {
	PublishJSON(topic string, v any) error
}

type Scheduler struct {
	store  *store.Store
	wf     Executor
	events Publisher

	mu           sync.Mutex
	pollInterval time.Duration
	reloadCh     chan struct{}
	now          func() time.Time
}

func New(s *store.Store, wf Executor, events Publisher, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		wf:           wf,
		events:       events,
		pollInterval: cfg.PollInterval,
		reloadCh:     make(chan struct{}, 1),
		now:          time.Now,
	}
}

// UpdateConfig swaps the poll interval and resets the running ticker.
func (s *Scheduler) UpdateConfig(cfg config.SchedulerConfig) {
	s.mu.Lock()
	s.pollInterval = cfg.PollInterval
	s.mu.Unlock()
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollInterval <= 0 {
		return defaultPollInterval
	}
	return s.pollInterval
}

// Add validates the schedule and stores a new active query.
func (s *Scheduler) Add(name, schedule, query string) (*store.ScheduledQuery, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	normalized, err := NormalizeSchedule(schedule)
	if err != nil {
		return nil, err
	}
	next := NextRun(normalized, s.now())
	if next == nil {
		return nil, fmt.Errorf("schedule never fires: %s", schedule)
	}
	if name == "" {
		name = truncate(query, 40)
	}

	q := &store.ScheduledQuery{
		ID:        uuid.New().String(),
		Name:      name,
		Schedule:  normalized,
		Query:     query,
		Status:    StatusActive,
		NextRunAt: next,
	}
	if err := s.store.SaveSchedule(q); err != nil {
		return nil, err
	}
	slog.Info("schedule added", "id", q.ID, "name", q.Name, "next_run", next.Format(time.RFC3339))
	return q, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.interval())

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return nil
		case <-s.reloadCh:
			ticker.Reset(s.interval())
			slog.Info("scheduler config reloaded", "poll_interval", s.interval())
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll runs every schedule that is due, one after another.
func (s *Scheduler) Poll(ctx context.Context) {
	due, err := s.store.GetDueSchedules(s.now())
	if err != nil {
		slog.Error("failed to get due schedules", "error", err)
		return
	}
	for _, q := range due {
		if ctx.Err() != nil {
			return
		}
		s.execute(ctx, q)
	}
}

func (s *Scheduler) execute(ctx context.Context, q store.ScheduledQuery) {
	log := slog.With("schedule_id", q.ID, "name", q.Name)
	log.Info("executing scheduled query")

	state := workflow.NewState(q.Query)
	state.Mode = workflow.ModeScheduled
	err := s.wf.Execute(ctx, state, nil)

	lastStatus := "success"
	switch {
	case err != nil:
		lastStatus = "error"
		log.Error("scheduled query cancelled", "run_id", state.ID, "error", err)
	case state.Err != nil:
		lastStatus = "error"
		log.Error("scheduled query failed", "run_id", state.ID, "error", state.Err.Message)
	}

	next := NextRun(q.Schedule, s.now())
	if err := s.store.UpdateScheduleRun(q.ID, lastStatus, state.ID, next); err != nil {
		log.Error("failed to update schedule run", "error", err)
	}
	if next == nil {
		log.Info("no next run, marking schedule completed")
		if err := s.store.UpdateScheduleStatus(q.ID, StatusCompleted); err != nil {
			log.Error("failed to complete schedule", "error", err)
		}
	}

	s.publish(q, lastStatus, state.ID)
}

func (s *Scheduler) publish(q store.ScheduledQuery, status, runID string) {
	if s.events == nil {
		return
	}
	event := natsbus.NewEvent("schedule_executed", map[string]any{
		"id":     q.ID,
		"name":   q.Name,
		"status": status,
		"run_id": runID,
	})
	event.RunID = runID
	if err := s.events.PublishJSON(natsbus.TopicEventsSchedule(q.ID), event); err != nil {
		slog.Debug("publish schedule event failed", "error", err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
