package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mtzanidakis/quorum/internal/natsbus"
	"github.com/mtzanidakis/quorum/internal/scheduler"
	"github.com/mtzanidakis/quorum/internal/store"
)

const probeTimeout = 3 * time.Second

func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)

	mux.HandleFunc("GET /api/schedules", s.listSchedules)
	mux.HandleFunc("POST /api/schedules", s.createSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", s.updateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.deleteSchedule)

	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("POST /api/secrets", s.createSecret)
	mux.HandleFunc("DELETE /api/secrets/{id}", s.deleteSecret)

	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListSchedules()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, q := range list {
		out = append(out, scheduleToAPI(q))
	}
	jsonResponse(w, out)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Schedule string `json:"schedule"`
		Query    string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Schedule == "" || body.Query == "" {
		jsonError(w, "schedule and query are required", http.StatusBadRequest)
		return
	}

	q, err := s.sched.Add(body.Name, body.Schedule, body.Query)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.publishConfigEvent("schedule_created", q.ID)
	jsonResponse(w, scheduleToAPI(*q))
}

// updateSchedule pauses or resumes a schedule. Resuming recomputes the
// next run so a long pause does not fire a backlog.
func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	q, err := s.store.GetSchedule(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if q == nil {
		jsonError(w, "schedule not found", http.StatusNotFound)
		return
	}

	q.Status = scheduler.StatusPaused
	if body.Enabled {
		q.NextRunAt = scheduler.CalculateNextRun(q.Schedule)
		if q.NextRunAt == nil {
			jsonError(w, "schedule never fires again", http.StatusConflict)
			return
		}
		q.Status = scheduler.StatusActive
	}
	if err := s.store.SaveSchedule(q); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.publishConfigEvent("schedule_updated", q.ID)
	jsonResponse(w, scheduleToAPI(*q))
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteSchedule(id); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.publishConfigEvent("schedule_deleted", id)
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func scheduleToAPI(q store.ScheduledQuery) map[string]any {
	m := map[string]any{
		"id":               q.ID,
		"name":             q.Name,
		"schedule":         q.Schedule,
		"schedule_display": scheduler.FormatSchedule(q.Schedule),
		"query":            q.Query,
		"enabled":          q.Status == scheduler.StatusActive,
		"status":           q.Status,
		"last_status":      q.LastStatus,
		"last_run_id":      q.LastRunID,
	}
	if q.NextRunAt != nil {
		m["next_run_at"] = q.NextRunAt.UTC().Format(time.RFC3339)
	}
	if q.LastRunAt != nil {
		m["last_run_at"] = q.LastRunAt.UTC().Format(time.RFC3339)
	}
	return m
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.store.ListSecrets()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if secrets == nil {
		secrets = []store.Secret{}
	}
	jsonResponse(w, secrets)
}

func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		jsonError(w, "vault is not configured", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Value       string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name == "" || body.Value == "" {
		jsonError(w, "name and value are required", http.StatusBadRequest)
		return
	}

	sealed, err := s.vault.Seal(body.Name, []byte(body.Value))
	if err != nil {
		jsonError(w, "encryption failed", http.StatusInternalServerError)
		return
	}
	sec := &store.Secret{
		ID:          body.Name,
		Name:        body.Name,
		Description: body.Description,
		Value:       sealed.Ciphertext,
		Nonce:       sealed.Nonce,
	}
	if err := s.store.SaveSecret(sec); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.publishConfigEvent("secret_saved", sec.ID)
	jsonResponse(w, map[string]string{"id": sec.ID, "name": sec.Name, "description": sec.Description})
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := s.store.DeleteSecret(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		jsonError(w, "secret not found", http.StatusNotFound)
		return
	}
	s.publishConfigEvent("secret_deleted", id)
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetRunStats()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	schedules, err := s.store.ListSchedules()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	active := 0
	for _, q := range schedules {
		if q.Status == scheduler.StatusActive {
			active++
		}
	}

	jsonResponse(w, map[string]any{
		"status":           "ok",
		"name":             s.config().Orchestrator.Name,
		"version":          s.version,
		"uptime":           formatUptime(time.Since(s.startedAt)),
		"nats":             s.natsURL != "",
		"runs":             stats,
		"schedules":        len(schedules),
		"active_schedules": active,
		"agents":           s.probeAgents(r.Context()),
	})
}

// probeAgents checks every configured specialist in parallel.
func (s *Server) probeAgents(ctx context.Context) map[string]string {
	agents := s.config().Agents
	urls := map[string]string{
		"research":  agents.Research,
		"explainer": agents.Explainer,
		"knowledge": agents.Knowledge,
	}
	out := make(map[string]string, len(urls))
	if s.prober == nil {
		for name := range urls {
			out[name] = "unknown"
		}
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, url := range urls {
		wg.Go(func() {
			status := "healthy"
			if url == "" {
				status = "unconfigured"
			} else if _, err := s.prober.Health(ctx, url); err != nil {
				status = "unreachable"
			}
			mu.Lock()
			out[name] = status
			mu.Unlock()
		})
	}
	wg.Wait()
	return out
}

func (s *Server) publishConfigEvent(eventType, id string) {
	if s.nats == nil {
		return
	}
	_ = s.nats.PublishJSON(natsbus.TopicEventsConfig, natsbus.NewEvent(eventType, map[string]string{"id": id}))
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
