package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/stream"
	"github.com/mtzanidakis/quorum/internal/workflow"
)

// handleSend runs the workflow for a tasks/send call. A params.id from the
// caller becomes the run id so tasks/get can find the run later.
func (s *Server) handleSend(ctx context.Context, p a2a.Params) (a2a.Result, error) {
	query := strings.TrimSpace(p.Message.Text())
	if query == "" {
		return a2a.Result{}, a2a.ErrMissingQuery
	}

	state := workflow.NewState(query)
	if p.ID != "" {
		state.ID = p.ID
	}
	if err := s.wf.Execute(ctx, state, nil); err != nil {
		return a2a.Result{}, fmt.Errorf("run %s: %w", state.ID, err)
	}

	ans := state.Answer()
	return a2a.TextResult(ans.Answer, map[string]any{
		"sources":     ans.Sources,
		"agents_used": ans.AgentsUsed,
		"run_id":      state.ID,
	}), nil
}

// handleGet answers tasks/get from the run history.
func (s *Server) handleGet(_ context.Context, taskID string) (any, error) {
	if s.store == nil {
		return nil, nil
	}
	run, err := s.store.GetRun(taskID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}
	return map[string]any{
		"status":  run.Status,
		"task_id": run.ID,
		"error":   run.Error,
		"result": a2a.TextResult(run.Answer, map[string]any{
			"sources":     run.Sources,
			"agents_used": run.AgentsUsed,
		}),
	}, nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query  string      `json:"query"`
		Params *a2a.Params `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	query := body.Query
	if query == "" && body.Params != nil {
		query = body.Params.Message.Text()
	}
	query = strings.TrimSpace(query)
	if query == "" {
		jsonError(w, "Missing query", http.StatusBadRequest)
		return
	}

	sse, err := stream.NewSSE(w, r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("starting stream", "query", clip(query, 100))
	if err := s.streamer.Run(r.Context(), query, sse); err != nil {
		slog.Warn("stream ended early", "error", err)
	}
}

func (s *Server) card() a2a.Card {
	full := s.config()
	cfg := full.Orchestrator
	version := cfg.Version
	if version == "" {
		version = s.version
	}
	return a2a.Card{
		Name:         cfg.Name,
		Version:      version,
		Description:  cfg.Description,
		URL:          full.URL(),
		Capabilities: a2a.Capabilities{Streaming: true, PushNotifications: false},
		Skills: []a2a.Skill{
			{ID: "route-query", Name: "Route Query", Description: "Analyzes user queries and routes to appropriate agents"},
			{ID: "synthesize-response", Name: "Synthesize Response", Description: "Combines responses from multiple agents into coherent answer"},
		},
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
