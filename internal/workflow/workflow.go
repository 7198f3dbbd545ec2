package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/agent"
	"github.com/mtzanidakis/quorum/internal/natsbus"
	"github.com/mtzanidakis/quorum/internal/router"
	"github.com/mtzanidakis/quorum/internal/store"
)

const (
	ModeSync      = "sync"
	ModeStream    = "stream"
	ModeScheduled = "scheduled"
)

type Router interface {
	Route(ctx context.Context, query string) (router.Decision, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, query string, responses []agent.Response) (agent.Synthesized, error)
}

// Caller sends a message to a specialist and returns its reply text.
type Caller interface {
	Send(ctx context.Context, t agent.Type, msg a2a.Message) (string, error)
}

// Observer is told about every step that performs an effect. Steps that pass
// straight through (research not routed) are not reported. StepFinished sees
// the state after the step's update was applied.
type Observer interface {
	StepStarted(ctx context.Context, s *State, step Step, eff Effect)
	StepFinished(ctx context.Context, s *State, step Step, eff Effect, output string, err error)
}

type NopObserver struct{}

func (NopObserver) StepStarted(context.Context, *State, Step, Effect)                {}
func (NopObserver) StepFinished(context.Context, *State, Step, Effect, string, error) {}

type RunStore interface {
	SaveRun(r *store.Run) error
}

type Publisher interface {
	PublishJSON(topic string, v any) error
}

type Workflow struct {
	router Router
	synth  Synthesizer
	caller Caller
	runs   RunStore
	events Publisher
}

type Option func(*Workflow)

// WithRuns records every run.
func WithRuns(rs RunStore) Option {
	return func(w *Workflow) { w.runs = rs }
}

// WithEvents publishes run lifecycle events.
func WithEvents(p Publisher) Option {
	return func(w *Workflow) { w.events = p }
}

func New(r Router, s Synthesizer, c Caller, opts ...Option) *Workflow {
	w := &Workflow{router: r, synth: s, caller: c}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run answers query synchronously. It never fails: terminal failures come
// back as an "Error: ..." answer.
func (w *Workflow) Run(ctx context.Context, query string) agent.Synthesized {
	return w.RunMode(ctx, query, ModeSync)
}

// RunMode is Run with the run recorded under mode.
func (w *Workflow) RunMode(ctx context.Context, query, mode string) agent.Synthesized {
	s := NewState(query)
	s.Mode = mode
	if err := w.Execute(ctx, s, NopObserver{}); err != nil {
		return agent.Synthesized{Answer: "Error: " + err.Error(), Sources: []string{}, AgentsUsed: []string{}}
	}
	return s.Answer()
}

// Execute drives s to StepDone. It only returns an error when ctx is done
// before the run finishes; in that case no write-back happens.
func (w *Workflow) Execute(ctx context.Context, s *State, obs Observer) error {
	if obs == nil {
		obs = NopObserver{}
	}
	log := slog.With("run_id", s.ID)
	start := time.Now()
	log.Info("query started", "query", truncate(s.Query, 100), "mode", s.Mode)
	w.publish(s, "query_started", map[string]any{"run_id": s.ID, "query": s.Query, "mode": s.Mode})

	err := w.drive(ctx, s, obs, log)
	w.finish(s, time.Since(start), err, log)
	return err
}

func (w *Workflow) drive(ctx context.Context, s *State, obs Observer, log *slog.Logger) error {
	for s.Step != StepDone {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, eff := Transition(s)
		if next == StepDone {
			if p, ok := eff.(EffectPersist); ok {
				w.persist(ctx, s, p, obs, log)
			}
			s.Step = StepDone
			break
		}

		if _, skip := eff.(EffectNone); skip {
			s.Step = next
			continue
		}

		obs.StepStarted(ctx, s, next, eff)
		u, out, err := w.perform(ctx, s, next, eff)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			var rule Rule
			u, rule = onFailure(next, agentOf(eff), err)
			switch rule.Action {
			case Fatal:
				log.Error("step failed", "step", next, "error", err)
			default:
				log.Warn("step failed, continuing", "step", next, "error", err)
			}
		}
		s.Apply(u)
		obs.StepFinished(ctx, s, next, eff, out, err)
		s.Step = next
	}
	return nil
}

func (w *Workflow) perform(ctx context.Context, s *State, step Step, eff Effect) (Update, string, error) {
	switch eff := eff.(type) {
	case EffectRoute:
		d, err := w.router.Route(ctx, s.Query)
		if err != nil {
			return Update{}, "", err
		}
		return Update{Routing: &d}, joinTypes(d.Agents), nil

	case EffectCall:
		content, err := w.caller.Send(ctx, eff.Agent, eff.Message)
		if err != nil {
			return Update{}, "", err
		}
		u := Update{Responses: []agent.Response{agent.Succeeded(eff.Agent, content)}}
		switch eff.Agent {
		case agent.Knowledge:
			u.KnowledgeResult = ptr(content)
		case agent.Research:
			u.ResearchResult = ptr(content)
		case agent.Explainer:
			u.ExplainerResult = ptr(content)
		}
		return u, content, nil

	case EffectSynthesize:
		final, err := w.synth.Synthesize(ctx, s.Query, s.Responses)
		if err != nil {
			return Update{}, "", err
		}
		return Update{Final: &final}, final.Answer, nil

	case EffectAnswer:
		final := eff.Final
		return Update{Final: &final}, final.Answer, nil
	}
	return Update{}, "", errors.New("unexpected effect for step " + string(step))
}

// persist is best-effort: skipped once ctx is done, errors only logged.
func (w *Workflow) persist(ctx context.Context, s *State, p EffectPersist, obs Observer, log *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	obs.StepStarted(ctx, s, StepPersist, p)
	_, err := w.caller.Send(ctx, agent.Knowledge, p.Message)
	if err != nil {
		log.Warn("knowledge write-back failed", "error", err)
		if u, rule := onFailure(StepPersist, agent.Knowledge, err); rule.Action != Swallow {
			s.Apply(u)
		}
	}
	obs.StepFinished(ctx, s, StepPersist, p, "", err)
}

func (w *Workflow) finish(s *State, elapsed time.Duration, err error, log *slog.Logger) {
	ans := s.Answer()
	run := &store.Run{
		ID:         s.ID,
		Query:      s.Query,
		Answer:     ans.Answer,
		Sources:    ans.Sources,
		AgentsUsed: ans.AgentsUsed,
		Status:     store.RunCompleted,
		Mode:       s.Mode,
		DurationMs: elapsed.Milliseconds(),
	}
	event := "query_completed"
	switch {
	case err != nil:
		run.Status = store.RunCancelled
		run.Error = err.Error()
		run.Answer = ""
		event = "query_failed"
	case s.Err != nil:
		run.Status = store.RunFailed
		run.Error = s.Err.Message
		event = "query_failed"
	}
	if s.Routing != nil {
		run.Reasoning = s.Routing.Reasoning
	}

	log.Info("query finished", "status", run.Status, "duration_ms", run.DurationMs, "agents_used", ans.AgentsUsed)
	w.publish(s, event, map[string]any{
		"run_id":      s.ID,
		"status":      run.Status,
		"error":       run.Error,
		"agents_used": ans.AgentsUsed,
		"duration_ms": run.DurationMs,
	})

	if w.runs != nil {
		if err := w.runs.SaveRun(run); err != nil {
			log.Warn("save run failed", "error", err)
		}
	}
}

func (w *Workflow) publish(s *State, eventType string, payload map[string]any) {
	if w.events == nil {
		return
	}
	event := natsbus.NewEvent(eventType, payload)
	event.RunID = s.ID
	if err := w.events.PublishJSON(natsbus.TopicEventsQuery(s.ID), event); err != nil {
		slog.Debug("publish run event failed", "error", err)
	}
}

func agentOf(eff Effect) agent.Type {
	if c, ok := eff.(EffectCall); ok {
		return c.Agent
	}
	return ""
}

func joinTypes(types []agent.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func newRunID() string {
	return uuid.New().String()
}
