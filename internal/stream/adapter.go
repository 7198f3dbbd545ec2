package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtzanidakis/quorum/internal/agent"
	"github.com/mtzanidakis/quorum/internal/natsbus"
	"github.com/mtzanidakis/quorum/internal/workflow"
)

// Sink receives events in order. An error means the consumer is gone.
type Sink interface {
	Emit(Event) error
}

type Executor interface {
	Execute(ctx context.Context, s *workflow.State, obs workflow.Observer) error
}

type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Streamer drives a workflow run and reports each step as events.
type Streamer struct {
	wf     Executor
	events Publisher
}

// New returns a Streamer. events may be nil.
func New(wf Executor, events Publisher) *Streamer {
	return &Streamer{wf: wf, events: events}
}

// Run streams one query into sink. A successful run ends with a complete
// event; a routing or synthesis failure ends with an error event and Run
// returns nil. Run returns an error only when the sink failed or ctx ended
// first, in which case the run is abandoned without write-back. When the run
// stops for any reason other than the sink, a final orchestrator error event
// is still attempted.
func (st *Streamer) Run(ctx context.Context, query string, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := workflow.NewState(query)
	s.Mode = workflow.ModeStream
	obs := &observer{sink: sink, cancel: cancel, events: st.events, runID: s.ID}

	start := time.Now()
	err := st.wf.Execute(ctx, s, obs)
	if obs.err != nil {
		return obs.err
	}
	if err != nil {
		obs.emit(Error(Orchestrator, err.Error()))
		return err
	}
	if s.Err != nil {
		return nil
	}
	ans := s.Answer()
	obs.emit(Complete(ans.Answer, ans.Sources, ans.AgentsUsed, Seconds(start)))
	return obs.err
}

type tool struct {
	name   string
	input  string
	result string
}

var tools = map[agent.Type]tool{
	agent.Research:  {name: "web_search", input: "query", result: "Results retrieved"},
	agent.Explainer: {name: "context7_lookup", input: "topic", result: "Documentation retrieved"},
}

// observer turns workflow step boundaries into events. It is only called
// from the goroutine driving the run.
type observer struct {
	sink    Sink
	cancel  context.CancelFunc
	events  Publisher
	runID   string
	started time.Time
	err     error
}

func (o *observer) emit(ev Event) {
	if o.err != nil {
		return
	}
	if err := o.sink.Emit(ev); err != nil {
		o.err = fmt.Errorf("emit %s: %w", ev.Type, err)
		slog.Info("stream consumer gone, cancelling run", "run_id", o.runID, "error", err)
		o.cancel()
		return
	}
	if o.events != nil {
		msg := natsbus.NewEvent(string(ev.Type), ev.Payload)
		msg.RunID = o.runID
		if err := o.events.PublishJSON(natsbus.TopicEventsQuery(o.runID), msg); err != nil {
			slog.Debug("publish stream event failed", "error", err)
		}
	}
}

func (o *observer) StepStarted(_ context.Context, s *workflow.State, step workflow.Step, eff workflow.Effect) {
	o.started = time.Now()

	switch step {
	case workflow.StepRoute:
		o.emit(AgentStart(Orchestrator))
		o.emit(Message("user", Orchestrator, "Query: "+clip(s.Query, 60)+"..."))

	case workflow.StepCheckKnowledge, workflow.StepCallResearch, workflow.StepCallExplainer:
		call, ok := eff.(workflow.EffectCall)
		if !ok {
			return
		}
		name := call.Agent.String()
		o.emit(AgentStart(name))
		switch call.Agent {
		case agent.Knowledge:
			o.emit(Message(Orchestrator, name, "Search: "+clip(s.Query, 40)+"..."))
		case agent.Research:
			o.emit(Message(Orchestrator, name, "Research: "+clip(s.Query, 40)+"..."))
		case agent.Explainer:
			o.emit(Message(Orchestrator, name, "Generate explanation with code examples"))
		}
		if t, ok := tools[call.Agent]; ok {
			o.emit(ToolCall(name, t.name, map[string]string{t.input: clip(s.Query, 30)}))
		}

	case workflow.StepSynthesize:
		o.emit(AgentStart(Orchestrator))
		o.emit(Message(Orchestrator, "synthesizer", "Combining all responses"))
		o.emit(AgentOutput(Orchestrator, "## Synthesis\n\n"))
		o.emit(AgentOutput(Orchestrator, "**Analyzing agent responses...**\n"))
	}
}

func (o *observer) StepFinished(_ context.Context, s *workflow.State, step workflow.Step, eff workflow.Effect, output string, err error) {
	switch step {
	case workflow.StepRoute:
		if err != nil {
			o.emit(Error(Orchestrator, failureMessage(s, err)))
			return
		}
		o.emit(Message(Orchestrator, "router", "Routing to: "+output))
		o.emit(AgentComplete(Orchestrator, Seconds(o.started), ""))

	case workflow.StepCheckKnowledge, workflow.StepCallResearch, workflow.StepCallExplainer:
		call, ok := eff.(workflow.EffectCall)
		if !ok {
			return
		}
		name := call.Agent.String()
		if err != nil {
			o.emit(Error(name, err.Error()))
			return
		}
		if t, ok := tools[call.Agent]; ok {
			o.emit(ToolResult(name, t.name, t.result))
		}
		chunks := Chunk(output, ChunkSize)
		for _, c := range chunks {
			o.emit(AgentOutput(name, c))
		}
		switch call.Agent {
		case agent.Knowledge:
			o.emit(Message(name, Orchestrator, fmt.Sprintf("Found %d results", len(chunks))))
		case agent.Research:
			o.emit(Message(name, Orchestrator, "Research complete"))
		case agent.Explainer:
			o.emit(Message(name, Orchestrator, "Explanation ready"))
		}
		o.emit(AgentComplete(name, Seconds(o.started), output))

	case workflow.StepSynthesize:
		if err != nil {
			o.emit(Error(Orchestrator, failureMessage(s, err)))
			return
		}
		ans := s.Answer()
		o.emit(AgentOutput(Orchestrator, fmt.Sprintf(
			"• Sources: %d\n• Agents: %d\n\n**Quality check:** ✓ Complete\n",
			len(ans.Sources), len(ans.AgentsUsed))))
		o.emit(Message("synthesizer", Orchestrator, "Synthesis complete"))
		o.emit(Event{KindAgentComplete, AgentCompletePayload{
			Agent:    Orchestrator,
			Duration: Seconds(o.started),
			Tokens:   EstimateTokens(ans.Answer),
		}})
	}
}

func failureMessage(s *workflow.State, err error) string {
	if s.Err != nil {
		return s.Err.Message
	}
	return err.Error()
}
