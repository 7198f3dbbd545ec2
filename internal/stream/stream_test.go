package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/agent"
	"github.com/mtzanidakis/quorum/internal/knowledge"
	"github.com/mtzanidakis/quorum/internal/llm"
	"github.com/mtzanidakis/quorum/internal/router"
	"github.com/mtzanidakis/quorum/internal/synth"
	"github.com/mtzanidakis/quorum/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFunc func(ctx context.Context, q string) (router.Decision, error)

func (f routerFunc) Route(ctx context.Context, q string) (router.Decision, error) { return f(ctx, q) }

type specialists struct {
	mu      sync.Mutex
	replies map[agent.Type]string
	errs    map[agent.Type]error
	sent    []agent.Type
	stores  int
}

func (s *specialists) Send(ctx context.Context, t agent.Type, msg a2a.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, t)
	if t == agent.Knowledge {
		if req, err := knowledge.Decode(msg); err == nil && req.Kind() == knowledge.KindStore {
			s.stores++
			return "stored", nil
		}
	}
	if err := s.errs[t]; err != nil {
		return "", err
	}
	return s.replies[t], nil
}

type recorder struct {
	events []Event
	failOn Kind
}

func (r *recorder) Emit(ev Event) error {
	if r.failOn != "" && ev.Type == r.failOn {
		return errors.New("broken pipe")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []Kind {
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) outputs(name string) string {
	var b strings.Builder
	for _, ev := range r.events {
		if p, ok := ev.Payload.(AgentOutputPayload); ok && p.Agent == name {
			b.WriteString(p.Content)
		}
	}
	return b.String()
}

// assertOrdering checks that every sub-call is agent_start, breadcrumbs,
// then agent_complete or error, and that complete comes last.
func assertOrdering(t *testing.T, events []Event) {
	t.Helper()
	open := ""
	for i, ev := range events {
		switch p := ev.Payload.(type) {
		case AgentStartPayload:
			require.Empty(t, open, "event %d: agent_start for %s while %s is open", i, p.Agent, open)
			open = p.Agent
		case AgentCompletePayload:
			require.Equal(t, open, p.Agent, "event %d", i)
			open = ""
		case ErrorPayload:
			require.Equal(t, open, p.Agent, "event %d", i)
			open = ""
		case CompletePayload:
			require.Empty(t, open)
			require.Equal(t, len(events)-1, i, "complete must be last")
		default:
			require.NotEmpty(t, open, "event %d (%s) outside a sub-call", i, ev.Type)
		}
	}
	require.Empty(t, open, "stream ended inside a sub-call")
}

func newStreamer(d router.Decision, routeErr error, sp *specialists, answer string) *Streamer {
	model := llm.Func(func(context.Context, llm.Request) (string, error) { return answer, nil })
	wf := workflow.New(routerFunc(func(context.Context, string) (router.Decision, error) {
		return d, routeErr
	}), synth.New(model, 0), sp)
	return New(wf, nil)
}

func TestStreamFullRun(t *testing.T) {
	research := strings.Repeat("LangGraph models agents as graphs.\n", 12)
	sp := &specialists{replies: map[agent.Type]string{
		agent.Knowledge: "No relevant information found for: What is LangGraph?",
		agent.Research:  research,
		agent.Explainer: "Here is an example.",
	}}
	st := newStreamer(router.Decision{
		Agents:              []agent.Type{agent.Research, agent.Explainer},
		CheckKnowledgeFirst: true,
	}, nil, sp, "merged")

	rec := &recorder{}
	require.NoError(t, st.Run(context.Background(), "What is LangGraph?", rec))

	assertOrdering(t, rec.events)
	assert.Equal(t, research, rec.outputs("research"))
	assert.Equal(t, "Here is an example.", rec.outputs("explainer"))

	last := rec.events[len(rec.events)-1].Payload.(CompletePayload)
	assert.Equal(t, "merged", last.Answer)
	assert.Equal(t, []string{"knowledge", "research", "explainer"}, last.AgentsUsed)
	assert.Equal(t, 1, sp.stores, "answer written back")

	var tools []string
	for _, ev := range rec.events {
		if p, ok := ev.Payload.(ToolCallPayload); ok {
			tools = append(tools, p.Name)
		}
	}
	assert.Equal(t, []string{"web_search", "context7_lookup"}, tools)

	for _, ev := range rec.events {
		if p, ok := ev.Payload.(AgentCompletePayload); ok && p.Agent == "research" {
			assert.Equal(t, 2*len(strings.Fields(research)), p.Tokens)
			assert.Equal(t, research, p.Content)
		}
	}
}

func TestStreamRoutingFailure(t *testing.T) {
	sp := &specialists{}
	st := newStreamer(router.Decision{}, errors.New("classifier down"), sp, "")

	rec := &recorder{}
	require.NoError(t, st.Run(context.Background(), "q", rec))

	assertOrdering(t, rec.events)
	assert.Equal(t, []Kind{KindAgentStart, KindMessage, KindError}, rec.kinds())
	assert.Equal(t, ErrorPayload{Agent: "orchestrator", Message: "Routing failed: classifier down"},
		rec.events[2].Payload)
	assert.Empty(t, sp.sent)
}

type executorFunc func(ctx context.Context, s *workflow.State, obs workflow.Observer) error

func (f executorFunc) Execute(ctx context.Context, s *workflow.State, obs workflow.Observer) error {
	return f(ctx, s, obs)
}

func TestStreamRunCancelledEmitsError(t *testing.T) {
	st := New(executorFunc(func(context.Context, *workflow.State, workflow.Observer) error {
		return context.Canceled
	}), nil)

	rec := &recorder{}
	err := st.Run(context.Background(), "q", rec)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, []Kind{KindError}, rec.kinds())
	assert.Equal(t, ErrorPayload{Agent: Orchestrator, Message: context.Canceled.Error()}, rec.events[0].Payload)
}

func TestStreamRoutingModelFailure(t *testing.T) {
	sp := &specialists{}
	failing := llm.Func(func(context.Context, llm.Request) (string, error) {
		return "", errors.New("classifier down")
	})
	wf := workflow.New(router.New(failing, 0), synth.New(failing, 0), sp)

	rec := &recorder{}
	require.NoError(t, New(wf, nil).Run(context.Background(), "q", rec))

	assertOrdering(t, rec.events)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, ErrorPayload{Agent: Orchestrator, Message: "Routing failed: classifier down"}, last.Payload)
	assert.Empty(t, sp.sent)
}

func TestStreamSubAgentFailureContinues(t *testing.T) {
	sp := &specialists{
		replies: map[agent.Type]string{agent.Explainer: "explained"},
		errs:    map[agent.Type]error{agent.Research: errors.New("timeout connecting to agent")},
	}
	st := newStreamer(router.Decision{
		Agents: []agent.Type{agent.Research, agent.Explainer},
	}, nil, sp, "unused")

	rec := &recorder{}
	require.NoError(t, st.Run(context.Background(), "q", rec))

	assertOrdering(t, rec.events)
	var sawError bool
	for _, ev := range rec.events {
		if p, ok := ev.Payload.(ErrorPayload); ok {
			assert.Equal(t, "research", p.Agent)
			sawError = true
		}
	}
	assert.True(t, sawError)

	last := rec.events[len(rec.events)-1].Payload.(CompletePayload)
	assert.Equal(t, "explained", last.Answer)
	assert.Equal(t, []string{"explainer"}, last.Sources)
}

func TestStreamConsumerGoneCancelsRun(t *testing.T) {
	sp := &specialists{replies: map[agent.Type]string{
		agent.Research:  "R",
		agent.Explainer: "E",
	}}
	st := newStreamer(router.Decision{
		Agents: []agent.Type{agent.Research, agent.Explainer},
	}, nil, sp, "merged")

	rec := &recorder{failOn: KindToolCall}
	err := st.Run(context.Background(), "q", rec)
	require.Error(t, err)

	assert.NotContains(t, rec.kinds(), KindComplete)
	assert.NotContains(t, rec.kinds(), KindToolCall)
	assert.Empty(t, sp.sent, "no specialist reached after the consumer left")
	assert.Zero(t, sp.stores)
}

type busRecorder struct {
	topics []string
}

func (b *busRecorder) PublishJSON(topic string, _ any) error {
	b.topics = append(b.topics, topic)
	return nil
}

func TestStreamPublishesEvents(t *testing.T) {
	sp := &specialists{replies: map[agent.Type]string{agent.Research: "R"}}
	model := llm.Func(func(context.Context, llm.Request) (string, error) { return "", nil })
	wf := workflow.New(routerFunc(func(context.Context, string) (router.Decision, error) {
		return router.Decision{Agents: []agent.Type{agent.Research}}, nil
	}), synth.New(model, 0), sp)
	bus := &busRecorder{}

	rec := &recorder{}
	require.NoError(t, New(wf, bus).Run(context.Background(), "q", rec))

	require.Len(t, bus.topics, len(rec.events))
	assert.True(t, strings.HasPrefix(bus.topics[0], "events.query."))
	for _, topic := range bus.topics {
		assert.Equal(t, bus.topics[0], topic)
	}
}

func TestChunk(t *testing.T) {
	lines := strings.Repeat("a line of text that is forty chars long\n", 20)
	long := strings.Repeat("x", 450)
	mixed := "short\n" + long + "\ntail"
	unicode := strings.Repeat("λ", 300)

	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty", "", 0},
		{"short", "hello", 1},
		{"exact", strings.Repeat("y", ChunkSize), 1},
		{"lines", lines, 4},
		{"long line", long, 3},
		{"mixed", mixed, 5},
		{"unicode", unicode, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(tt.content, ChunkSize)
			assert.Len(t, chunks, tt.want)
			assert.Equal(t, tt.content, strings.Join(chunks, ""))
			for _, c := range chunks {
				assert.LessOrEqual(t, len(c), ChunkSize)
				assert.True(t, utf8.ValidString(c))
			}
		})
	}
}

func TestChunkBreaksOnLines(t *testing.T) {
	content := strings.Repeat("0123456789\n", 50)
	for _, c := range Chunk(content, ChunkSize) {
		assert.True(t, strings.HasSuffix(c, "\n"), "chunk %q cut mid-line", c)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 6, EstimateTokens("one two\n three "))
}

func TestSSE(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stream", nil)

	sse, err := NewSSE(rr, req)
	require.NoError(t, err)
	require.NoError(t, sse.Emit(AgentStart("research")))
	require.NoError(t, sse.Emit(Complete("done", nil, nil, 1.5)))

	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rr.Header().Get("X-Accel-Buffering"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), `data: {"type":"agent_start","payload":{"agent":"research"}}`+"\n\n"))

	var got []Raw
	require.NoError(t, Read(strings.NewReader(rr.Body.String()), func(ev Raw) error {
		got = append(got, ev)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, KindComplete, got[1].Type)

	var p CompletePayload
	require.NoError(t, json.Unmarshal(got[1].Payload, &p))
	assert.Equal(t, "done", p.Answer)
	assert.Equal(t, []string{}, p.Sources)
}

func TestSSEStopsWhenClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stream", nil).WithContext(ctx)

	sse, err := NewSSE(rr, req)
	require.NoError(t, err)
	cancel()
	assert.Error(t, sse.Emit(AgentStart("research")))
}
