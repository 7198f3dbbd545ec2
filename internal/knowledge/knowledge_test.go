package knowledge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, minSimilarity float64) (*Service, *store.Store) {
	t.Helper()
	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "knowledge.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := NewService(st, config.KnowledgeConfig{Name: "knowledge-agent", MinSimilarity: minSimilarity, Limit: 5}, nil)
	tick := time.Unix(1700000000, 0)
	svc.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	return svc, st
}

func TestRequestEncoding(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		text string
	}{
		{"store", Store{Query: "q", Content: "answer", Source: "orchestrator"}, "Store this research finding:\nQuery: q\nAnswer: answer"},
		{"search", Search{Query: "what is nats", Limit: 3}, "Search for relevant information about: what is nats"},
		{"context", Context{Session: "s1"}, "Get conversation context"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Encode(tt.req)
			assert.Equal(t, tt.text, msg.Text())
			got, err := Decode(msg)
			require.NoError(t, err)
			assert.Equal(t, tt.req, got)
		})
	}
}

func TestDecodePlainText(t *testing.T) {
	got, err := Decode(a2a.UserMessage("Search for relevant information about: goroutines"))
	require.NoError(t, err)
	assert.Equal(t, Search{Query: "goroutines"}, got)

	got, err = Decode(a2a.UserMessage("Store this please"))
	require.NoError(t, err)
	assert.Equal(t, Search{Query: "Store this please"}, got, "text never selects store")

	_, err = Decode(a2a.UserMessage("  "))
	assert.ErrorIs(t, err, a2a.ErrMissingQuery)
}

func TestDecodeRejectsBadData(t *testing.T) {
	msg, err := a2a.UserMessage("x").WithData(map[string]string{"kind": "delete"})
	require.NoError(t, err)
	_, err = Decode(msg)
	assert.ErrorContains(t, err, "unknown knowledge request kind")

	msg, err = a2a.UserMessage("x").WithData(map[string]string{"kind": "store", "query": "q"})
	require.NoError(t, err)
	_, err = Decode(msg)
	assert.ErrorContains(t, err, "without content")
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, []string{"langgraph", "state", "machines"}, Terms("What is LangGraph? State machines, the state!"))
	assert.InDelta(t, 1.0, Similarity("LangGraph state", "langgraph keeps STATE"), 0.001)
	assert.InDelta(t, 0.5, Similarity("langgraph docker", "about langgraph"), 0.001)
	assert.Zero(t, Similarity("what is it", "anything"))
}

func TestExtractTopics(t *testing.T) {
	assert.Equal(t, []string{"langgraph", "agent", "python"}, ExtractTopics("Building agents in Python with LangGraph"))
	assert.Empty(t, ExtractTopics("nothing to see here"))
	assert.Len(t, ExtractTopics("langchain langgraph crewai autogen pydantic agno openai"), MaxTopics)
	assert.NotContains(t, ExtractTopics("object storage"), "rag")
}

func TestStoreAndSearch(t *testing.T) {
	svc, st := newTestService(t, 0.5)

	out, err := svc.Store(Store{Query: "What is LangGraph?", Content: "LangGraph builds agent workflows as graphs.", Source: "orchestrator"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "✅ Stored knowledge entry: orchestrator_"), out)
	assert.True(t, strings.HasSuffix(out, "Topics: langgraph, agent"), out)

	out, err = svc.Store(Store{Content: "Weather is nice"})
	require.NoError(t, err)
	assert.Contains(t, out, "entry: unknown_")
	assert.True(t, strings.HasSuffix(out, "Topics: general"))

	n, err := st.CountKnowledge()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out, err = svc.Search(Search{Query: "langgraph workflows"})
	require.NoError(t, err)
	parts := strings.Split(out, "\n---\n")
	require.Len(t, parts, 2)
	assert.Equal(t, "Found 1 relevant entries:\n", parts[0])
	assert.Contains(t, parts[1], "**1. From orchestrator** (Relevance: 100%)")
	assert.Contains(t, parts[1], "Query: What is LangGraph?")
	assert.Contains(t, parts[1], "Content: LangGraph builds agent workflows as graphs....")

	out, err = svc.Search(Search{Query: "kubernetes operators"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant information found for: kubernetes operators", out)
}

func TestSearchRanksAndLimits(t *testing.T) {
	svc, _ := newTestService(t, 0.1)
	for _, c := range []string{"go channels", "go channels and goroutines", "channels"} {
		_, err := svc.Store(Store{Query: c, Content: c, Source: "research"})
		require.NoError(t, err)
	}

	hits, err := svc.Find("go goroutines channels", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "go channels and goroutines", hits[0].Entry.Query)
	assert.Equal(t, "go channels", hits[1].Entry.Query)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestSessionContext(t *testing.T) {
	svc, _ := newTestService(t, 0.5)
	ctx := context.Background()

	out, err := svc.Handle(ctx, Context{Session: "s1"}, "")
	require.NoError(t, err)
	assert.Equal(t, "No previous conversation context.", out)

	_, err = svc.Handle(ctx, Search{Query: "nats"}, "s1")
	require.NoError(t, err)
	_, err = svc.Handle(ctx, Search{Query: "sqlite"}, "other")
	require.NoError(t, err)

	out, err = svc.Handle(ctx, Context{}, "s1")
	require.NoError(t, err)
	assert.Equal(t, "user: Search for relevant information about: nats\nassistant: No relevant information found for: nats", out)
}

func TestSessionContextKeepsLastFive(t *testing.T) {
	svc, _ := newTestService(t, 0.5)
	ctx := context.Background()
	for _, q := range []string{"one", "two", "three"} {
		_, err := svc.Handle(ctx, Search{Query: q}, "")
		require.NoError(t, err)
	}

	out, err := svc.Context(DefaultSession)
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "assistant: No relevant information found for: one", lines[0])
	assert.True(t, strings.HasPrefix(lines[4], "assistant:"))
}

type busRecorder struct {
	topics []string
}

func (b *busRecorder) PublishJSON(topic string, _ any) error {
	b.topics = append(b.topics, topic)
	return nil
}

func TestStorePublishesEvent(t *testing.T) {
	svc, _ := newTestService(t, 0.5)
	bus := &busRecorder{}
	svc.events = bus

	_, err := svc.Store(Store{Query: "q", Content: "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"events.knowledge"}, bus.topics)
}

func TestHandlerOverA2A(t *testing.T) {
	svc, st := newTestService(t, 0.5)
	mux := http.NewServeMux()
	a2a.Mount(mux, svc.Handler(), "knowledge-agent", func() a2a.Card {
		return Card(config.KnowledgeConfig{Name: "knowledge-agent"}, "1.0.0", "http://localhost:8003")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := a2a.NewClient(5*time.Second, nil)
	ctx := context.Background()

	out, err := client.Send(ctx, srv.URL, Encode(Store{Query: "what is zstd", Content: "zstd is a compression format", Source: "orchestrator"}))
	require.NoError(t, err)
	assert.Contains(t, out, "Stored knowledge entry")
	n, _ := st.CountKnowledge()
	assert.Equal(t, 1, n)

	out, err = client.SendTask(ctx, srv.URL, "Search for relevant information about: zstd compression")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Found 1 relevant entries:"), out)

	_, err = client.SendTask(ctx, srv.URL, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, a2a.ErrRemote))
	var rpcErr *a2a.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeInvalidParams, rpcErr.Code)

	card, err := client.Card(ctx, srv.URL)
	require.NoError(t, err)
	require.Len(t, card.Skills, 3)
	assert.Equal(t, "store-knowledge", card.Skills[0].ID)

	health, err := client.Health(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "knowledge-agent", health.Agent)
}
