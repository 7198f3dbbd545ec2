package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/natsbus"
	"github.com/mtzanidakis/quorum/internal/store"
)

const (
	DefaultSession = "default"
	DefaultSource  = "unknown"

	contextMessages = 5
	noContext       = "No previous conversation context."
)

type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Service answers knowledge requests from entries and session history kept
// in the store.
type Service struct {
	store         *store.Store
	events        Publisher
	limit         int
	minSimilarity float64
	now           func() time.Time
}

// NewService returns a Service. events may be nil.
func NewService(s *store.Store, cfg config.KnowledgeConfig, events Publisher) *Service {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	return &Service{
		store:         s,
		events:        events,
		limit:         limit,
		minSimilarity: cfg.MinSimilarity,
		now:           time.Now,
	}
}

// Hit is one search result.
type Hit struct {
	Entry      store.KnowledgeEntry
	Similarity float64
}

// Handle runs req and records the exchange in the session history. Context
// requests only read the history.
func (s *Service) Handle(ctx context.Context, req Request, session string) (string, error) {
	if session == "" {
		session = DefaultSession
	}

	if c, ok := req.(Context); ok {
		if c.Session != "" {
			session = c.Session
		}
		return s.Context(session)
	}

	s.remember(session, "user", Text(req))

	var out string
	var err error
	switch r := req.(type) {
	case Store:
		out, err = s.Store(r)
	case Search:
		out, err = s.Search(r)
	default:
		return "", fmt.Errorf("unsupported knowledge request %T", req)
	}
	if err != nil {
		return "", err
	}

	s.remember(session, "assistant", out)
	return out, nil
}

// Store saves a finding and reports its id and topics.
func (s *Service) Store(r Store) (string, error) {
	source := r.Source
	if source == "" {
		source = DefaultSource
	}
	query := r.Query
	if query == "" {
		query = clip(r.Content, 100)
	}
	topics := ExtractTopics(query + " " + r.Content)

	entry := &store.KnowledgeEntry{
		ID:      fmt.Sprintf("%s_%d", source, s.now().UnixNano()),
		Query:   query,
		Content: r.Content,
		Source:  source,
		Topics:  topics,
	}
	if err := s.store.SaveKnowledge(entry); err != nil {
		return "", fmt.Errorf("store knowledge: %w", err)
	}
	slog.Info("knowledge stored", "id", entry.ID, "topics", topics)
	s.publish("knowledge_stored", map[string]any{"id": entry.ID, "source": source, "topics": topics})

	label := "general"
	if len(topics) > 0 {
		label = strings.Join(topics, ", ")
	}
	return fmt.Sprintf("✅ Stored knowledge entry: %s\nTopics: %s", entry.ID, label), nil
}

// Find returns the entries scoring at least the minimum similarity, best
// first, at most limit of them (0 uses the configured limit).
func (s *Service) Find(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = s.limit
	}
	entries, err := s.store.ListKnowledge()
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}

	var hits []Hit
	for _, e := range entries {
		doc := e.Query + " " + e.Content + " " + strings.Join(e.Topics, " ")
		score := Similarity(query, doc)
		if score > 0 && score >= s.minSimilarity {
			hits = append(hits, Hit{Entry: e, Similarity: score})
		}
	}
	// Entries come newest first; a stable sort keeps that order on ties.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Search formats the hits for query the way the orchestrator's sufficiency
// check expects: a miss mentions "No relevant information".
func (s *Service) Search(r Search) (string, error) {
	hits, err := s.Find(r.Query, r.Limit)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "No relevant information found for: " + r.Query, nil
	}

	parts := []string{fmt.Sprintf("Found %d relevant entries:\n", len(hits))}
	for i, h := range hits {
		parts = append(parts, fmt.Sprintf("**%d. From %s** (Relevance: %.0f%%)\nQuery: %s\nContent: %s...\n",
			i+1, h.Entry.Source, h.Similarity*100, clip(h.Entry.Query, 100), clip(h.Entry.Content, 500)))
	}
	return strings.Join(parts, "\n---\n"), nil
}

// Context summarizes the last few messages of a session.
func (s *Service) Context(session string) (string, error) {
	msgs, err := s.store.GetSessionMessages(session, contextMessages)
	if err != nil {
		return "", fmt.Errorf("session context: %w", err)
	}
	if len(msgs) == 0 {
		return noContext, nil
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.Role + ": " + clip(m.Content, 200)
	}
	return strings.Join(lines, "\n"), nil
}

func (s *Service) remember(session, role, content string) {
	if err := s.store.SaveSessionMessage(&store.SessionMessage{
		SessionID: session,
		Role:      role,
		Content:   content,
	}); err != nil {
		slog.Warn("save session message failed", "session", session, "error", err)
	}
}

func (s *Service) publish(eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(natsbus.TopicEventsKnowledge, natsbus.NewEvent(eventType, payload)); err != nil {
		slog.Debug("publish knowledge event failed", "error", err)
	}
}

// Handler serves the service over the a2a envelope. Structured requests
// arrive as data parts; plain text is a search.
func (s *Service) Handler() *a2a.Handler {
	return &a2a.Handler{
		AllowData: true,
		Send: func(ctx context.Context, p a2a.Params) (a2a.Result, error) {
			req, err := Decode(p.Message)
			if err != nil {
				return a2a.Result{}, err
			}
			out, err := s.Handle(ctx, req, p.SessionID)
			if err != nil {
				return a2a.Result{}, err
			}
			return a2a.TextResult(out, nil), nil
		},
	}
}

// Card describes the knowledge service.
func Card(cfg config.KnowledgeConfig, version, url string) a2a.Card {
	return a2a.Card{
		Name:         cfg.Name,
		Version:      version,
		Description:  "Persistent memory and retrieval for the multi-agent system",
		URL:          url,
		Capabilities: a2a.Capabilities{Streaming: false, PushNotifications: false},
		Skills: []a2a.Skill{
			{ID: "store-knowledge", Name: "Store Knowledge", Description: "Store research findings and explanations"},
			{ID: "search-knowledge", Name: "Search Knowledge", Description: "Search for relevant past information"},
			{ID: "get-context", Name: "Get Context", Description: "Get conversation context for a session"},
		},
	}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
