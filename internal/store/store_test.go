package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mtzanidakis/quorum/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunCRUD(t *testing.T) {
	s := newTestStore(t)

	run := &Run{
		ID:         "run-1",
		Query:      "what is nats",
		Answer:     "a message bus",
		Sources:    []string{"knowledge", "research"},
		AgentsUsed: []string{"knowledge", "research", "explainer"},
		Status:     RunCompleted,
		Mode:       "sync",
		Reasoning:  "technical question",
		DurationMs: 1200,
	}
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got == nil {
		t.Fatal("expected run, got nil")
	}
	if got.Answer != "a message bus" {
		t.Errorf("expected answer 'a message bus', got '%s'", got.Answer)
	}
	if len(got.Sources) != 2 || got.Sources[1] != "research" {
		t.Errorf("unexpected sources %v", got.Sources)
	}
	if len(got.AgentsUsed) != 3 {
		t.Errorf("expected 3 agents used, got %v", got.AgentsUsed)
	}
	if got.DurationMs != 1200 {
		t.Errorf("expected duration 1200, got %d", got.DurationMs)
	}

	// Not found
	got, err = s.GetRun("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent run")
	}
}

func TestRunNilListsStoredEmpty(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveRun(&Run{ID: "r", Query: "q", Status: RunFailed, Error: "Routing failed: x"}); err != nil {
		t.Fatalf("save run: %v", err)
	}
	got, err := s.GetRun("r")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Sources == nil || len(got.Sources) != 0 {
		t.Errorf("expected empty sources, got %#v", got.Sources)
	}
	if got.Error != "Routing failed: x" {
		t.Errorf("expected error to round trip, got '%s'", got.Error)
	}
}

func TestListRunsAndStats(t *testing.T) {
	s := newTestStore(t)

	statuses := []string{RunCompleted, RunCompleted, RunFailed, RunCancelled}
	for i, st := range statuses {
		_ = s.SaveRun(&Run{ID: "run-" + string(rune('a'+i)), Query: "q", Status: st})
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 4 {
		t.Fatalf("expected 4 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-d" {
		t.Errorf("expected newest run first, got '%s'", runs[0].ID)
	}

	runs, _ = s.ListRuns(2)
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}

	stats, err := s.GetRunStats()
	if err != nil {
		t.Fatalf("run stats: %v", err)
	}
	if stats.Total != 4 || stats.Completed != 2 || stats.Failed != 1 || stats.Cancelled != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestKnowledgeCRUD(t *testing.T) {
	s := newTestStore(t)

	e := &KnowledgeEntry{
		ID:      "orchestrator_1",
		Query:   "what is langgraph",
		Content: "A library for agent graphs",
		Source:  "orchestrator",
		Topics:  []string{"langgraph", "agent"},
	}
	if err := s.SaveKnowledge(e); err != nil {
		t.Fatalf("save knowledge: %v", err)
	}
	_ = s.SaveKnowledge(&KnowledgeEntry{ID: "orchestrator_2", Query: "q2", Content: "c2", Source: "orchestrator"})

	got, err := s.GetKnowledge("orchestrator_1")
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if got == nil || got.Content != "A library for agent graphs" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if len(got.Topics) != 2 || got.Topics[0] != "langgraph" {
		t.Errorf("unexpected topics %v", got.Topics)
	}

	entries, err := s.ListKnowledge()
	if err != nil {
		t.Fatalf("list knowledge: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}

	n, _ := s.CountKnowledge()
	if n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}

	if err := s.DeleteKnowledge("orchestrator_2"); err != nil {
		t.Fatalf("delete knowledge: %v", err)
	}
	n, _ = s.CountKnowledge()
	if n != 1 {
		t.Errorf("expected count 1 after delete, got %d", n)
	}
}

func TestSessionMessages(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 7; i++ {
		_ = s.SaveSessionMessage(&SessionMessage{
			SessionID: "s1",
			Role:      "user",
			Content:   "message " + string(rune('A'+i)),
		})
	}
	_ = s.SaveSessionMessage(&SessionMessage{SessionID: "other", Role: "user", Content: "x"})

	messages, err := s.GetSessionMessages("s1", 5)
	if err != nil {
		t.Fatalf("get session messages: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	// Last five, oldest first
	if messages[0].Content != "message C" {
		t.Errorf("expected first message 'message C', got '%s'", messages[0].Content)
	}
	if messages[4].Content != "message G" {
		t.Errorf("expected last message 'message G', got '%s'", messages[4].Content)
	}

	if err := s.ClearSession("s1"); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	messages, _ = s.GetSessionMessages("s1", 5)
	if len(messages) != 0 {
		t.Errorf("expected no messages after clear, got %d", len(messages))
	}
}

func TestScheduleCRUD(t *testing.T) {
	s := newTestStore(t)

	nextRun := time.Now().Add(-1 * time.Minute) // Due now
	q := &ScheduledQuery{
		ID:        "sched-1",
		Name:      "Morning digest",
		Schedule:  `{"kind":"interval","interval_ms":60000}`,
		Query:     "what changed in go 1.26",
		Status:    "active",
		NextRunAt: &nextRun,
	}
	if err := s.SaveSchedule(q); err != nil {
		t.Fatalf("save schedule: %v", err)
	}

	got, err := s.GetSchedule("sched-1")
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.Name != "Morning digest" {
		t.Errorf("expected 'Morning digest', got '%s'", got.Name)
	}

	due, err := s.GetDueSchedules(time.Now())
	if err != nil {
		t.Fatalf("get due schedules: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("expected 1 due schedule, got %d", len(due))
	}

	later := time.Now().Add(time.Hour)
	if err := s.UpdateScheduleRun("sched-1", "completed", "run-9", &later); err != nil {
		t.Fatalf("update schedule run: %v", err)
	}
	got, _ = s.GetSchedule("sched-1")
	if got.LastRunID != "run-9" || got.LastStatus != "completed" {
		t.Errorf("unexpected last run %+v", got)
	}
	due, _ = s.GetDueSchedules(time.Now())
	if len(due) != 0 {
		t.Errorf("expected 0 due schedules after run, got %d", len(due))
	}

	// Pause
	_ = s.UpdateScheduleStatus("sched-1", "paused")
	got, _ = s.GetSchedule("sched-1")
	if got.Status != "paused" {
		t.Errorf("expected status 'paused', got '%s'", got.Status)
	}

	_ = s.DeleteSchedule("sched-1")
	list, _ := s.ListSchedules()
	if len(list) != 0 {
		t.Errorf("expected no schedules after delete, got %d", len(list))
	}
}

func TestSecretCRUD(t *testing.T) {
	s := newTestStore(t)

	sec := &Secret{ID: "llm-key", Name: "llm-key", Description: "OpenAI key", Value: []byte{1, 2, 3}, Nonce: []byte{4, 5}}
	if err := s.SaveSecret(sec); err != nil {
		t.Fatalf("save secret: %v", err)
	}

	got, err := s.GetSecret("llm-key")
	if err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if got == nil || len(got.Value) != 3 || len(got.Nonce) != 2 {
		t.Fatalf("unexpected secret %+v", got)
	}

	list, err := s.ListSecrets()
	if err != nil {
		t.Fatalf("list secrets: %v", err)
	}
	if len(list) != 1 || list[0].Value != nil {
		t.Errorf("expected metadata only, got %+v", list)
	}

	if found, err := s.DeleteSecret("llm-key"); err != nil || !found {
		t.Fatalf("delete: found=%v err=%v", found, err)
	}
	got, _ = s.GetSecret("llm-key")
	if got != nil {
		t.Error("expected nil after delete")
	}
	if found, _ := s.DeleteSecret("llm-key"); found {
		t.Error("second delete should report not found")
	}
}
