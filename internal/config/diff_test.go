package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiff_NoChanges(t *testing.T) {
	cfg := defaults()
	d := Diff(&cfg, &cfg)
	if d.HasChanges() {
		t.Error("expected no changes")
	}
	if len(d.NonReloadable) != 0 {
		t.Errorf("expected no non-reloadable changes, got %v", d.NonReloadable)
	}
}

func TestDiff_AgentsChanged(t *testing.T) {
	old := defaults()
	new := defaults()
	new.Agents.Research = "http://other:8001"

	d := Diff(&old, &new)
	if !d.AgentsChanged {
		t.Fatal("expected agents changed")
	}
	if d.NewAgents.Research != "http://other:8001" {
		t.Errorf("expected new research url, got %s", d.NewAgents.Research)
	}
	if !d.HasChanges() {
		t.Error("expected HasChanges true")
	}
}

func TestDiff_Temperatures(t *testing.T) {
	old := defaults()
	new := defaults()
	new.LLM.SynthTemperature = 0.5

	d := Diff(&old, &new)
	if !d.TemperaturesChanged {
		t.Fatal("expected temperatures changed")
	}
	if d.NewSynthTemp != 0.5 || d.NewRouterTemp != 0.1 {
		t.Errorf("unexpected temps router=%v synth=%v", d.NewRouterTemp, d.NewSynthTemp)
	}
	for _, f := range d.NonReloadable {
		if f == "llm" {
			t.Error("temperature change should not flag llm as non-reloadable")
		}
	}
}

func TestDiff_SchedulerAndCORS(t *testing.T) {
	old := defaults()
	new := defaults()
	new.Scheduler.PollInterval = 5 * time.Second
	new.Web.CORSOrigins = []string{"http://only.test"}

	d := Diff(&old, &new)
	if !d.SchedulerChanged || d.NewScheduler.PollInterval != 5*time.Second {
		t.Errorf("expected scheduler change to 5s, got %+v", d.NewScheduler)
	}
	if !d.CORSChanged || len(d.NewCORS) != 1 {
		t.Errorf("expected cors change, got %v", d.NewCORS)
	}
}

func TestDiff_NonReloadable(t *testing.T) {
	old := defaults()
	new := defaults()
	new.Orchestrator.Port = 9999
	new.Store.Path = "/tmp/other.db"
	new.LLM.Model = "gpt-4o-mini"
	new.Vault.Passphrase = "changed"

	d := Diff(&old, &new)
	if d.HasChanges() {
		t.Error("non-reloadable changes should not count as reloadable")
	}
	want := map[string]bool{"orchestrator.port": true, "store.path": true, "llm": true, "vault.passphrase": true}
	if len(d.NonReloadable) != len(want) {
		t.Fatalf("expected %d non-reloadable fields, got %v", len(want), d.NonReloadable)
	}
	for _, f := range d.NonReloadable {
		if !want[f] {
			t.Errorf("unexpected non-reloadable field %s", f)
		}
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "quorum.yaml")
	if err := os.WriteFile(cfgPath, []byte("scheduler:\n  poll_interval: 30s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUORUM_LLM_PROVIDER", "")

	cfg, err := LoadFile(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan ConfigDiff, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, cfg, func(_ *Config, d ConfigDiff) {
			select {
			case changed <- d:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(cfgPath, []byte("scheduler:\n  poll_interval: 10s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-changed:
		if !d.SchedulerChanged || d.NewScheduler.PollInterval != 10*time.Second {
			t.Errorf("expected poll interval 10s, got %+v", d)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watch returned error: %v", err)
	}
}
