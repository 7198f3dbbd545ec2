package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/credential"
	"github.com/mtzanidakis/quorum/internal/llm"
	"github.com/mtzanidakis/quorum/internal/natsbus"
	"github.com/mtzanidakis/quorum/internal/router"
	"github.com/mtzanidakis/quorum/internal/scheduler"
	"github.com/mtzanidakis/quorum/internal/store"
	"github.com/mtzanidakis/quorum/internal/stream"
	"github.com/mtzanidakis/quorum/internal/synth"
	"github.com/mtzanidakis/quorum/internal/vault"
	"github.com/mtzanidakis/quorum/internal/web"
	"github.com/mtzanidakis/quorum/internal/workflow"
	"golang.org/x/sync/errgroup"
)

const probeTimeout = 5 * time.Second

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := setupLogger(cfg.Log, os.Stderr)

	slog.Info("starting quorum orchestrator", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	v := openVault(cfg.Vault)
	if err := resolveSecrets(cfg, db, v); err != nil {
		return err
	}

	natsURL, closeBus, err := startBus(cfg.NATS)
	if err != nil {
		return err
	}
	defer closeBus()
	events, err := natsbus.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	creds, err := credential.New(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("init credentials: %w", err)
	}
	model, err := llm.New(cfg.LLM, creds)
	if err != nil {
		return fmt.Errorf("init llm: %w", err)
	}
	slog.Info("llm ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	var agentCreds credential.Provider
	if cfg.Agents.SendToken {
		agentCreds = creds
	}
	client := a2a.NewClient(cfg.Agents.Timeout, agentCreds)
	remote := workflow.NewRemote(client, cfg.Agents)
	probeAgents(ctx, client, cfg.Agents)

	rtr := router.New(model, cfg.LLM.RouterTemperature)
	syn := synth.New(model, cfg.LLM.SynthTemperature)
	wf := workflow.New(rtr, syn, remote, workflow.WithRuns(db), workflow.WithEvents(events))
	streamer := stream.New(wf, events)
	sched := scheduler.New(db, wf, events, cfg.Scheduler)

	srv := web.NewServer(db, natsURL, wf, streamer, sched, v, client, cfg, version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return sched.Start(gctx) })
	g.Go(func() error {
		return config.Watch(gctx, cfg, func(next *config.Config, d config.ConfigDiff) {
			if d.AgentsChanged {
				remote.SetAgents(d.NewAgents)
				slog.Info("agent endpoints reloaded")
			}
			if d.TemperaturesChanged {
				rtr.SetTemperature(d.NewRouterTemp)
				syn.SetTemperature(d.NewSynthTemp)
				slog.Info("temperatures reloaded", "router", d.NewRouterTemp, "synth", d.NewSynthTemp)
			}
			if d.SchedulerChanged {
				sched.UpdateConfig(d.NewScheduler)
			}
			if d.LogLevelChanged {
				level.Set(parseLevel(d.NewLogLevel))
				slog.Info("log level reloaded", "level", d.NewLogLevel)
			}
			if err := resolveSecrets(next, db, v); err != nil {
				slog.Error("config reload: web settings not applied", "error", err)
				return
			}
			srv.UpdateConfig(next)
		})
	})

	err = g.Wait()
	slog.Info("quorum stopped")
	return err
}

// startBus returns the URL of the event bus: the configured external server,
// or an embedded one started here.
func startBus(cfg config.NATSConfig) (string, func(), error) {
	if cfg.URL != "" {
		slog.Info("using external nats", "url", cfg.URL)
		return cfg.URL, func() {}, nil
	}
	bus, err := natsbus.New(cfg)
	if err != nil {
		return "", nil, fmt.Errorf("init nats: %w", err)
	}
	slog.Info("nats started", "port", bus.Port())
	return bus.ClientURL(), bus.Close, nil
}

func openVault(cfg config.VaultConfig) *vault.Vault {
	if cfg.Passphrase == "" {
		return nil
	}
	return vault.New(cfg.Passphrase)
}

// resolveSecrets replaces "secret:<name>" references in the config with
// values decrypted from the vault.
func resolveSecrets(cfg *config.Config, db *store.Store, v *vault.Vault) error {
	var dec credential.Decrypter
	if v != nil {
		dec = v
	}
	err := credential.ResolveAll(db, dec,
		&cfg.LLM.APIKey,
		&cfg.Credentials.Token,
		&cfg.Credentials.ClientSecret,
		&cfg.Web.Auth,
	)
	if err != nil {
		return fmt.Errorf("resolve secrets: %w", err)
	}
	return nil
}

// probeAgents logs the reachability of every specialist. Failures are
// warnings; the specialists may come up later.
func probeAgents(ctx context.Context, client *a2a.Client, agents config.AgentsConfig) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	for name, url := range map[string]string{
		"research":  agents.Research,
		"explainer": agents.Explainer,
		"knowledge": agents.Knowledge,
	} {
		if url == "" {
			slog.Warn("specialist not configured", "agent", name)
			continue
		}
		h, err := client.Health(ctx, url)
		if err != nil {
			slog.Warn("specialist unreachable", "agent", name, "url", url, "error", err)
			continue
		}
		slog.Info("specialist healthy", "agent", name, "url", url, "status", h.Status)
	}
}
