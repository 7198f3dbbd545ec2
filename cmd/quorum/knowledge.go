package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/knowledge"
	"github.com/mtzanidakis/quorum/internal/natsbus"
	"github.com/mtzanidakis/quorum/internal/store"
	"golang.org/x/sync/errgroup"
)

func runKnowledge() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Knowledge events only go out when an external bus is configured;
	// the embedded one belongs to the orchestrator process.
	var events knowledge.Publisher
	if cfg.NATS.URL != "" {
		client, err := natsbus.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("init nats client: %w", err)
		}
		defer client.Close()
		events = client
	}

	svc := knowledge.NewService(db, cfg.Knowledge, events)
	url := fmt.Sprintf("http://localhost:%d", cfg.Knowledge.Port)

	mux := http.NewServeMux()
	a2a.Mount(mux, svc.Handler(), cfg.Knowledge.Name, func() a2a.Card {
		return knowledge.Card(cfg.Knowledge, version, url)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Knowledge.Host, cfg.Knowledge.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("knowledge agent listening", "addr", server.Addr, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
