package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/agent"
	"github.com/mtzanidakis/quorum/internal/config"
)

// Remote is the Caller backed by the a2a client. Agent URLs can be swapped
// at runtime on config reload.
type Remote struct {
	client *a2a.Client

	mu   sync.RWMutex
	urls map[agent.Type]string
}

func NewRemote(client *a2a.Client, cfg config.AgentsConfig) *Remote {
	r := &Remote{client: client}
	r.SetAgents(cfg)
	return r
}

func (r *Remote) SetAgents(cfg config.AgentsConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = map[agent.Type]string{
		agent.Research:  cfg.Research,
		agent.Explainer: cfg.Explainer,
		agent.Knowledge: cfg.Knowledge,
	}
	r.client.SetTimeout(cfg.Timeout)
}

func (r *Remote) URL(t agent.Type) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.urls[t]
}

func (r *Remote) Send(ctx context.Context, t agent.Type, msg a2a.Message) (string, error) {
	url := r.URL(t)
	if url == "" {
		return "", fmt.Errorf("no url configured for %s agent", t)
	}
	return r.client.Send(ctx, url, msg)
}
