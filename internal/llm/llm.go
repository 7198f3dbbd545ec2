// Package llm is the single-prompt language-model client used by the router
// and the synthesizer.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/credential"
)

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

type Request struct {
	Prompt      string
	Temperature float64
	// JSON asks the provider for a single JSON object. Providers without a
	// JSON mode get an instruction instead and may still wrap the object in
	// a code fence.
	JSON      bool
	MaxTokens int
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Client.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// New builds the client for cfg.Provider. creds is used by the azure provider
// when no API key is configured.
func New(cfg config.LLMConfig, creds credential.Provider) (Client, error) {
	switch cfg.Provider {
	case "openai", "openrouter", "azure":
		return NewOpenAI(cfg, creds)
	case "anthropic", "bedrock":
		return NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
