package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/credential"
	"github.com/sashabaranov/go-openai"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenAI talks to any OpenAI-compatible chat completions endpoint, including
// OpenRouter and Azure OpenAI.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAI(cfg config.LLMConfig, creds credential.Provider) (*OpenAI, error) {
	var oc openai.ClientConfig

	switch cfg.Provider {
	case "azure":
		if cfg.BaseURL == "" {
			return nil, errors.New("llm.base_url is required for azure")
		}
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			oc.APIVersion = cfg.APIVersion
		}
		if cfg.Deployment != "" {
			deployment := cfg.Deployment
			oc.AzureModelMapperFunc = func(string) string { return deployment }
		}
		if cfg.APIKey == "" {
			if !credential.Enabled(creds) {
				return nil, errors.New("azure needs llm.api_key or a credentials provider")
			}
			// Entra ID tokens go in the Authorization header.
			oc.APIType = openai.APITypeAzureAD
			oc.HTTPClient = credential.HTTPClient(creds, nil)
		}
	case "openrouter":
		oc = openai.DefaultConfig(cfg.APIKey)
		oc.BaseURL = openRouterBaseURL
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
	default:
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
	}

	return &OpenAI{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	chat := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens,
	}
	if req.JSON {
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
