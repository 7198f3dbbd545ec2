// Package synth merges specialist responses into one answer.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/mtzanidakis/quorum/internal/agent"
	"github.com/mtzanidakis/quorum/internal/llm"
)

const DefaultTemperature = 0.3

var ErrSynthesis = errors.New("synthesis failed")

type Synthesizer struct {
	model llm.Client
	temp  atomic.Uint64
}

func New(model llm.Client, temperature float64) *Synthesizer {
	s := &Synthesizer{model: model}
	s.SetTemperature(temperature)
	return s
}

func (s *Synthesizer) SetTemperature(t float64) {
	if t <= 0 {
		t = DefaultTemperature
	}
	s.temp.Store(math.Float64bits(t))
}

func (s *Synthesizer) Temperature() float64 {
	return math.Float64frombits(s.temp.Load())
}

// Synthesize returns the lone successful response verbatim, or asks the model
// to merge all responses (failures included as "Error: ..." sections).
// Sources lists the successful agents and AgentsUsed every attempted agent,
// both in call order.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, responses []agent.Response) (agent.Synthesized, error) {
	var successful []agent.Response
	for _, r := range responses {
		if r.Success {
			successful = append(successful, r)
		}
	}
	used := agent.Names(responses)

	if len(successful) == 1 {
		return agent.Synthesized{
			Answer:     successful[0].Content,
			Sources:    []string{successful[0].Agent},
			AgentsUsed: used,
		}, nil
	}

	answer, err := s.model.Complete(ctx, llm.Request{
		Prompt:      BuildPrompt(query, responses),
		Temperature: s.Temperature(),
	})
	if err != nil {
		return agent.Synthesized{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	return agent.Synthesized{
		Answer:     answer,
		Sources:    agent.Names(successful),
		AgentsUsed: used,
	}, nil
}

// BuildPrompt renders the merge prompt with one "=== agent ===" section per
// response.
func BuildPrompt(query string, responses []agent.Response) string {
	sections := make([]string, 0, len(responses))
	for _, r := range responses {
		body := r.Content
		if !r.Success {
			body = "Error: " + r.Error
		}
		sections = append(sections, fmt.Sprintf("=== %s ===\n%s", r.Agent, body))
	}

	return strings.NewReplacer(
		"{query}", query,
		"{agent_responses}", strings.Join(sections, "\n\n"),
	).Replace(synthesisPrompt)
}

const synthesisPrompt = `You are a response synthesizer. Combine the following agent responses into a coherent, comprehensive answer for the user.

User Query: {query}

Agent Responses:
{agent_responses}

Instructions:
1. Synthesize the information into a clear, well-structured response
2. Highlight key findings from each agent
3. If there are code snippets, preserve them with proper formatting
4. If agents provided conflicting information, note this
5. Keep the response focused and actionable

Provide a comprehensive answer:`
