package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"github.com/mtzanidakis/quorum/internal/agent"
	"github.com/mtzanidakis/quorum/internal/llm"
)

const DefaultTemperature = 0.1

const defaultReasoning = "Default routing"

var (
	ErrUnknownAgent = errors.New("unknown agent")
	ErrUnparseable  = errors.New("unparseable routing decision")
)

// Decision says which specialists handle a query, in call order.
type Decision struct {
	Agents              []agent.Type `json:"agents"`
	Reasoning           string       `json:"reasoning"`
	CheckKnowledgeFirst bool         `json:"check_knowledge_first"`
}

// Has reports whether t was selected.
func (d Decision) Has(t agent.Type) bool {
	return agent.Contains(d.Agents, t)
}

type Router struct {
	model llm.Client
	temp  atomic.Uint64
}

func New(model llm.Client, temperature float64) *Router {
	r := &Router{model: model}
	r.SetTemperature(temperature)
	return r
}

// SetTemperature changes the sampling temperature for later calls. Zero
// restores the default.
func (r *Router) SetTemperature(t float64) {
	if t <= 0 {
		t = DefaultTemperature
	}
	r.temp.Store(math.Float64bits(t))
}

func (r *Router) Temperature() float64 {
	return math.Float64frombits(r.temp.Load())
}

// Route picks the specialists for query. A leading "@research", "@explainer"
// or "@knowledge" mention skips the model; knowledge is reached through the
// knowledge check.
func (r *Router) Route(ctx context.Context, query string) (Decision, error) {
	if d, ok := mention(query); ok {
		slog.Debug("routing by mention", "agents", d.Agents)
		return d, nil
	}

	raw, err := r.model.Complete(ctx, llm.Request{
		Prompt:      buildRoutingPrompt(query),
		Temperature: r.Temperature(),
		JSON:        true,
	})
	if err != nil {
		// The model error is the user-facing routing failure detail.
		slog.Warn("routing model call failed", "error", err)
		return Decision{}, err
	}

	d, err := ParseDecision(raw)
	if err != nil {
		return Decision{}, err
	}
	slog.Debug("routing decision", "agents", d.Agents, "reasoning", d.Reasoning, "check_knowledge_first", d.CheckKnowledgeFirst)
	return d, nil
}

// ParseDecision decodes a model reply. Missing fields take the defaults:
// agents [research], reasoning "Default routing", check_knowledge_first true.
func ParseDecision(raw string) (Decision, error) {
	var reply struct {
		Agents              *[]string `json:"agents"`
		Reasoning           *string   `json:"reasoning"`
		CheckKnowledgeFirst *bool     `json:"check_knowledge_first"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &reply); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	d := Decision{
		Agents:              []agent.Type{agent.Research},
		Reasoning:           defaultReasoning,
		CheckKnowledgeFirst: true,
	}
	if reply.Agents != nil {
		d.Agents = make([]agent.Type, 0, len(*reply.Agents))
		for _, name := range *reply.Agents {
			t, err := agent.ParseType(name)
			if err != nil {
				return Decision{}, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
			}
			d.Agents = append(d.Agents, t)
		}
	}
	if reply.Reasoning != nil {
		d.Reasoning = *reply.Reasoning
	}
	if reply.CheckKnowledgeFirst != nil {
		d.CheckKnowledgeFirst = *reply.CheckKnowledgeFirst
	}
	return d, nil
}

// extractJSON strips code fences and any prose around the outermost object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func mention(query string) (Decision, bool) {
	if !strings.HasPrefix(query, "@") {
		return Decision{}, false
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(query, "@"), " ")
	t, err := agent.ParseType(name)
	if err != nil {
		// Unknown mention, fall through to model routing.
		return Decision{}, false
	}
	return Decision{
		Agents:              []agent.Type{t},
		Reasoning:           "Explicit mention of " + t.String(),
		CheckKnowledgeFirst: t == agent.Knowledge,
	}, true
}

func buildRoutingPrompt(query string) string {
	return strings.Replace(routingPrompt, "{query}", query, 1)
}

const routingPrompt = `You are a query router for a multi-agent AI system. Analyze the user's query and determine which agents should handle it.

Available agents:
1. RESEARCH - Searches for new and popular AI/ML open source projects on GitHub. Use for:
   - Questions about latest AI frameworks, libraries, or tools
   - Finding trending repositories
   - Comparing open source projects

2. EXPLAINER - Provides detailed technical explanations with code snippets. Use for:
   - How to use a specific library or framework
   - Code examples and tutorials
   - Understanding technical concepts

3. KNOWLEDGE - Manages persistent memory and past research. Use for:
   - Retrieving previously researched information
   - Finding similar past queries
   - Getting contextual recommendations

Rules:
- You can select multiple agents if needed (e.g., research then explain)
- Always consider checking KNOWLEDGE first for efficiency
- For new topics, use RESEARCH then EXPLAINER
- For follow-up questions, KNOWLEDGE may be sufficient

User Query: {query}

Respond with a JSON object containing:
- "agents": list of agent names to call in order (e.g., ["RESEARCH", "EXPLAINER"])
- "reasoning": brief explanation of your choice
- "check_knowledge_first": true/false - whether to check knowledge base first

JSON Response:`
