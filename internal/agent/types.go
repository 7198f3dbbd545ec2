package agent

import (
	"fmt"
	"strings"
)

// Type identifies one of the specialist services the orchestrator can call.
type Type string

const (
	Research  Type = "research"
	Explainer Type = "explainer"
	Knowledge Type = "knowledge"
)

// Types lists every specialist in routing-prompt order.
var Types = []Type{Research, Explainer, Knowledge}

// ParseType maps a name to a Type, ignoring case and surrounding space.
func ParseType(name string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(name))); t {
	case Research, Explainer, Knowledge:
		return t, nil
	default:
		return "", fmt.Errorf("unknown agent type %q", name)
	}
}

func (t Type) String() string {
	return string(t)
}

// Contains reports whether t appears in types.
func Contains(types []Type, t Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// Response is the outcome of one specialist call. A failed call has
// Success=false, an empty Content and a non-empty Error.
type Response struct {
	Agent   string `json:"agent_name"`
	Content string `json:"content"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func Succeeded(agent Type, content string) Response {
	return Response{Agent: agent.String(), Content: content, Success: true}
}

func Failed(agent Type, err error) Response {
	return Response{Agent: agent.String(), Error: err.Error()}
}

// Synthesized is the final answer of one run.
type Synthesized struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	AgentsUsed []string `json:"agents_used"`
}

// Names returns the agent names of responses in order.
func Names(responses []Response) []string {
	out := make([]string, 0, len(responses))
	for _, r := range responses {
		out = append(out, r.Agent)
	}
	return out
}
