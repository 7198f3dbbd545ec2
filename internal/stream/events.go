// Package stream reports a workflow run as a sequence of typed progress
// events, written as server-sent events and mirrored onto the event bus.
package stream

type Kind string

const (
	KindAgentStart    Kind = "agent_start"
	KindMessage       Kind = "message"
	KindToolCall      Kind = "tool_call"
	KindToolResult    Kind = "tool_result"
	KindAgentOutput   Kind = "agent_output"
	KindAgentComplete Kind = "agent_complete"
	KindError         Kind = "error"
	KindComplete      Kind = "complete"
)

// Orchestrator is the agent name used for routing and synthesis sub-calls.
const Orchestrator = "orchestrator"

type Event struct {
	Type    Kind `json:"type"`
	Payload any  `json:"payload"`
}

type AgentStartPayload struct {
	Agent string `json:"agent"`
}

type MessagePayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
}

type ToolCallPayload struct {
	Agent string            `json:"agent"`
	Name  string            `json:"name"`
	Input map[string]string `json:"input"`
}

type ToolResultPayload struct {
	Agent  string `json:"agent"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

type AgentOutputPayload struct {
	Agent   string `json:"agent"`
	Content string `json:"content"`
}

// AgentCompletePayload closes a sub-call. Tokens is an estimate (twice the
// word count of Content), not a tokenizer count.
type AgentCompletePayload struct {
	Agent    string  `json:"agent"`
	Duration float64 `json:"duration"`
	Tokens   int     `json:"tokens"`
	Content  string  `json:"content,omitempty"`
}

type ErrorPayload struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

type CompletePayload struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	AgentsUsed []string `json:"agents_used"`
	Duration   float64  `json:"duration"`
}

func AgentStart(agent string) Event {
	return Event{KindAgentStart, AgentStartPayload{Agent: agent}}
}

func Message(from, to, content string) Event {
	return Event{KindMessage, MessagePayload{From: from, To: to, Content: content}}
}

func ToolCall(agent, name string, input map[string]string) Event {
	return Event{KindToolCall, ToolCallPayload{Agent: agent, Name: name, Input: input}}
}

func ToolResult(agent, name, output string) Event {
	return Event{KindToolResult, ToolResultPayload{Agent: agent, Name: name, Output: output}}
}

func AgentOutput(agent, content string) Event {
	return Event{KindAgentOutput, AgentOutputPayload{Agent: agent, Content: content}}
}

func AgentComplete(agent string, duration float64, content string) Event {
	return Event{KindAgentComplete, AgentCompletePayload{
		Agent:    agent,
		Duration: duration,
		Tokens:   EstimateTokens(content),
		Content:  content,
	}}
}

func Error(agent, message string) Event {
	return Event{KindError, ErrorPayload{Agent: agent, Message: message}}
}

func Complete(answer string, sources, agentsUsed []string, duration float64) Event {
	if sources == nil {
		sources = []string{}
	}
	if agentsUsed == nil {
		agentsUsed = []string{}
	}
	return Event{KindComplete, CompletePayload{
		Answer:     answer,
		Sources:    sources,
		AgentsUsed: agentsUsed,
		Duration:   duration,
	}}
}
