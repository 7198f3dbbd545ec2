// Package a2a implements the JSON-RPC 2.0 "tasks/send" envelope the
// orchestrator and the specialists speak, plus agent cards.
package a2a

import (
	"encoding/json"
	"fmt"
)

const (
	Version = "2.0"

	MethodSend = "tasks/send"
	MethodGet  = "tasks/get"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Reserved JSON-RPC error codes.
const (
	CodeInvalidParams  = -32602
	CodeMethodNotFound = -32601
	CodeInternal       = -32603
)

type Part struct {
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// UserMessage builds a single-part user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Text: text}}}
}

// Text returns the text of the first part, or "" when there is none.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return ""
	}
	return m.Parts[0].Text
}

// Data returns the first structured part, if any.
func (m Message) Data() (json.RawMessage, bool) {
	for _, p := range m.Parts {
		if len(p.Data) > 0 {
			return p.Data, true
		}
	}
	return nil, false
}

// WithData appends a structured part holding v.
func (m Message) WithData(v any) (Message, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return m, fmt.Errorf("marshal data part: %w", err)
	}
	parts := make([]Part, len(m.Parts), len(m.Parts)+1)
	copy(parts, m.Parts)
	m.Parts = append(parts, Part{Data: raw})
	return m, nil
}

type Params struct {
	Message   Message `json:"message"`
	SessionID string  `json:"session_id,omitempty"`
	// ID is used by tasks/get.
	ID string `json:"id,omitempty"`
}

// ID is a JSON-RPC request id. Numeric ids are accepted and kept in their
// decimal form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ID(n.String())
		return nil
	}
	if string(b) == "null" {
		*id = ""
		return nil
	}
	return fmt.Errorf("invalid request id %s", b)
}

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
	ID      ID     `json:"id"`
}

func NewSendRequest(id string, msg Message) Request {
	return Request{
		JSONRPC: Version,
		Method:  MethodSend,
		Params:  Params{Message: msg},
		ID:      ID(id),
	}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Result is the success payload of tasks/send.
type Result struct {
	Message  Message        `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// NewResponse wraps result in a success envelope.
func NewResponse(id string, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("marshal result: %w", err)
	}
	return Response{JSONRPC: Version, Result: raw, ID: id}, nil
}

// TextResult is the common assistant reply with optional metadata.
func TextResult(text string, metadata map[string]any) Result {
	return Result{
		Message:  Message{Role: RoleAssistant, Parts: []Part{{Text: text}}},
		Metadata: metadata,
	}
}

func NewError(id string, code int, message string) Response {
	return Response{JSONRPC: Version, Error: &Error{Code: code, Message: message}, ID: id}
}

// ExtractText pulls result.message.parts[0].text out of a raw result. When
// that path is absent it falls back to the raw result's string form.
func ExtractText(raw json.RawMessage) string {
	var r struct {
		Message *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &r); err == nil && r.Message != nil {
		if len(r.Message.Parts) == 0 {
			return ""
		}
		if t := r.Message.Parts[0].Text; t != nil {
			return *t
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"push_notifications"`
}

// Card is served at /.well-known/agent.json for discovery.
type Card struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Description  string       `json:"description"`
	URL          string       `json:"url"`
	Capabilities Capabilities `json:"capabilities"`
	Skills       []Skill      `json:"skills"`
}

type Health struct {
	Status string `json:"status"`
	Agent  string `json:"agent"`
}
