package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mtzanidakis/quorum/internal/a2a"
)

type Kind string

const (
	KindStore   Kind = "store"
	KindSearch  Kind = "search"
	KindContext Kind = "context"
)

// Request is one of Store, Search or Context. It travels as the structured
// data part of an a2a message, next to a human-readable text part.
type Request interface {
	Kind() Kind
}

type Store struct {
	Query   string
	Content string
	Source  string
}

type Search struct {
	Query string
	// Limit of 0 uses the service default.
	Limit int
}

type Context struct {
	Session string
}

func (Store) Kind() Kind   { return KindStore }
func (Search) Kind() Kind  { return KindSearch }
func (Context) Kind() Kind { return KindContext }

type envelope struct {
	Kind    Kind   `json:"kind"`
	Query   string `json:"query,omitempty"`
	Content string `json:"content,omitempty"`
	Source  string `json:"source,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Session string `json:"session,omitempty"`
}

// Text is the human-readable form sent alongside the data part.
func Text(r Request) string {
	switch r := r.(type) {
	case Store:
		return fmt.Sprintf("Store this research finding:\nQuery: %s\nAnswer: %s", r.Query, r.Content)
	case Search:
		return "Search for relevant information about: " + r.Query
	case Context:
		return "Get conversation context"
	}
	return ""
}

// Encode builds the a2a message for r.
func Encode(r Request) a2a.Message {
	env := envelope{Kind: r.Kind()}
	switch r := r.(type) {
	case Store:
		env.Query, env.Content, env.Source = r.Query, r.Content, r.Source
	case Search:
		env.Query, env.Limit = r.Query, r.Limit
	case Context:
		env.Session = r.Session
	}

	msg := a2a.UserMessage(Text(r))
	withData, err := msg.WithData(env)
	if err != nil {
		return msg
	}
	return withData
}

const searchPrefix = "search for relevant information about:"

// Decode reads the request out of msg. A message with no data part is a
// Search for its text.
func Decode(msg a2a.Message) (Request, error) {
	raw, ok := msg.Data()
	if !ok {
		q := strings.TrimSpace(msg.Text())
		if len(q) >= len(searchPrefix) && strings.EqualFold(q[:len(searchPrefix)], searchPrefix) {
			q = strings.TrimSpace(q[len(searchPrefix):])
		}
		if q == "" {
			return nil, a2a.ErrMissingQuery
		}
		return Search{Query: q}, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode knowledge request: %w", err)
	}
	switch env.Kind {
	case KindStore:
		if env.Content == "" {
			return nil, errors.New("store request without content")
		}
		return Store{Query: env.Query, Content: env.Content, Source: env.Source}, nil
	case KindSearch:
		if env.Query == "" {
			env.Query = strings.TrimSpace(msg.Text())
		}
		if env.Query == "" {
			return nil, a2a.ErrMissingQuery
		}
		return Search{Query: env.Query, Limit: env.Limit}, nil
	case KindContext:
		return Context{Session: env.Session}, nil
	default:
		return nil, fmt.Errorf("unknown knowledge request kind %q", env.Kind)
	}
}
