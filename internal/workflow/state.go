// Package workflow sequences routing, specialist calls and synthesis for one
// query. The next step is decided by the pure Transition function; Execute
// performs the effects it asks for.
package workflow

import (
	"github.com/mtzanidakis/quorum/internal/agent"
	"github.com/mtzanidakis/quorum/internal/router"
)

type Step string

const (
	StepStart          Step = ""
	StepRoute          Step = "route"
	StepCheckKnowledge Step = "check_knowledge"
	StepCallResearch   Step = "call_research"
	StepCallExplainer  Step = "call_explainer"
	StepSynthesize     Step = "synthesize"
	// StepPersist is not a state. It names the write-back performed on the
	// way into StepDone.
	StepPersist Step = "persist"
	StepDone    Step = "done"
)

// State is owned by a single run.
type State struct {
	ID    string
	Mode  string
	Query string
	// Step is the step most recently completed.
	Step Step

	Routing         *router.Decision
	KnowledgeResult *string
	ResearchResult  *string
	ExplainerResult *string
	Responses       []agent.Response
	Final           *agent.Synthesized
	Err             *Failure
}

func NewState(query string) *State {
	return &State{ID: newRunID(), Mode: ModeSync, Query: query}
}

// Update is the partial result of one step.
type Update struct {
	Routing         *router.Decision
	KnowledgeResult *string
	ResearchResult  *string
	ExplainerResult *string
	Responses       []agent.Response
	Final           *agent.Synthesized
	Err             *Failure
}

// Apply merges u into s. Responses are appended, everything else is
// overwritten when set. A new routing decision starts an empty response list.
func (s *State) Apply(u Update) {
	if u.Routing != nil {
		s.Routing = u.Routing
		s.Responses = nil
	}
	if u.KnowledgeResult != nil {
		s.KnowledgeResult = u.KnowledgeResult
	}
	if u.ResearchResult != nil {
		s.ResearchResult = u.ResearchResult
	}
	if u.ExplainerResult != nil {
		s.ExplainerResult = u.ExplainerResult
	}
	s.Responses = append(s.Responses, u.Responses...)
	if u.Final != nil {
		s.Final = u.Final
	}
	if u.Err != nil {
		s.Err = u.Err
	}
}

const (
	NoInfoAnswer     = "I couldn't find relevant information for your query."
	NoResponseAnswer = "No response generated."
)

// Answer is the terminal answer of a finished run.
func (s *State) Answer() agent.Synthesized {
	switch {
	case s.Err != nil:
		return agent.Synthesized{Answer: "Error: " + s.Err.Message, Sources: []string{}, AgentsUsed: []string{}}
	case s.Final != nil:
		return *s.Final
	default:
		return agent.Synthesized{Answer: NoResponseAnswer, Sources: []string{}, AgentsUsed: []string{}}
	}
}

func (s *State) routed(t agent.Type) bool {
	return s.Routing != nil && s.Routing.Has(t)
}

func ptr(s string) *string { return &s }
