package workflow

import (
	"strings"
	"unicode/utf8"

	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/agent"
	"github.com/mtzanidakis/quorum/internal/knowledge"
)

// ExplainerSeparator joins the query and the research context.
const ExplainerSeparator = "\n\nContext from research:\n"

// PersistSource tags knowledge entries written back after synthesis.
const PersistSource = "orchestrator"

// Effect is the side effect Execute performs for a step.
type Effect interface {
	effect()
}

// EffectNone means the step is a pass-through.
type EffectNone struct{}

type EffectRoute struct{}

// EffectCall sends Message to a specialist.
type EffectCall struct {
	Agent   agent.Type
	Message a2a.Message
}

type EffectSynthesize struct{}

// EffectAnswer finishes synthesis with a fixed answer and no model call.
type EffectAnswer struct {
	Final agent.Synthesized
}

// EffectPersist writes the answer back to the knowledge specialist.
type EffectPersist struct {
	Message a2a.Message
}

func (EffectNone) effect()       {}
func (EffectRoute) effect()      {}
func (EffectCall) effect()       {}
func (EffectSynthesize) effect() {}
func (EffectAnswer) effect()     {}
func (EffectPersist) effect()    {}

// Sufficient reports whether a knowledge result answers the query on its
// own: longer than 100 characters and no "no relevant" anywhere in it.
func Sufficient(result *string) bool {
	if result == nil {
		return false
	}
	r := *result
	return utf8.RuneCountInString(r) > 100 && !strings.Contains(strings.ToLower(r), "no relevant")
}

// Transition returns the step that follows s.Step and the effect to perform
// there. It does not touch s.
func Transition(s *State) (Step, Effect) {
	switch s.Step {
	case StepStart:
		return StepRoute, EffectRoute{}

	case StepRoute:
		if s.Err != nil || s.Routing == nil {
			return StepDone, EffectNone{}
		}
		if s.Routing.CheckKnowledgeFirst {
			return StepCheckKnowledge, EffectCall{
				Agent:   agent.Knowledge,
				Message: knowledge.Encode(knowledge.Search{Query: s.Query}),
			}
		}
		return researchStep(s)

	case StepCheckKnowledge:
		if Sufficient(s.KnowledgeResult) {
			return synthesizeStep(s)
		}
		return researchStep(s)

	case StepCallResearch:
		if s.routed(agent.Explainer) {
			research := ""
			if s.ResearchResult != nil {
				research = *s.ResearchResult
			}
			return StepCallExplainer, EffectCall{
				Agent:   agent.Explainer,
				Message: a2a.UserMessage(s.Query + ExplainerSeparator + research),
			}
		}
		return synthesizeStep(s)

	case StepCallExplainer:
		return synthesizeStep(s)

	case StepSynthesize:
		if s.Err == nil && s.Final != nil && len(s.Responses) > 0 {
			return StepDone, EffectPersist{Message: knowledge.Encode(knowledge.Store{
				Query:   s.Query,
				Content: s.Final.Answer,
				Source:  PersistSource,
			})}
		}
		return StepDone, EffectNone{}
	}
	return StepDone, EffectNone{}
}

// researchStep enters CALL_RESEARCH, as a pass-through when research was not
// routed.
func researchStep(s *State) (Step, Effect) {
	if !s.routed(agent.Research) {
		return StepCallResearch, EffectNone{}
	}
	return StepCallResearch, EffectCall{Agent: agent.Research, Message: a2a.UserMessage(s.Query)}
}

func synthesizeStep(s *State) (Step, Effect) {
	if len(s.Responses) == 0 {
		return StepSynthesize, EffectAnswer{Final: agent.Synthesized{
			Answer:     NoInfoAnswer,
			Sources:    []string{},
			AgentsUsed: []string{},
		}}
	}
	return StepSynthesize, EffectSynthesize{}
}
