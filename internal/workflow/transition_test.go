package workflow

import (
	"errors"
	"strings"
	"testing"

	"github.com/mtzanidakis/quorum/internal/agent"
	"github.com/mtzanidakis/quorum/internal/knowledge"
	"github.com/mtzanidakis/quorum/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routed(check bool, agents ...agent.Type) *router.Decision {
	return &router.Decision{Agents: agents, CheckKnowledgeFirst: check}
}

func TestTransition(t *testing.T) {
	long := strings.Repeat("x", 101)
	miss := "No relevant information found for: q"

	tests := []struct {
		name     string
		state    State
		wantStep Step
		wantEff  any
	}{
		{"start routes", State{}, StepRoute, EffectRoute{}},
		{"routing error ends", State{Step: StepRoute, Err: &Failure{}}, StepDone, EffectNone{}},
		{"check knowledge first", State{Step: StepRoute, Routing: routed(true, agent.Research)}, StepCheckKnowledge, EffectCall{}},
		{"straight to research", State{Step: StepRoute, Routing: routed(false, agent.Research)}, StepCallResearch, EffectCall{}},
		{"research not routed passes", State{Step: StepRoute, Routing: routed(false, agent.Explainer)}, StepCallResearch, EffectNone{}},
		{"sufficient knowledge synthesizes", State{Step: StepCheckKnowledge, Routing: routed(true, agent.Research), KnowledgeResult: &long,
			Responses: []agent.Response{agent.Succeeded(agent.Knowledge, long)}}, StepSynthesize, EffectSynthesize{}},
		{"insufficient knowledge researches", State{Step: StepCheckKnowledge, Routing: routed(true, agent.Research), KnowledgeResult: &miss}, StepCallResearch, EffectCall{}},
		{"failed knowledge researches", State{Step: StepCheckKnowledge, Routing: routed(true, agent.Research)}, StepCallResearch, EffectCall{}},
		{"explainer after research", State{Step: StepCallResearch, Routing: routed(false, agent.Research, agent.Explainer)}, StepCallExplainer, EffectCall{}},
		{"no explainer synthesizes", State{Step: StepCallResearch, Routing: routed(false, agent.Research),
			Responses: []agent.Response{agent.Succeeded(agent.Research, "R")}}, StepSynthesize, EffectSynthesize{}},
		{"empty responses answer fixed", State{Step: StepCallExplainer, Routing: routed(false)}, StepSynthesize, EffectAnswer{}},
		{"synthesized persists", State{Step: StepSynthesize, Final: &agent.Synthesized{Answer: "a"},
			Responses: []agent.Response{agent.Succeeded(agent.Research, "a")}}, StepDone, EffectPersist{}},
		{"fixed answer does not persist", State{Step: StepSynthesize, Final: &agent.Synthesized{Answer: NoInfoAnswer}}, StepDone, EffectNone{}},
		{"synthesis error ends", State{Step: StepSynthesize, Err: &Failure{},
			Responses: []agent.Response{agent.Succeeded(agent.Research, "a")}}, StepDone, EffectNone{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.state
			s.Query = "q"
			step, eff := Transition(&s)
			assert.Equal(t, tt.wantStep, step)
			assert.IsType(t, tt.wantEff, eff)
		})
	}
}

func TestTransitionIsPure(t *testing.T) {
	s := &State{Query: "q", Step: StepRoute, Routing: routed(true, agent.Research)}
	before := *s
	Transition(s)
	Transition(s)
	assert.Equal(t, before, *s)
}

func TestTransitionMessages(t *testing.T) {
	research := "R"
	s := &State{Query: "q", Step: StepCallResearch, Routing: routed(false, agent.Research, agent.Explainer), ResearchResult: &research}
	_, eff := Transition(s)
	call := eff.(EffectCall)
	assert.Equal(t, agent.Explainer, call.Agent)
	assert.Equal(t, "q\n\nContext from research:\nR", call.Message.Text())

	s = &State{Query: "q", Step: StepRoute, Routing: routed(true)}
	_, eff = Transition(s)
	call = eff.(EffectCall)
	assert.Equal(t, agent.Knowledge, call.Agent)
	assert.Equal(t, "Search for relevant information about: q", call.Message.Text())
	req, err := knowledge.Decode(call.Message)
	require.NoError(t, err)
	assert.Equal(t, knowledge.Search{Query: "q"}, req)
}

func TestSufficient(t *testing.T) {
	long := strings.Repeat("a", 101)
	exactly := strings.Repeat("a", 100)
	negative := strings.Repeat("a", 120) + " NO RELEVANT entries"
	empty := ""
	greekShort := strings.Repeat("λ", 60)
	greekLong := strings.Repeat("λ", 101)

	assert.True(t, Sufficient(&long))
	assert.False(t, Sufficient(&exactly))
	assert.False(t, Sufficient(&negative))
	assert.False(t, Sufficient(&empty))
	assert.False(t, Sufficient(&greekShort), "length is counted in characters, not bytes")
	assert.True(t, Sufficient(&greekLong))
	assert.False(t, Sufficient(nil))
}

func TestApply(t *testing.T) {
	s := NewState("q")
	s.Apply(Update{Responses: []agent.Response{agent.Succeeded(agent.Knowledge, "stale")}})

	s.Apply(Update{Routing: routed(true, agent.Research)})
	assert.Empty(t, s.Responses, "routing resets responses")

	k := "K"
	s.Apply(Update{KnowledgeResult: &k, Responses: []agent.Response{agent.Succeeded(agent.Knowledge, "K")}})
	s.Apply(Update{Responses: []agent.Response{agent.Failed(agent.Research, errors.New("boom"))}})
	require.Len(t, s.Responses, 2)
	assert.Equal(t, "knowledge", s.Responses[0].Agent)
	assert.Equal(t, "research", s.Responses[1].Agent)

	k2 := "K2"
	s.Apply(Update{KnowledgeResult: &k2})
	assert.Equal(t, "K2", *s.KnowledgeResult)
	assert.Len(t, s.Responses, 2)
}

func TestAnswer(t *testing.T) {
	s := NewState("q")
	assert.Equal(t, NoResponseAnswer, s.Answer().Answer)

	s.Final = &agent.Synthesized{Answer: "done"}
	assert.Equal(t, "done", s.Answer().Answer)

	s.Err = &Failure{Message: "Routing failed: x"}
	got := s.Answer()
	assert.Equal(t, "Error: Routing failed: x", got.Answer)
	assert.Empty(t, got.Sources)
}

func TestPolicyTable(t *testing.T) {
	err := errors.New("boom")

	u, rule := onFailure(StepRoute, "", err)
	assert.Equal(t, Fatal, rule.Action)
	require.NotNil(t, u.Err)
	assert.Equal(t, FailureRouting, u.Err.Kind)
	assert.Equal(t, "Routing failed: boom", u.Err.Message)

	u, rule = onFailure(StepCheckKnowledge, agent.Knowledge, err)
	assert.Equal(t, Swallow, rule.Action)
	assert.Equal(t, Update{}, u)

	u, rule = onFailure(StepCallResearch, agent.Research, err)
	assert.Equal(t, Record, rule.Action)
	assert.Equal(t, []agent.Response{{Agent: "research", Error: "boom"}}, u.Responses)

	_, rule = onFailure(StepPersist, agent.Knowledge, err)
	assert.Equal(t, Swallow, rule.Action)

	u, _ = onFailure(StepSynthesize, "", errors.New("synthesis failed: quota"))
	assert.Equal(t, "Synthesis failed: quota", u.Err.Message)
}
