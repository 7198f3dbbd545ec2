package workflow

import (
	"fmt"
	"strings"

	"github.com/mtzanidakis/quorum/internal/agent"
)

type FailureKind int

const (
	FailureRouting FailureKind = iota + 1
	FailureSubAgent
	FailureSynthesis
	FailurePersistence
)

func (k FailureKind) String() string {
	switch k {
	case FailureRouting:
		return "routing"
	case FailureSubAgent:
		return "sub_agent"
	case FailureSynthesis:
		return "synthesis"
	case FailurePersistence:
		return "persistence"
	}
	return "unknown"
}

// Failure is a fatal step failure. Message is the user-facing detail.
type Failure struct {
	Kind    FailureKind
	Step    Step
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Err }

type Action int

const (
	// Fatal sets State.Err and ends the run.
	Fatal Action = iota + 1
	// Record appends an unsuccessful response and continues.
	Record
	// Swallow logs and continues as if the step produced nothing.
	Swallow
)

type Rule struct {
	Kind   FailureKind
	Action Action
	// Prefix starts the Failure message of fatal rules.
	Prefix string
}

// Policy says what a failed step does to the run.
var Policy = map[Step]Rule{
	StepRoute:          {Kind: FailureRouting, Action: Fatal, Prefix: "Routing failed"},
	StepCheckKnowledge: {Kind: FailureSubAgent, Action: Swallow},
	StepCallResearch:   {Kind: FailureSubAgent, Action: Record},
	StepCallExplainer:  {Kind: FailureSubAgent, Action: Record},
	StepSynthesize:     {Kind: FailureSynthesis, Action: Fatal, Prefix: "Synthesis failed"},
	StepPersist:        {Kind: FailurePersistence, Action: Swallow},
}

// onFailure turns a step error into the update its rule prescribes.
func onFailure(step Step, a agent.Type, err error) (Update, Rule) {
	rule, ok := Policy[step]
	if !ok {
		rule = Rule{Kind: FailureSubAgent, Action: Fatal, Prefix: fmt.Sprintf("Step %s failed", step)}
	}

	switch rule.Action {
	case Fatal:
		// Errors that already say "synthesis failed: ..." are not prefixed twice.
		detail := strings.TrimPrefix(err.Error(), strings.ToLower(rule.Prefix)+": ")
		return Update{Err: &Failure{
			Kind:    rule.Kind,
			Step:    step,
			Message: rule.Prefix + ": " + detail,
			Err:     err,
		}}, rule
	case Record:
		return Update{Responses: []agent.Response{agent.Failed(a, err)}}, rule
	default:
		return Update{}, rule
	}
}
