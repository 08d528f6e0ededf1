package mohb

import (
	"context"

	"github.com/google/uuid"
)

// Configuration is an opaque mapping from parameter name to value. It is
// produced only by the Sampler collaborator and never mutated once it is
// attached to a Trial.
type Configuration map[string]interface{}

// Clone returns a shallow copy of the configuration. Values are treated
// as immutable by the optimizer, so a shallow copy is enough to decouple
// a promoted trial from its lower-rung origin.
func (c Configuration) Clone() Configuration {
	cloned := make(Configuration, len(c))
	for k, v := range c {
		cloned[k] = v
	}
	return cloned
}

// TrialStatus tracks the one-way pending -> running -> complete lifecycle.
type TrialStatus int

const (
	TrialPending TrialStatus = iota
	TrialRunning
	TrialComplete
)

func (s TrialStatus) String() string {
	return [...]string{"pending", "running", "complete"}[s]
}

// Trial is one evaluation of a configuration at a fidelity level. Trials
// are created when a rung needs a candidate and are retained in the global
// archive for the lifetime of the run.
type Trial struct {
	ID     string
	Config Configuration
	Budget float64
	Status TrialStatus

	// Present only once the trial is complete.
	Fitness map[string]float64
	Cost    float64
	Info    map[string]interface{}
}

// NewTrial creates a pending trial for the given configuration.
func NewTrial(config Configuration) *Trial {
	return &Trial{
		ID:     uuid.New().String(),
		Config: config,
		Status: TrialPending,
	}
}

// Promote clones the trial into a fresh pending trial carrying only the
// configuration. Cloning, not aliasing: later mutation of the lower-rung
// record never affects the promoted copy.
func (t *Trial) Promote() *Trial {
	return NewTrial(t.Config.Clone())
}

// fitnessVector orders the fitness map by the run's objective list.
func (t *Trial) fitnessVector(objectives []string) []float64 {
	vec := make([]float64, len(objectives))
	for i, name := range objectives {
		vec[i] = t.Fitness[name]
	}
	return vec
}

// EvalResult is the contract of the objective function. Fitness must
// cover every configured objective and Cost must be reported; anything
// else is a caller-contract violation surfaced as a fatal error.
type EvalResult struct {
	Fitness map[string]float64
	Cost    float64
	Info    map[string]interface{}
}

// Sampler draws random configurations from the search space. Used only
// to populate base-rung trials.
type Sampler interface {
	Sample(count int) ([]Configuration, error)
}

// Evaluator is the black-box objective function. Extra carries run-wide
// shared data handed to Run once and attached to every evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, config Configuration, budget float64, extra map[string]interface{}) (EvalResult, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, config Configuration, budget float64, extra map[string]interface{}) (EvalResult, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, config Configuration, budget float64, extra map[string]interface{}) (EvalResult, error) {
	return f(ctx, config, budget, extra)
}

// HistoryRecord is one entry of the full evaluation history returned at
// the end of a run.
type HistoryRecord struct {
	Config  Configuration          `json:"config"`
	Fitness map[string]float64     `json:"fitness"`
	Cost    float64                `json:"cost"`
	Budget  float64                `json:"budget"`
	Info    map[string]interface{} `json:"info,omitempty"`
}
