package mohb

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/mohb-go/pkg/config"
	"github.com/XiaoConstantine/mohb-go/pkg/errors"
)

// testSampler draws deterministic configurations on a single knob.
type testSampler struct {
	counter int
}

func (s *testSampler) Sample(count int) ([]Configuration, error) {
	configs := make([]Configuration, count)
	for i := range configs {
		s.counter++
		configs[i] = Configuration{"x": float64(s.counter%10) / 10.0}
	}
	return configs, nil
}

// conflictingObjectives is a two-objective function with an obvious
// trade-off: f1 rewards large x, f2 rewards small x.
func conflictingObjectives(cost float64, delay time.Duration) Evaluator {
	return EvaluatorFunc(func(ctx context.Context, cfg Configuration, budget float64, extra map[string]interface{}) (EvalResult, error) {
		if delay > 0 {
			time.Sleep(delay)
		}
		x := cfg["x"].(float64)
		return EvalResult{
			Fitness: map[string]float64{"f1": 1 - x, "f2": x},
			Cost:    cost,
			Info:    map[string]interface{}{"budget": budget},
		}, nil
	})
}

func testConfig(run config.RunConfig) *config.Config {
	return &config.Config{
		Hyperband: config.HyperbandConfig{MinBudget: 1, MaxBudget: 9, Eta: 3},
		MultiObjective: config.MultiObjectiveConfig{
			Objectives: []string{"f1", "f2"},
			Strategy:   "nsga_ii",
			NumWeights: 10,
		},
		Workers: config.WorkerConfig{Count: 1},
		Run:     run,
		Seed:    1,
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"max budget not above min", func(c *config.Config) { c.Hyperband.MaxBudget = c.Hyperband.MinBudget }},
		{"no run criterion", func(c *config.Config) { c.Run = config.RunConfig{} }},
		{"two run criteria", func(c *config.Config) { c.Run.Brackets = 2 }},
		{"unknown strategy", func(c *config.Config) { c.MultiObjective.Strategy = "hill_climbing" }},
		{"no workers", func(c *config.Config) { c.Workers.Count = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(config.RunConfig{Fevals: 5})
			tt.mutate(cfg)
			_, err := New(cfg, &testSampler{}, conflictingObjectives(1, 0))
			require.Error(t, err)
			assert.Equal(t, errors.InvalidConfig, errors.CodeOf(err))
		})
	}
}

func TestRunFevals(t *testing.T) {
	m, err := New(testConfig(config.RunConfig{Fevals: 20}), &testSampler{}, conflictingObjectives(1, 0))
	require.NoError(t, err)

	costs, history, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(costs), 20)
	assert.Equal(t, len(costs), len(history))
	for _, rec := range history {
		assert.Contains(t, rec.Fitness, "f1")
		assert.Contains(t, rec.Fitness, "f2")
		assert.Greater(t, rec.Budget, 0.0)
	}
	for _, trial := range m.archive {
		assert.Equal(t, TrialComplete, trial.Status)
	}
}

func TestRunTotalCost(t *testing.T) {
	const perEval = 7.0
	m, err := New(testConfig(config.RunConfig{TotalCost: 100}), &testSampler{}, conflictingObjectives(perEval, 0))
	require.NoError(t, err)

	costs, _, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, m.CumulativeCost(), 100.0,
		"the run stops only once cumulative cost reaches the budget")
	total := 0.0
	for _, c := range costs {
		total += c
	}
	assert.Equal(t, total, m.CumulativeCost())
}

func TestRunBrackets(t *testing.T) {
	m, err := New(testConfig(config.RunConfig{Brackets: 2}), &testSampler{}, conflictingObjectives(1, 0))
	require.NoError(t, err)

	costs, _, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	// brackets 0 and 1 of the (1, 9, eta=3) geometry hold 13 and 4
	// trials; completion must not be declared before all of them resolve
	assert.GreaterOrEqual(t, len(costs), 17)
	for _, trial := range m.archive {
		assert.Equal(t, TrialComplete, trial.Status)
	}
}

func TestRunAsyncWorkers(t *testing.T) {
	cfg := testConfig(config.RunConfig{Fevals: 15})
	cfg.Workers.Count = 4

	m, err := New(cfg, &testSampler{}, conflictingObjectives(1, time.Millisecond))
	require.NoError(t, err)

	costs, history, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(costs), 15)
	assert.Equal(t, len(costs), len(history))
	assert.Equal(t, 0, m.dispatcher.InFlight(), "the drain phase collects every in-flight job")
}

func TestRunParetoFrontIsNonDominated(t *testing.T) {
	m, err := New(testConfig(config.RunConfig{Fevals: 25}), &testSampler{}, conflictingObjectives(1, 0))
	require.NoError(t, err)

	_, _, err = m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	front := m.Pareto()
	require.NotEmpty(t, front)
	objectives := []string{"f1", "f2"}
	for _, a := range front {
		for _, b := range front {
			if a == b {
				continue
			}
			assert.False(t, dominates(a.fitnessVector(objectives), b.fitnessVector(objectives)),
				"no front member may dominate another")
		}
	}
}

func TestRunGPUAccountingSettles(t *testing.T) {
	cfg := testConfig(config.RunConfig{Fevals: 10})
	cfg.Workers.Count = 2
	cfg.Workers.GPUDevices = []int{0, 1}

	m, err := New(cfg, &testSampler{}, conflictingObjectives(1, time.Millisecond))
	require.NoError(t, err)

	_, _, err = m.Run(context.Background(), RunOptions{SingleNodeWithGPUs: true})
	require.NoError(t, err)

	load := m.dispatcher.gpuLoad()
	require.NotNil(t, load)
	assert.Equal(t, 0, load[0])
	assert.Equal(t, 0, load[1])
}

func TestRunContractViolation(t *testing.T) {
	missing := EvaluatorFunc(func(ctx context.Context, cfg Configuration, budget float64, extra map[string]interface{}) (EvalResult, error) {
		return EvalResult{Fitness: map[string]float64{"f1": 1}, Cost: 1}, nil // f2 missing
	})

	m, err := New(testConfig(config.RunConfig{Fevals: 5}), &testSampler{}, missing)
	require.NoError(t, err)

	_, _, err = m.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.ContractViolation, errors.CodeOf(err))
}

func TestRunEvaluatorError(t *testing.T) {
	failing := EvaluatorFunc(func(ctx context.Context, cfg Configuration, budget float64, extra map[string]interface{}) (EvalResult, error) {
		return EvalResult{}, fmt.Errorf("worker exploded")
	})

	m, err := New(testConfig(config.RunConfig{Fevals: 5}), &testSampler{}, failing)
	require.NoError(t, err)

	_, _, err = m.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.EvaluationFailed, errors.CodeOf(err))
}

func TestRunSharedExtraData(t *testing.T) {
	var sawExtra atomic.Bool
	evaluate := EvaluatorFunc(func(ctx context.Context, cfg Configuration, budget float64, extra map[string]interface{}) (EvalResult, error) {
		if extra["dataset"] == "zdt1" {
			sawExtra.Store(true)
		}
		return EvalResult{Fitness: map[string]float64{"f1": 1, "f2": 2}, Cost: 1}, nil
	})

	m, err := New(testConfig(config.RunConfig{Fevals: 3}), &testSampler{}, evaluate)
	require.NoError(t, err)

	_, _, err = m.Run(context.Background(), RunOptions{Extra: map[string]interface{}{"dataset": "zdt1"}})
	require.NoError(t, err)
	assert.True(t, sawExtra.Load())
}

// recordingSaver captures persistence calls; failing simulates a broken
// disk, which must never abort the run.
type recordingSaver struct {
	incumbentCalls int
	historyCalls   int
	lastName       string
	failing        bool
}

func (r *recordingSaver) SaveIncumbents(name string, front []*Trial) error {
	r.incumbentCalls++
	r.lastName = name
	if r.failing {
		return fmt.Errorf("disk full")
	}
	return nil
}

func (r *recordingSaver) SaveHistory(name string, history []HistoryRecord) error {
	r.historyCalls++
	if r.failing {
		return fmt.Errorf("disk full")
	}
	return nil
}

func TestRunPersistenceCollaborator(t *testing.T) {
	saver := &recordingSaver{}
	m, err := New(testConfig(config.RunConfig{Fevals: 5}), &testSampler{}, conflictingObjectives(1, 0),
		WithIncumbentSaver(saver), WithHistorySaver(saver))
	require.NoError(t, err)

	_, _, err = m.Run(context.Background(), RunOptions{SaveIntermediate: true, SaveHistory: true})
	require.NoError(t, err)

	assert.Greater(t, saver.incumbentCalls, 1)
	assert.Greater(t, saver.historyCalls, 1)
	assert.NotEmpty(t, saver.lastName)
}

func TestRunPersistenceFailureIsNonFatal(t *testing.T) {
	saver := &recordingSaver{failing: true}
	m, err := New(testConfig(config.RunConfig{Fevals: 5}), &testSampler{}, conflictingObjectives(1, 0),
		WithIncumbentSaver(saver), WithHistorySaver(saver))
	require.NoError(t, err)

	costs, _, err := m.Run(context.Background(), RunOptions{SaveIntermediate: true, SaveHistory: true})
	require.NoError(t, err, "persistence failures are logged, not fatal")
	assert.GreaterOrEqual(t, len(costs), 5)
}

func TestRunContextCancelStopsSubmissions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	evaluated := 0
	evaluate := EvaluatorFunc(func(_ context.Context, cfg Configuration, budget float64, extra map[string]interface{}) (EvalResult, error) {
		evaluated++
		if evaluated >= 3 {
			cancel()
		}
		return EvalResult{Fitness: map[string]float64{"f1": 1, "f2": 2}, Cost: 1}, nil
	})

	m, err := New(testConfig(config.RunConfig{Fevals: 1000}), &testSampler{}, evaluate)
	require.NoError(t, err)

	costs, _, err := m.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Less(t, len(costs), 1000)
	assert.Equal(t, 0, m.dispatcher.InFlight())
}

func TestReset(t *testing.T) {
	m, err := New(testConfig(config.RunConfig{Fevals: 5}), &testSampler{}, conflictingObjectives(1, 0))
	require.NoError(t, err)

	_, _, err = m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, m.archive)

	m.Reset()
	assert.Empty(t, m.archive)
	assert.Empty(t, m.Pareto())
	assert.Zero(t, m.CumulativeCost())

	costs, _, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(costs), 5)
}
