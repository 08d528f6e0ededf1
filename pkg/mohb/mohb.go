// Package mohb implements multi-objective, multi-fidelity optimization of
// a black-box function: a Hyperband budget schedule drives Successive
// Halving brackets whose evaluations run asynchronously on a bounded
// worker pool, with a pluggable multi-objective ranking layer governing
// rung promotion and a running Pareto front over all resolved trials.
package mohb

import (
	"context"
	"math/rand"
	"time"

	"github.com/XiaoConstantine/mohb-go/pkg/config"
	"github.com/XiaoConstantine/mohb-go/pkg/errors"
	"github.com/XiaoConstantine/mohb-go/pkg/logging"
)

// IncumbentSaver persists the current Pareto front, keyed by run name.
// Best effort: failures are logged and the run continues.
type IncumbentSaver interface {
	SaveIncumbents(name string, front []*Trial) error
}

// HistorySaver persists the full evaluation history, keyed by run name.
type HistorySaver interface {
	SaveHistory(name string, history []HistoryRecord) error
}

// MOHB is the top-level scheduler. All of its mutable state is owned and
// mutated exclusively by the goroutine driving Run; results re-enter
// through the Dispatcher's poll step only.
type MOHB struct {
	cfg         *config.Config
	planner     *Planner
	ranker      *Ranker
	dispatcher  *Dispatcher
	termination *TerminationPolicy
	sampler     Sampler
	logger      *logging.Logger
	rng         *rand.Rand

	incumbents   IncumbentSaver
	historyStore HistorySaver

	iterationCounter int // brackets started so far; also the next bracket id
	activeBrackets   []*Bracket
	archive          []*Trial
	pareto           []*Trial
	costs            []float64
	history          []HistoryRecord
	cumulativeCost   float64
	start            time.Time
	runName          string
	extra            map[string]interface{}
}

// Option configures optional collaborators of the scheduler.
type Option func(*MOHB)

// WithLogger overrides the global logger for this scheduler instance.
func WithLogger(l *logging.Logger) Option {
	return func(m *MOHB) { m.logger = l }
}

// WithRand injects a seeded random source so device orderings and weight
// pools are reproducible in tests.
func WithRand(rng *rand.Rand) Option {
	return func(m *MOHB) { m.rng = rng }
}

// WithDispatcher supplies a pre-built worker-pool handle instead of a
// worker count.
func WithDispatcher(d *Dispatcher) Option {
	return func(m *MOHB) { m.dispatcher = d }
}

// WithIncumbentSaver attaches the Pareto-front persistence collaborator.
func WithIncumbentSaver(s IncumbentSaver) Option {
	return func(m *MOHB) { m.incumbents = s }
}

// WithHistorySaver attaches the history persistence collaborator.
func WithHistorySaver(s HistorySaver) Option {
	return func(m *MOHB) { m.historyStore = s }
}

// New validates the configuration and wires the scheduler. Fatal
// configuration errors surface here, before any work is dispatched:
// max_budget <= min_budget, no worker count or pool handle, an unknown
// ranking strategy, or a run budget that is not exactly one criterion.
func New(cfg *config.Config, sampler Sampler, evaluate Evaluator, opts ...Option) (*MOHB, error) {
	cfg.ApplyDefaults()

	planner, err := NewPlanner(cfg.Hyperband.MinBudget, cfg.Hyperband.MaxBudget, cfg.Hyperband.Eta,
		cfg.Hyperband.MinClip, cfg.Hyperband.MaxClip)
	if err != nil {
		return nil, err
	}

	termination, err := NewTerminationPolicy(cfg.Run.Fevals, cfg.Run.Brackets,
		cfg.Run.TotalCost, cfg.Run.TotalWallclockCost)
	if err != nil {
		return nil, err
	}

	m := &MOHB{
		cfg:         cfg,
		planner:     planner,
		termination: termination,
		sampler:     sampler,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger, err = logging.NewRunLogger(cfg.Logging.Level, cfg.Logging.File, cfg.Output.Path)
		if err != nil {
			return nil, errors.Wrap(err, errors.InvalidConfig, "failed to build run logger")
		}
	}
	if m.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		m.rng = rand.New(rand.NewSource(seed))
	}

	m.ranker, err = NewRanker(Strategy(cfg.MultiObjective.Strategy),
		len(cfg.MultiObjective.Objectives), cfg.MultiObjective.NumWeights, m.rng)
	if err != nil {
		return nil, err
	}

	if m.dispatcher == nil {
		if cfg.Workers.Count < 1 {
			return nil, errors.New(errors.InvalidConfig,
				"need either a worker count (>=1) or a pre-built dispatcher")
		}
		m.dispatcher, err = NewDispatcher(cfg.Workers.Count, evaluate, m.logger)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RunOptions are the per-run knobs of the entrypoint contract. The run
// budget itself lives in the configuration.
type RunOptions struct {
	// SingleNodeWithGPUs enables least-loaded GPU device accounting over
	// the configured device list.
	SingleNodeWithGPUs bool

	// Verbose and Debug control logging verbosity only.
	Verbose bool
	Debug   bool

	// SaveIntermediate and SaveHistory enable the persistence
	// collaborator calls after each loop tick.
	SaveIntermediate bool
	SaveHistory      bool

	// Extra is shared data attached to every evaluation.
	Extra map[string]interface{}
}

// Run drives the main scheduling loop until the termination policy
// signals stop, then drains all in-flight jobs. It returns the per-trial
// cost sequence and the full evaluation history.
func (m *MOHB) Run(ctx context.Context, opts RunOptions) ([]float64, []HistoryRecord, error) {
	m.start = time.Now()
	m.runName = m.start.Format("01-02-06_15-04-05")
	m.extra = opts.Extra

	if opts.SingleNodeWithGPUs {
		m.dispatcher.DistributeGPUs(m.cfg.Workers.GPUDevices, m.rng)
	}
	if opts.Verbose {
		m.logger.Info(ctx, "Optimization starting at %s, run name %s",
			m.start.Format(time.RFC3339), m.runName)
	}

	for {
		if m.termination.Exhausted(m.status()) {
			break
		}
		if err := errors.CheckContext(ctx, "optimization run"); err != nil {
			// stop issuing new work; in-flight jobs still drain below
			m.logger.Warn(ctx, "Context canceled, stopping new submissions")
			break
		}

		submitted := false
		if m.dispatcher.HasCapacity() {
			job, bracket, err := m.nextJob(ctx)
			if err != nil {
				return m.costs, m.history, err
			}
			if limit, ok := m.termination.BracketLimit(); ok && bracket.ID >= limit {
				// the bracket counter has already crossed the run budget;
				// suggestions from the extra bracket are discarded and
				// only results are collected from here on
				m.logger.Debug(ctx, "Discarding suggestion from bracket %d past the limit %d", bracket.ID, limit)
			} else {
				if err := m.submit(ctx, job, bracket, opts); err != nil {
					return m.costs, m.history, err
				}
				submitted = true
			}
		}

		results := m.dispatcher.Poll()
		for _, r := range results {
			if err := m.processResult(ctx, r); err != nil {
				return m.costs, m.history, err
			}
		}
		m.persistTick(ctx, opts)
		m.cleanInactiveBrackets()

		if !submitted && len(results) == 0 && m.dispatcher.InFlight() > 0 {
			// all workers busy and nothing came back: yield briefly
			// instead of spinning hot
			time.Sleep(time.Millisecond)
		}
	}

	if m.dispatcher.InFlight() > 0 && opts.Verbose {
		m.logger.Info(ctx, "Optimization over, waiting to collect results from %d running worker(s)",
			m.dispatcher.InFlight())
	}
	for _, r := range m.dispatcher.Drain() {
		if err := m.processResult(ctx, r); err != nil {
			return m.costs, m.history, err
		}
	}
	m.persistTick(ctx, opts)
	m.saveIncumbents(ctx)
	m.saveHistory(ctx)

	if opts.Verbose {
		m.logger.Info(ctx, "End of optimization: duration=%v fevals=%d pareto_size=%d",
			time.Since(m.start), len(m.archive), len(m.pareto))
		for _, t := range m.pareto {
			m.logger.Info(ctx, "Incumbent config: %v fitness: %v", t.Config, t.Fitness)
		}
	}

	return m.costs, m.history, nil
}

// status snapshots the state the termination policy depends on.
func (m *MOHB) status() runStatus {
	return runStatus{
		evaluations:    len(m.archive),
		bracketCounter: m.iterationCounter,
		activeBrackets: m.activeBrackets,
		cumulativeCost: m.cumulativeCost,
		elapsed:        time.Since(m.start),
	}
}

// Pareto returns the current best-known front over the archive.
func (m *MOHB) Pareto() []*Trial {
	out := make([]*Trial, len(m.pareto))
	copy(out, m.pareto)
	return out
}

// CumulativeCost returns the summed cost of all resolved trials.
func (m *MOHB) CumulativeCost() float64 {
	return m.cumulativeCost
}

// Reset clears the archive and every tracker, keeping the configured
// collaborators so the scheduler can be reused for a fresh run.
func (m *MOHB) Reset() {
	m.iterationCounter = 0
	m.activeBrackets = nil
	m.archive = nil
	m.pareto = nil
	m.costs = nil
	m.history = nil
	m.cumulativeCost = 0
	m.logger.Info(context.Background(), "RESET at %s", time.Now().Format(time.RFC3339))
}

// startNewBracket begins the next Hyperband iteration.
func (m *MOHB) startNewBracket(ctx context.Context) *Bracket {
	ns, budgets := m.planner.NextIteration(m.iterationCounter)
	bracket := NewBracket(m.iterationCounter, ns, budgets)
	m.iterationCounter++
	m.activeBrackets = append(m.activeBrackets, bracket)
	m.logger.Debug(ctx, "Started %s", bracket)
	return bracket
}

// nextJob selects an eligible bracket (pending and not gated on a lower
// rung), starting a new one when none exists, and acquires the trial to
// run next.
func (m *MOHB) nextJob(ctx context.Context) (Job, *Bracket, error) {
	var bracket *Bracket
	allDone := true
	for _, b := range m.activeBrackets {
		if !b.IsBracketDone() {
			allDone = false
		}
	}
	if len(m.activeBrackets) == 0 || allDone {
		bracket = m.startNewBracket(ctx)
	} else {
		for _, b := range m.activeBrackets {
			if !b.PreviousRungWaits() && b.IsPending() {
				bracket = b
				break
			}
		}
		if bracket == nil {
			// every active bracket is waiting on lower-rung results
			bracket = m.startNewBracket(ctx)
		}
	}

	budget, ok := bracket.NextJobBudget()
	if !ok {
		return Job{}, bracket, errors.WithFields(
			errors.New(errors.Unknown, "selected bracket produced no job budget"),
			errors.Fields{"bracket_id": bracket.ID},
		)
	}

	trial, err := m.acquireTrial(ctx, bracket, budget)
	if err != nil {
		return Job{}, bracket, err
	}

	return Job{
		Trial:     trial,
		Budget:    budget,
		BracketID: bracket.ID,
		Extra:     m.extra,
	}, bracket, nil
}

// acquireTrial populates the rung's candidates on first touch (fresh
// samples at the base rung, ranked promotions above it) and returns the
// first pending trial.
func (m *MOHB) acquireTrial(ctx context.Context, bracket *Bracket, budget float64) (*Trial, error) {
	if bracket.Trials(budget) == nil {
		if budget == bracket.BaseBudget() {
			popSize := bracket.TargetCount(budget)
			m.logger.Debug(ctx, "Randomly initializing %d candidate(s) for budget %g in bracket %d",
				popSize, budget, bracket.ID)
			configs, err := m.sampler.Sample(popSize)
			if err != nil {
				return nil, errors.Wrap(err, errors.EvaluationFailed, "sampler failed to draw configurations")
			}
			trials := make([]*Trial, len(configs))
			for i, c := range configs {
				trials[i] = NewTrial(c)
			}
			if err := bracket.SetTrials(budget, trials); err != nil {
				return nil, err
			}
		} else {
			lowerBudget, n, err := bracket.LowerBudgetPromotions(budget)
			if err != nil {
				return nil, err
			}
			m.logger.Debug(ctx, "Promoting %d configuration(s) from budget %g to budget %g in bracket %d",
				n, lowerBudget, budget, bracket.ID)

			candidates := bracket.CompletedTrials(lowerBudget)
			fitness := make([][]float64, len(candidates))
			for i, t := range candidates {
				fitness[i] = t.fitnessVector(m.cfg.MultiObjective.Objectives)
			}
			ranked := m.ranker.Rank(normalizeByMax(fitness), n)

			promoted := make([]*Trial, len(ranked))
			for i, idx := range ranked {
				promoted[i] = candidates[idx].Promote()
			}
			if err := bracket.SetTrials(budget, promoted); err != nil {
				return nil, err
			}
		}
	}

	pending := bracket.PendingTrials(budget)
	if len(pending) == 0 {
		return nil, errors.WithFields(
			errors.New(errors.Unknown, "rung has no pending trial to schedule"),
			errors.Fields{"bracket_id": bracket.ID, "budget": budget},
		)
	}
	return pending[0], nil
}

// submit registers the job with its bracket and hands it to the pool.
func (m *MOHB) submit(ctx context.Context, job Job, bracket *Bracket, opts RunOptions) error {
	if err := bracket.RegisterJob(job.Budget, job.Trial); err != nil {
		return err
	}
	jobCtx := logging.WithBudget(logging.WithBracketID(ctx, bracket.ID), job.Budget)
	if err := m.dispatcher.Submit(jobCtx, job); err != nil {
		return err
	}
	if opts.Verbose {
		m.verbosityRuntime(ctx)
		m.logger.Info(ctx, "Evaluating a configuration with budget %g under bracket %d", job.Budget, bracket.ID)
	}
	if opts.Debug {
		for _, b := range m.activeBrackets {
			m.logger.Debug(ctx, "%s", b)
		}
	}
	return nil
}

// processResult routes a completed evaluation back into its bracket and
// the global archive, then recomputes the Pareto front.
func (m *MOHB) processResult(ctx context.Context, r *jobResult) error {
	if r.err != nil {
		return errors.Wrap(r.err, errors.EvaluationFailed, "objective function failed")
	}
	if err := m.checkContract(r.res); err != nil {
		return err
	}

	var bracket *Bracket
	for _, b := range m.activeBrackets {
		if b.ID == r.job.BracketID {
			bracket = b
			break
		}
	}
	if bracket == nil {
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "result arrived for a retired bracket"),
			errors.Fields{"bracket_id": r.job.BracketID},
		)
	}

	trial, err := bracket.CompleteJob(r.job.Budget, r.job.Trial.ID, r.res)
	if err != nil {
		return err
	}

	m.archive = append(m.archive, trial)
	m.cumulativeCost += r.res.Cost
	m.costs = append(m.costs, r.res.Cost)
	m.history = append(m.history, HistoryRecord{
		Config:  trial.Config,
		Fitness: trial.Fitness,
		Cost:    trial.Cost,
		Budget:  trial.Budget,
		Info:    trial.Info,
	})
	m.updatePareto()

	m.logger.Debug(ctx, "Collected result for bracket %d budget %g: fitness=%v cost=%g",
		r.job.BracketID, r.job.Budget, r.res.Fitness, r.res.Cost)
	return nil
}

// checkContract enforces the objective-function contract: fitness must
// cover every configured objective and cost must be reported.
func (m *MOHB) checkContract(res EvalResult) error {
	if res.Fitness == nil {
		return errors.New(errors.ContractViolation, "evaluation result is missing fitness")
	}
	for _, obj := range m.cfg.MultiObjective.Objectives {
		if _, ok := res.Fitness[obj]; !ok {
			return errors.WithFields(
				errors.New(errors.ContractViolation, "evaluation result is missing an objective"),
				errors.Fields{"objective": obj},
			)
		}
	}
	if res.Cost < 0 {
		return errors.WithFields(
			errors.New(errors.ContractViolation, "evaluation result reports a negative cost"),
			errors.Fields{"cost": res.Cost},
		)
	}
	return nil
}

// updatePareto recomputes the non-dominated front over the full archive.
func (m *MOHB) updatePareto() {
	fitness := make([][]float64, len(m.archive))
	for i, t := range m.archive {
		fitness[i] = t.fitnessVector(m.cfg.MultiObjective.Objectives)
	}
	front := ParetoFront(fitness)
	m.pareto = make([]*Trial, len(front))
	for i, idx := range front {
		m.pareto[i] = m.archive[idx]
	}
}

// cleanInactiveBrackets retires brackets that have fully resolved.
func (m *MOHB) cleanInactiveBrackets() {
	if len(m.activeBrackets) == 0 {
		return
	}
	var active []*Bracket
	for _, b := range m.activeBrackets {
		if !b.IsBracketDone() {
			active = append(active, b)
		}
	}
	m.activeBrackets = active
}

// persistTick offers the current Pareto front and history to the
// persistence collaborator after a loop tick.
func (m *MOHB) persistTick(ctx context.Context, opts RunOptions) {
	if opts.SaveIntermediate {
		m.saveIncumbents(ctx)
	}
	if opts.SaveHistory {
		m.saveHistory(ctx)
	}
}

func (m *MOHB) saveIncumbents(ctx context.Context) {
	if m.incumbents == nil {
		return
	}
	if err := m.incumbents.SaveIncumbents(m.runName, m.pareto); err != nil {
		m.logger.Warn(ctx, "Pareto front not saved: %v", err)
	}
}

func (m *MOHB) saveHistory(ctx context.Context) {
	if m.historyStore == nil {
		return
	}
	if err := m.historyStore.SaveHistory(m.runName, m.history); err != nil {
		m.logger.Warn(ctx, "History not saved: %v", err)
	}
}

// verbosityRuntime reports progress against the configured run budget.
func (m *MOHB) verbosityRuntime(ctx context.Context) {
	switch {
	case m.termination.fevals > 0:
		m.logger.Info(ctx, "%d/%d function evaluation(s) done", len(m.archive), m.termination.fevals)
	case m.termination.brackets > 0:
		m.logger.Info(ctx, "%d/%d bracket(s) started; # active brackets: %d",
			m.iterationCounter, m.termination.brackets, len(m.activeBrackets))
	case m.termination.totalCost > 0:
		m.logger.Info(ctx, "%.2f/%.2f seconds of reported cost elapsed", m.cumulativeCost, m.termination.totalCost)
	default:
		m.logger.Info(ctx, "%.2f/%.2f seconds (wallclock time) elapsed",
			time.Since(m.start).Seconds(), m.termination.wallclock.Seconds())
	}
}
