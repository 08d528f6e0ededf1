// Package mohb is a Go implementation of multi-objective Hyperband for
// hyperparameter optimization under multiple competing objectives.
//
// MOHB-Go runs the Hyperband schedule of successive-halving brackets
// over a black-box objective function, replacing the scalar ranking of
// classic Hyperband with multi-objective selection. It focuses on
// making it easy to:
//   - Evaluate cheap low-fidelity configurations broadly and promote
//     only the most promising ones to higher budgets
//   - Trade off several objectives at once (error vs. latency, quality
//     vs. cost) instead of collapsing them into one number
//   - Run evaluations in parallel on a bounded worker pool, optionally
//     with per-GPU load accounting on a single node
//   - Persist Pareto fronts and full evaluation histories as the run
//     progresses
//
// Key Components:
//
//   - Planner: computes the geometric budget ladder and the bracket
//     geometry (how many configurations enter each successive-halving
//     iteration, and at which fidelity).
//
//   - Bracket: the per-iteration state machine. Each rung tracks how
//     many jobs remain to schedule and how many have resolved; a rung
//     opens only once the rung below it is fully resolved.
//
//   - Ranker: multi-objective selection used at promotion time.
//     Strategies: eps_net, nsga_ii, random_weights, parego and golovin.
//
//   - Dispatcher: bounded asynchronous execution of evaluations with a
//     poll/drain interface. A worker count of one degrades to fully
//     synchronous inline execution.
//
//   - TerminationPolicy: exactly one run budget out of function
//     evaluations, brackets, cumulative cost or wallclock time.
//
// Simple Example:
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/XiaoConstantine/mohb-go/pkg/config"
//	    "github.com/XiaoConstantine/mohb-go/pkg/mohb"
//	)
//
//	func main() {
//	    cfg := &config.Config{
//	        Hyperband: config.HyperbandConfig{MinBudget: 1, MaxBudget: 81, Eta: 3},
//	        MultiObjective: config.MultiObjectiveConfig{
//	            Objectives: []string{"error", "latency"},
//	            Strategy:   "nsga_ii",
//	        },
//	        Workers: config.WorkerConfig{Count: 4},
//	        Run:     config.RunConfig{Fevals: 200},
//	    }
//
//	    evaluate := mohb.EvaluatorFunc(func(ctx context.Context, c mohb.Configuration, budget float64, extra map[string]interface{}) (mohb.EvalResult, error) {
//	        errRate, latency, cost := trainAndScore(c, budget)
//	        return mohb.EvalResult{
//	            Fitness: map[string]float64{"error": errRate, "latency": latency},
//	            Cost:    cost,
//	        }, nil
//	    })
//
//	    opt, err := mohb.New(cfg, mySampler, evaluate)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    _, _, err = opt.Run(context.Background(), mohb.RunOptions{Verbose: true})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    for _, t := range opt.Pareto() {
//	        log.Printf("incumbent %v -> %v", t.Config, t.Fitness)
//	    }
//	}
//
// The objective function contract: Fitness must report a value for
// every configured objective (all minimized) and Cost must be
// non-negative. Violations abort the run with a ContractViolation
// error, since silently dropping results would corrupt the comparison
// of configurations inside a bracket.
package mohb
