package mohb

import (
	"fmt"
	"strings"

	"github.com/XiaoConstantine/mohb-go/pkg/errors"
)

// rung is one fidelity level inside a bracket: a budget, a target
// candidate count and the trials currently attached to it. toSchedule
// counts the slots not yet handed to a worker, done counts retrieved
// results; target-toSchedule-done jobs are in flight.
type rung struct {
	budget     float64
	target     int
	toSchedule int
	done       int
	trials     []*Trial
}

// Bracket owns the rung ladder of one Hyperband iteration and the gating
// that gives synchronous Successive Halving semantics while jobs resolve
// asynchronously.
type Bracket struct {
	ID    int
	rungs []*rung
}

// NewBracket builds a bracket from the planner's (counts, budgets) pair
// for one iteration. Budgets are a contiguous suffix of the global
// ladder, strictly increasing; counts are non-increasing.
func NewBracket(id int, ns []int, budgets []float64) *Bracket {
	rungs := make([]*rung, len(budgets))
	for i, budget := range budgets {
		rungs[i] = &rung{
			budget:     budget,
			target:     ns[i],
			toSchedule: ns[i],
		}
	}
	return &Bracket{ID: id, rungs: rungs}
}

// findRung returns the rung index for a budget, or an error if the budget
// does not belong to this bracket.
func (b *Bracket) findRung(budget float64) (int, error) {
	for i, r := range b.rungs {
		if r.budget == budget {
			return i, nil
		}
	}
	return 0, errors.WithFields(
		errors.New(errors.ResourceNotFound, "budget does not belong to bracket"),
		errors.Fields{"budget": budget, "bracket_id": b.ID},
	)
}

// Budgets returns the bracket's rung budgets, lowest first.
func (b *Bracket) Budgets() []float64 {
	out := make([]float64, len(b.rungs))
	for i, r := range b.rungs {
		out[i] = r.budget
	}
	return out
}

// BaseBudget is the budget of the bracket's lowest rung.
func (b *Bracket) BaseBudget() float64 {
	return b.rungs[0].budget
}

// TargetCount returns the candidate count of the rung at the budget.
func (b *Bracket) TargetCount(budget float64) int {
	i, err := b.findRung(budget)
	if err != nil {
		return 0
	}
	return b.rungs[i].target
}

// NextJobBudget returns the lowest-budget rung that still has unfilled
// slots. A rung above the base is eligible only once every lower rung has
// all of its results in; otherwise the bracket signals waiting (ok ==
// false). This is the rung-gate invariant.
func (b *Bracket) NextJobBudget() (float64, bool) {
	for i, r := range b.rungs {
		if r.toSchedule == 0 {
			continue
		}
		for j := 0; j < i; j++ {
			if b.rungs[j].done < b.rungs[j].target {
				return 0, false
			}
		}
		return r.budget, true
	}
	return 0, false
}

// IsPending reports whether any rung still has a slot to schedule.
func (b *Bracket) IsPending() bool {
	for _, r := range b.rungs {
		if r.toSchedule > 0 {
			return true
		}
	}
	return false
}

// PreviousRungWaits reports whether the bracket has work left that cannot
// start because a lower rung is still resolving.
func (b *Bracket) PreviousRungWaits() bool {
	if !b.IsPending() {
		return false
	}
	_, ok := b.NextJobBudget()
	return !ok
}

// SetTrials attaches the candidate trials of a rung. Called once per rung
// by the scheduler, either with fresh samples (base rung) or with ranked
// promotions from the rung below.
func (b *Bracket) SetTrials(budget float64, trials []*Trial) error {
	i, err := b.findRung(budget)
	if err != nil {
		return err
	}
	b.rungs[i].trials = trials
	if len(trials) < b.rungs[i].toSchedule {
		// fewer candidates than planned slots: shrink the rung so the
		// bracket can still finish (promotion never exceeds the number
		// of completed lower-rung trials)
		b.rungs[i].toSchedule = len(trials)
		b.rungs[i].target = b.rungs[i].done + len(trials)
	}
	return nil
}

// Trials returns the trials attached to a rung; nil until populated.
func (b *Bracket) Trials(budget float64) []*Trial {
	i, err := b.findRung(budget)
	if err != nil {
		return nil
	}
	return b.rungs[i].trials
}

// PendingTrials returns the rung's trials that have not started running.
func (b *Bracket) PendingTrials(budget float64) []*Trial {
	i, err := b.findRung(budget)
	if err != nil {
		return nil
	}
	var pending []*Trial
	for _, t := range b.rungs[i].trials {
		if t.Status == TrialPending {
			pending = append(pending, t)
		}
	}
	return pending
}

// RegisterJob marks the trial as running and consumes one of the rung's
// slots. A trial that does not belong to the rung is a programmer error,
// not a recoverable condition.
func (b *Bracket) RegisterJob(budget float64, trial *Trial) error {
	i, err := b.findRung(budget)
	if err != nil {
		return err
	}
	r := b.rungs[i]
	if r.toSchedule <= 0 {
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "rung has no unfilled slots"),
			errors.Fields{"budget": budget, "bracket_id": b.ID},
		)
	}
	for _, t := range r.trials {
		if t.ID == trial.ID {
			if t.Status != TrialPending {
				return errors.WithFields(
					errors.New(errors.ValidationFailed, "trial already registered"),
					errors.Fields{"trial_id": trial.ID},
				)
			}
			t.Status = TrialRunning
			t.Budget = budget
			r.toSchedule--
			return nil
		}
	}
	return errors.WithFields(
		errors.New(errors.ValidationFailed, "trial does not belong to rung"),
		errors.Fields{"budget": budget, "bracket_id": b.ID, "trial_id": trial.ID},
	)
}

// CompleteJob marks the matching running trial complete and attaches its
// fitness, cost and metadata.
func (b *Bracket) CompleteJob(budget float64, trialID string, res EvalResult) (*Trial, error) {
	i, err := b.findRung(budget)
	if err != nil {
		return nil, err
	}
	r := b.rungs[i]
	for _, t := range r.trials {
		if t.ID == trialID {
			if t.Status != TrialRunning {
				return nil, errors.WithFields(
					errors.New(errors.ValidationFailed, "completed trial was not running"),
					errors.Fields{"trial_id": trialID, "status": t.Status.String()},
				)
			}
			t.Status = TrialComplete
			t.Fitness = res.Fitness
			t.Cost = res.Cost
			t.Info = res.Info
			r.done++
			return t, nil
		}
	}
	return nil, errors.WithFields(
		errors.New(errors.ResourceNotFound, "no running trial matches result"),
		errors.Fields{"budget": budget, "bracket_id": b.ID, "trial_id": trialID},
	)
}

// CompletedTrials returns the trials of a rung that have resolved.
func (b *Bracket) CompletedTrials(budget float64) []*Trial {
	i, err := b.findRung(budget)
	if err != nil {
		return nil
	}
	var done []*Trial
	for _, t := range b.rungs[i].trials {
		if t.Status == TrialComplete {
			done = append(done, t)
		}
	}
	return done
}

// LowerBudgetPromotions identifies the adjacent lower rung to promote
// from and how many trials to promote (the current rung's target count).
func (b *Bracket) LowerBudgetPromotions(budget float64) (lowerBudget float64, count int, err error) {
	i, err := b.findRung(budget)
	if err != nil {
		return 0, 0, err
	}
	prev := i - 1
	if prev < 0 {
		prev = 0
	}
	return b.rungs[prev].budget, b.rungs[i].target, nil
}

// IsBracketDone reports whether every trial in the top rung is complete.
// Once done, the bracket is retired and never reopened.
func (b *Bracket) IsBracketDone() bool {
	top := b.rungs[len(b.rungs)-1]
	return top.done >= top.target
}

// String renders the rung table for debug logging.
func (b *Bracket) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "bracket %d:", b.ID)
	for _, r := range b.rungs {
		inflight := r.target - r.toSchedule - r.done
		fmt.Fprintf(&sb, " [budget=%g target=%d to_schedule=%d in_flight=%d done=%d]",
			r.budget, r.target, r.toSchedule, inflight, r.done)
	}
	return sb.String()
}
