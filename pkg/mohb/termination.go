package mohb

import (
	"time"

	"github.com/XiaoConstantine/mohb-go/pkg/errors"
)

// TerminationPolicy evaluates exactly one of the four stopping criteria:
// function evaluations, Hyperband brackets, cumulative reported cost or
// elapsed wallclock time.
type TerminationPolicy struct {
	fevals    int
	brackets  int
	totalCost float64
	wallclock time.Duration
}

// NewTerminationPolicy validates that exactly one criterion is set.
func NewTerminationPolicy(fevals, brackets int, totalCost, wallclockSeconds float64) (*TerminationPolicy, error) {
	set := 0
	if fevals > 0 {
		set++
	}
	if brackets > 0 {
		set++
	}
	if totalCost > 0 {
		set++
	}
	if wallclockSeconds > 0 {
		set++
	}
	if set != 1 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfig,
				"need exactly one of fevals, brackets, total_cost or total_wallclock_cost as the run budget"),
			errors.Fields{"criteria_set": set},
		)
	}
	return &TerminationPolicy{
		fevals:    fevals,
		brackets:  brackets,
		totalCost: totalCost,
		wallclock: time.Duration(wallclockSeconds * float64(time.Second)),
	}, nil
}

// BracketLimit returns the configured bracket count, if that criterion
// is the active one. The scheduler uses it to discard job suggestions
// from brackets past the limit.
func (p *TerminationPolicy) BracketLimit() (int, bool) {
	return p.brackets, p.brackets > 0
}

// runStatus is the scheduler-owned state a stop decision depends on.
type runStatus struct {
	evaluations    int
	bracketCounter int // number of brackets started so far
	activeBrackets []*Bracket
	cumulativeCost float64
	elapsed        time.Duration
}

// Exhausted reports whether the run budget is spent. For the brackets
// criterion, completion is not declared while any bracket below the
// limit still has unresolved work, even though newer brackets may have
// started already.
func (p *TerminationPolicy) Exhausted(s runStatus) bool {
	switch {
	case p.fevals > 0:
		return s.evaluations >= p.fevals
	case p.brackets > 0:
		if s.bracketCounter < p.brackets {
			return false
		}
		for _, b := range s.activeBrackets {
			if b.ID < p.brackets && !b.IsBracketDone() {
				return false
			}
		}
		return true
	case p.totalCost > 0:
		return s.cumulativeCost >= p.totalCost
	default:
		return s.elapsed >= p.wallclock
	}
}
