package mohb

import (
	"math"

	"github.com/XiaoConstantine/mohb-go/pkg/errors"
)

// Planner derives the Hyperband budget geometry from (min budget, max
// budget, eta). It is pure: the ladder is computed once at construction
// and shared by every bracket of the run.
type Planner struct {
	minBudget float64
	maxBudget float64
	eta       float64
	minClip   int
	maxClip   int

	maxSHIter int
	budgets   []float64
}

// NewPlanner validates the geometry and precomputes the budget ladder.
func NewPlanner(minBudget, maxBudget, eta float64, minClip, maxClip int) (*Planner, error) {
	if maxBudget <= minBudget {
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfig, "only max_budget > min_budget supported"),
			errors.Fields{"min_budget": minBudget, "max_budget": maxBudget},
		)
	}
	if eta <= 1 {
		eta = 3
	}

	maxSHIter := int(math.Floor(math.Log(maxBudget/minBudget)/math.Log(eta))) + 1
	budgets := make([]float64, maxSHIter)
	for i := 0; i < maxSHIter; i++ {
		// ladder entry i is max_budget * eta^-(maxSHIter-1-i), so the
		// sequence is strictly increasing and ends exactly at max_budget
		budgets[i] = maxBudget * math.Pow(eta, -float64(maxSHIter-1-i))
	}

	return &Planner{
		minBudget: minBudget,
		maxBudget: maxBudget,
		eta:       eta,
		minClip:   minClip,
		maxClip:   maxClip,
		maxSHIter: maxSHIter,
		budgets:   budgets,
	}, nil
}

// MaxSHIter returns the number of distinct Successive Halving iterations.
func (p *Planner) MaxSHIter() int {
	return p.maxSHIter
}

// Budgets returns the full budget ladder, lowest fidelity first.
func (p *Planner) Budgets() []float64 {
	out := make([]float64, len(p.budgets))
	copy(out, p.budgets)
	return out
}

// NextIteration computes the rung target counts and budget spacing for
// the given Hyperband iteration index.
func (p *Planner) NextIteration(iteration int) (ns []int, budgets []float64) {
	// number of SH rungs above the base for this bracket
	s := p.maxSHIter - 1 - (iteration % p.maxSHIter)

	budgets = make([]float64, s+1)
	copy(budgets, p.budgets[len(p.budgets)-s-1:])

	n0 := math.Floor(float64(p.maxSHIter)/float64(s+1)) * math.Pow(p.eta, float64(s))
	ns = make([]int, s+1)
	for j := 0; j <= s; j++ {
		n := int(n0 * math.Pow(p.eta, -float64(j)))
		if n < 1 {
			n = 1
		}
		ns[j] = n
	}

	p.clip(ns)
	return ns, budgets
}

// clip clamps the rung counts when clipping is configured. With only a
// minimum clip the upper bound is the unclipped maximum of the counts.
func (p *Planner) clip(ns []int) {
	if p.minClip <= 0 {
		return
	}
	upper := p.maxClip
	if upper <= 0 {
		for _, n := range ns {
			if n > upper {
				upper = n
			}
		}
	}
	for i, n := range ns {
		if n < p.minClip {
			ns[i] = p.minClip
		} else if n > upper {
			ns[i] = upper
		}
	}
}
