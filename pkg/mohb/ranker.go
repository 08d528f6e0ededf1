package mohb

import (
	"math"
	"math/rand"
	"sort"

	"github.com/XiaoConstantine/mohb-go/pkg/errors"
)

// Strategy identifies a multi-objective promotion ranking algorithm.
type Strategy string

const (
	StrategyEpsNet        Strategy = "eps_net"
	StrategyNSGAII        Strategy = "nsga_ii"
	StrategyRandomWeights Strategy = "random_weights"
	StrategyParEGO        Strategy = "parego"
	StrategyGolovin       Strategy = "golovin"
)

// augmentation factor for the ParEGO scalarization
const paregoRho = 0.05

func (s Strategy) isScalarization() bool {
	switch s {
	case StrategyRandomWeights, StrategyParEGO, StrategyGolovin:
		return true
	}
	return false
}

// Ranker selects the top-n candidates for rung promotion under one of
// the supported multi-objective strategies. The strategy tag is
// validated once at construction, not per call.
type Ranker struct {
	strategy Strategy
	rng      *rand.Rand
	weights  [][]float64 // fixed unit-simplex pool, scalarization only
}

// NewRanker validates the strategy tag and, for the scalarization
// family, draws the fixed pool of weight vectors from the injected
// random source.
func NewRanker(strategy Strategy, numObjectives, numWeights int, rng *rand.Rand) (*Ranker, error) {
	switch strategy {
	case StrategyEpsNet, StrategyNSGAII, StrategyRandomWeights, StrategyParEGO, StrategyGolovin:
	default:
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfig,
				"unknown ranking strategy; valid strategies are eps_net, nsga_ii, random_weights, parego and golovin"),
			errors.Fields{"strategy": string(strategy)},
		)
	}
	if numObjectives < 1 {
		return nil, errors.New(errors.InvalidConfig, "at least one objective required")
	}

	r := &Ranker{strategy: strategy, rng: rng}
	if strategy.isScalarization() {
		if numWeights <= 0 {
			numWeights = 100
		}
		r.weights = make([][]float64, numWeights)
		for i := range r.weights {
			r.weights[i] = uniformFromUnitSimplex(rng, numObjectives)
		}
	}
	return r, nil
}

// Strategy returns the ranker's strategy tag.
func (r *Ranker) Strategy() Strategy {
	return r.strategy
}

// Rank orders the candidates and returns the indices of the best n.
// Costs are fitness vectors under minimization, one row per candidate.
func (r *Ranker) Rank(costs [][]float64, n int) []int {
	if n > len(costs) {
		n = len(costs)
	}
	if n <= 0 {
		return nil
	}

	switch r.strategy {
	case StrategyEpsNet:
		return r.epsNetRank(costs, n)
	case StrategyNSGAII:
		return r.nsgaIIRank(costs, n)
	default:
		return r.scalarizationRank(costs, n)
	}
}

// scalarizationRank scores every candidate against a weight vector drawn
// from the fixed pool and keeps the n lowest scores.
func (r *Ranker) scalarizationRank(costs [][]float64, n int) []int {
	w := r.weights[r.rng.Intn(len(r.weights))]

	scores := make([]float64, len(costs))
	switch r.strategy {
	case StrategyGolovin:
		// weighted Chebyshev distance to the ideal point
		ideal := idealPoint(costs)
		for i, c := range costs {
			worst := 0.0
			for j, v := range c {
				if d := w[j] * (v - ideal[j]); d > worst {
					worst = d
				}
			}
			scores[i] = worst
		}
	case StrategyParEGO:
		// augmented Chebyshev: max weighted objective plus a small
		// weighted-sum term to break plateau ties
		for i, c := range costs {
			worst := math.Inf(-1)
			sum := 0.0
			for j, v := range c {
				wv := w[j] * v
				if wv > worst {
					worst = wv
				}
				sum += wv
			}
			scores[i] = worst + paregoRho*sum
		}
	default: // StrategyRandomWeights
		for i, c := range costs {
			sum := 0.0
			for j, v := range c {
				sum += w[j] * v
			}
			scores[i] = sum
		}
	}

	idx := make([]int, len(costs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })
	return idx[:n]
}

// nsgaIIRank partitions the candidates into non-dominated fronts and
// orders them by (front rank ascending, crowding distance descending).
func (r *Ranker) nsgaIIRank(costs [][]float64, n int) []int {
	fronts := nonDominatedFronts(costs)

	var ordered []int
	for _, front := range fronts {
		crowding := crowdingDistances(costs, front)
		sorted := make([]int, len(front))
		copy(sorted, front)
		sort.SliceStable(sorted, func(a, b int) bool {
			return crowding[sorted[a]] > crowding[sorted[b]]
		})
		ordered = append(ordered, sorted...)
		if len(ordered) >= n {
			break
		}
	}
	return ordered[:n]
}

// nonDominatedFronts repeatedly peels the Pareto front off the remaining
// candidates, producing fronts of increasing rank.
func nonDominatedFronts(costs [][]float64) [][]int {
	remaining := make([]int, len(costs))
	for i := range remaining {
		remaining[i] = i
	}

	var fronts [][]int
	for len(remaining) > 0 {
		var front, rest []int
		for _, i := range remaining {
			dominated := false
			for _, j := range remaining {
				if i != j && dominates(costs[j], costs[i]) {
					dominated = true
					break
				}
			}
			if dominated {
				rest = append(rest, i)
			} else {
				front = append(front, i)
			}
		}
		fronts = append(fronts, front)
		remaining = rest
	}
	return fronts
}

// crowdingDistances computes the NSGA-II spread measure for the members
// of one front. Boundary members get an infinite distance so that the
// extremes of each objective are always preferred.
func crowdingDistances(costs [][]float64, front []int) map[int]float64 {
	distances := make(map[int]float64, len(front))
	for _, i := range front {
		distances[i] = 0
	}
	if len(front) <= 2 {
		for _, i := range front {
			distances[i] = math.Inf(1)
		}
		return distances
	}

	dim := len(costs[front[0]])
	for j := 0; j < dim; j++ {
		sorted := make([]int, len(front))
		copy(sorted, front)
		sort.SliceStable(sorted, func(a, b int) bool {
			return costs[sorted[a]][j] < costs[sorted[b]][j]
		})

		lo := costs[sorted[0]][j]
		hi := costs[sorted[len(sorted)-1]][j]
		distances[sorted[0]] = math.Inf(1)
		distances[sorted[len(sorted)-1]] = math.Inf(1)
		if hi == lo {
			continue
		}
		for k := 1; k < len(sorted)-1; k++ {
			distances[sorted[k]] += (costs[sorted[k+1]][j] - costs[sorted[k-1]][j]) / (hi - lo)
		}
	}
	return distances
}

// epsNetRank builds a representative subset of size n by farthest-point
// selection, seeded with the extreme point of the first objective.
func (r *Ranker) epsNetRank(costs [][]float64, n int) []int {
	seed := 0
	for i, c := range costs {
		if c[0] < costs[seed][0] {
			seed = i
		}
	}

	selected := []int{seed}
	chosen := map[int]bool{seed: true}

	for len(selected) < n {
		best := -1
		bestDist := -1.0
		for i := range costs {
			if chosen[i] {
				continue
			}
			minDist := math.Inf(1)
			for _, s := range selected {
				if d := euclidean(costs[i], costs[s]); d < minDist {
					minDist = d
				}
			}
			if minDist > bestDist {
				bestDist = minDist
				best = i
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, best)
		chosen[best] = true
	}
	return selected
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// idealPoint is the per-objective minimum over the candidate set.
func idealPoint(costs [][]float64) []float64 {
	ideal := make([]float64, len(costs[0]))
	copy(ideal, costs[0])
	for _, c := range costs[1:] {
		for j, v := range c {
			if v < ideal[j] {
				ideal[j] = v
			}
		}
	}
	return ideal
}

// uniformFromUnitSimplex draws a weight vector uniformly from the unit
// simplex: non-negative entries summing to 1, one per objective.
func uniformFromUnitSimplex(rng *rand.Rand, dim int) []float64 {
	w := make([]float64, dim)
	sum := 0.0
	for i := range w {
		// exponential spacings method
		w[i] = -math.Log(1 - rng.Float64())
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}
