package mohb

import "math"

// dominates reports whether fitness vector a dominates b under
// minimization: a is no worse in every objective and strictly better in
// at least one.
func dominates(a, b []float64) bool {
	strictlyBetter := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// ParetoFront returns the indices of the non-dominated subset of the
// given fitness vectors. No member dominates another member and every
// non-member is dominated by at least one member.
func ParetoFront(points [][]float64) []int {
	var front []int
	for i, p := range points {
		dominated := false
		for j, q := range points {
			if i == j {
				continue
			}
			if dominates(q, p) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, i)
		}
	}
	return front
}

// normalizeByMax scales every objective column by its maximum observed
// absolute value, so objectives of different magnitude are comparable
// before ranking. Columns that are all zero are left untouched.
func normalizeByMax(points [][]float64) [][]float64 {
	if len(points) == 0 {
		return nil
	}
	dim := len(points[0])
	maxes := make([]float64, dim)
	for _, p := range points {
		for j, v := range p {
			if abs := math.Abs(v); abs > maxes[j] {
				maxes[j] = abs
			}
		}
	}

	out := make([][]float64, len(points))
	for i, p := range points {
		row := make([]float64, dim)
		for j, v := range p {
			if maxes[j] > 0 {
				row[j] = v / maxes[j]
			} else {
				row[j] = v
			}
		}
		out[i] = row
	}
	return out
}
