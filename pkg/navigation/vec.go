package navigation

import "gonum.org/v1/gonum/spatial/r3"

// shrink is just under one; each step reduces a norm by a few ulps.
const shrink = 1 - 1e-15

// LimitNorm scales v down so that r3.Norm(v) <= limit holds exactly in
// floating point. Vectors already within the limit are returned as is.
func LimitNorm(v r3.Vec, limit float64) r3.Vec {
	n := r3.Norm(v)
	if n <= limit {
		return v
	}
	v = r3.Scale(limit/n, v)
	for r3.Norm(v) > limit {
		v = r3.Scale(shrink, v)
	}
	return v
}
