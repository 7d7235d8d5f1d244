// Package diagonal implements the positional prior that favors alignment
// links near the diagonal of the alignment matrix.
//
// Positions are 1-indexed: j is a target position out of n target tokens and
// i is a source position out of m source tokens. The tension controls how
// sharply the prior peaks on the diagonal; a tension of 0 makes it uniform.
package diagonal

import (
	"fmt"
	"math"
	"strings"
)

// Feature is the negative distance of the link (i, j) from the diagonal:
//
//	Feature(j, i, n, m) = -|i/m - j/n|
//
// It is 0 on the diagonal and decreases with the distance from it.
func Feature(j, i, n, m int) float64 {
	return -math.Abs(float64(i)/float64(m) - float64(j)/float64(n))
}

// UnnormalizedProb returns exp(tension * Feature(j, i, n, m)).
func UnnormalizedProb(j, i, n, m int, tension float64) float64 {
	return math.Exp(tension * Feature(j, i, n, m))
}

// ComputeZ sums UnnormalizedProb over the m source positions for target
// position j by direct summation.
func ComputeZ(j, n, m int, tension float64) float64 {
	z := 0.0
	for i := 1; i <= m; i++ {
		z += UnnormalizedProb(j, i, n, m, tension)
	}
	return z
}

// ComputeZClosed evaluates the same sum as ComputeZ in constant time.
//
// The feature is linear on each side of split = j*m/n, so the terms below
// and above the split form two geometric series with ratio exp(-tension/m).
func ComputeZClosed(j, n, m int, tension float64) float64 {
	if m <= 0 || n <= 0 {
		return 0
	}
	if tension == 0 {
		return float64(m)
	}

	floor := (j * m) / n
	if floor > m {
		floor = m
	}
	ceil := floor + 1
	step := tension / float64(m)
	oneMinusRatio := -math.Expm1(-step)

	top := m - floor
	var zTop, zBottom float64
	if top > 0 {
		zTop = UnnormalizedProb(j, ceil, n, m, tension) * -math.Expm1(-step*float64(top)) / oneMinusRatio
	}
	if floor > 0 {
		zBottom = UnnormalizedProb(j, floor, n, m, tension) * -math.Expm1(-step*float64(floor)) / oneMinusRatio
	}
	return zTop + zBottom
}

// ComputeDLogZ is the derivative of log Z with respect to the tension,
// which equals the expected Feature under the normalized prior.
// An outer optimizer compares it with the empirical feature produced by
// the scorer to re-estimate the tension.
func ComputeDLogZ(j, n, m int, tension float64) float64 {
	var z, weighted float64
	for i := 1; i <= m; i++ {
		f := Feature(j, i, n, m)
		p := math.Exp(tension * f)
		z += p
		weighted += f * p
	}
	if z == 0 {
		return 0
	}
	return weighted / z
}

// Method selects how the partition function is evaluated.
type Method int

const (
	// Direct sums all m terms.
	Direct Method = iota
	// ClosedForm uses the geometric series decomposition.
	ClosedForm
)

// Z evaluates the partition function for target position j with the method.
func (m Method) Z(j, n, srcLen int, tension float64) float64 {
	if m == ClosedForm {
		return ComputeZClosed(j, n, srcLen, tension)
	}
	return ComputeZ(j, n, srcLen, tension)
}

func (m Method) String() string {
	switch m {
	case Direct:
		return "direct"
	case ClosedForm:
		return "closed"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps "direct" (or "") and "closed" to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "direct":
		return Direct, nil
	case "closed", "closed-form", "closed_form":
		return ClosedForm, nil
	default:
		return Direct, fmt.Errorf("unknown partition method %q", s)
	}
}
