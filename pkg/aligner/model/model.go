// Package model implements the expectation step of a diagonal-favoring
// lexical alignment model: per-target-token posteriors over source tokens,
// fractional count accumulation, Viterbi link extraction, and the empirical
// diagonal feature used to re-estimate the tension.
package model

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cognicore/aligner/pkg/aligner"
	"github.com/cognicore/aligner/pkg/aligner/diagonal"
	"github.com/cognicore/aligner/pkg/aligner/internalerr"
	"github.com/cognicore/aligner/pkg/aligner/ttable"
)

// Model scores sentence pairs against a read-only translation table.
// It is safe for concurrent use.
type Model struct {
	table  ttable.Reader
	opts   Options
	logger *slog.Logger
}

// New creates a Model reading probabilities from table.
func New(table ttable.Reader, opts Options) (*Model, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil translation table", internalerr.ErrInvalidInput)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{table: table, opts: opts, logger: logger}, nil
}

// Options returns the model's options.
func (m *Model) Options() Options {
	return m.opts
}

// WithTension returns a copy of the model using a new diagonal tension.
func (m *Model) WithTension(tension float64) (*Model, error) {
	opts := m.opts
	opts.DiagonalTension = tension
	opts.Logger = m.logger
	return New(m.table, opts)
}

// WithTable returns a copy of the model reading from another table.
func (m *Model) WithTable(table ttable.Reader) (*Model, error) {
	opts := m.opts
	opts.Logger = m.logger
	return New(table, opts)
}

// ScorePair runs the expectation step on one sentence pair and returns its
// empirical diagonal feature.
//
// When acc is non-nil every candidate (including null) receives its posterior
// as an increment for the target token. When out is non-nil the Viterbi link
// of each target position not won by null is appended to it. Nothing is
// written to acc or out unless the whole pair scores successfully.
func (m *Model) ScorePair(source, target []aligner.TokenID, acc ttable.Accumulator, out *aligner.Alignment) (float64, error) {
	var sc scratch
	return m.score(-1, source, target, acc, out, &sc)
}

// Posterior returns the normalized alignment distribution of target
// position j: index 0 is the null candidate (always 0 when UseNull is
// off) and index i is source position i. Orientation follows Reverse.
func (m *Model) Posterior(source, target []aligner.TokenID, j int) ([]float64, error) {
	src, trg := m.orient(source, target)
	if j < 0 || j >= len(trg) {
		return nil, fmt.Errorf("%w: target position %d out of range [0, %d)", internalerr.ErrInvalidInput, j, len(trg))
	}
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty source sequence", internalerr.ErrInvalidInput)
	}
	if err := checkTokens(src, trg); err != nil {
		return nil, &internalerr.PairError{Index: -1, Position: -1, Err: err}
	}

	probs := make([]float64, len(src)+1)
	sum, err := m.fill(src, trg, j, probs)
	if err != nil {
		return nil, &internalerr.PairError{Index: -1, Position: j, Err: err}
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// scratch holds per-worker buffers reused across pairs.
type scratch struct {
	probs []float64
	incs  []increment
	links aligner.Alignment
}

type increment struct {
	src, trg aligner.TokenID
	amount   float64
}

func (m *Model) orient(source, target []aligner.TokenID) (src, trg []aligner.TokenID) {
	if m.opts.Reverse {
		return target, source
	}
	return source, target
}

func (m *Model) score(index int, source, target []aligner.TokenID, acc ttable.Accumulator, out *aligner.Alignment, sc *scratch) (float64, error) {
	src, trg := m.orient(source, target)
	srcLen, trgLen := len(src), len(trg)
	if srcLen == 0 || trgLen == 0 {
		return 0, nil
	}
	if err := checkTokens(src, trg); err != nil {
		return 0, &internalerr.PairError{Index: index, Position: -1, Err: err}
	}

	if cap(sc.probs) < srcLen+1 {
		sc.probs = make([]float64, srcLen+1)
	}
	probs := sc.probs[:srcLen+1]
	sc.incs = sc.incs[:0]
	sc.links = sc.links[:0]

	empFeat := 0.0
	for j := 0; j < trgLen; j++ {
		f := trg[j]
		sum, err := m.fill(src, trg, j, probs)
		if err != nil {
			return 0, &internalerr.PairError{Index: index, Position: j, Err: err}
		}

		if m.opts.UseNull && acc != nil {
			sc.incs = append(sc.incs, increment{aligner.NullToken, f, probs[0] / sum})
		}
		for i := 1; i <= srcLen; i++ {
			p := probs[i] / sum
			if acc != nil {
				sc.incs = append(sc.incs, increment{src[i-1], f, p})
			}
			empFeat += diagonal.Feature(j+1, i, trgLen, srcLen) * p
		}

		if out != nil {
			if best := argMax(probs, m.opts.UseNull); best > 0 {
				if m.opts.Reverse {
					sc.links = append(sc.links, aligner.Link{Source: j, Target: best - 1})
				} else {
					sc.links = append(sc.links, aligner.Link{Source: best - 1, Target: j})
				}
			}
		}
	}

	if acc != nil {
		for _, inc := range sc.incs {
			acc.Increment(inc.src, inc.trg, inc.amount)
		}
	}
	if out != nil {
		*out = append(*out, sc.links...)
	}
	return empFeat, nil
}

// fill writes the unnormalized scores of target position j into probs
// (slot 0 is null) and returns their sum.
func (m *Model) fill(src, trg []aligner.TokenID, j int, probs []float64) (float64, error) {
	srcLen, trgLen := len(src), len(trg)
	f := trg[j]

	nullSlots := 0
	if m.opts.UseNull {
		nullSlots = 1
	}
	probAI := 1.0 / float64(srcLen+nullSlots)

	sum := 0.0
	probs[0] = 0
	if m.opts.UseNull {
		if m.opts.FavorDiagonal {
			probAI = m.opts.ProbAlignNull
		}
		p, err := m.probability(aligner.NullToken, f)
		if err != nil {
			return 0, err
		}
		probs[0] = p * probAI
		sum += probs[0]
	}

	var az float64
	if m.opts.FavorDiagonal {
		z := m.opts.Partition.Z(j+1, trgLen, srcLen, m.opts.DiagonalTension)
		if !(z > 0) || math.IsInf(z, 1) {
			return 0, fmt.Errorf("%w: Z=%v", internalerr.ErrDegeneratePartition, z)
		}
		az = z / (1 - m.opts.ProbAlignNull)
	}

	for i := 1; i <= srcLen; i++ {
		if m.opts.FavorDiagonal {
			probAI = diagonal.UnnormalizedProb(j+1, i, trgLen, srcLen, m.opts.DiagonalTension) / az
		}
		p, err := m.probability(src[i-1], f)
		if err != nil {
			return 0, err
		}
		probs[i] = p * probAI
		sum += probs[i]
	}

	if !(sum > 0) || math.IsInf(sum, 1) {
		return 0, fmt.Errorf("%w: sum=%v", internalerr.ErrDegenerateNormalizer, sum)
	}
	return sum, nil
}

func (m *Model) probability(src, trg aligner.TokenID) (float64, error) {
	p := m.table.Probability(src, trg)
	if !(p > 0) || math.IsInf(p, 1) {
		return 0, fmt.Errorf("%w: P(%d, %d)=%v", internalerr.ErrInvalidProbability, src, trg, p)
	}
	return p, nil
}

// argMax returns the index of the largest score, preferring the lowest
// index on ties. Slot 0 only competes when the null candidate is enabled;
// a result of 0 means null won.
func argMax(probs []float64, useNull bool) int {
	best, bestP := -1, -1.0
	if useNull {
		best, bestP = 0, probs[0]
	}
	for i := 1; i < len(probs); i++ {
		if probs[i] > bestP {
			best, bestP = i, probs[i]
		}
	}
	return best
}

func checkTokens(src, trg []aligner.TokenID) error {
	for i, t := range src {
		if t == aligner.NullToken {
			return fmt.Errorf("%w: source position %d holds the null token", internalerr.ErrInvalidToken, i)
		}
	}
	for j, t := range trg {
		if t == aligner.NullToken {
			return fmt.Errorf("%w: target position %d holds the null token", internalerr.ErrInvalidToken, j)
		}
	}
	return nil
}
