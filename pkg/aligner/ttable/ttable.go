// Package ttable provides the lexical translation table the scorer reads
// probabilities from and accumulates expected counts into.
package ttable

import "github.com/cognicore/aligner/pkg/aligner"

// Reader provides point reads of smoothed translation probabilities.
// Probability must be strictly positive and finite for every pair.
type Reader interface {
	Probability(src, trg aligner.TokenID) float64
}

// Accumulator receives additive expected-count updates.
// Increment must be safe for concurrent callers on any key.
type Accumulator interface {
	Increment(src, trg aligner.TokenID, amount float64)
}

// Table is a translation table that can be read and accumulated into.
type Table interface {
	Reader
	Accumulator
}

// Pair is a (source token, target token) key. Source may be aligner.NullToken.
type Pair struct {
	Source aligner.TokenID
	Target aligner.TokenID
}
