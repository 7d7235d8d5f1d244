package ttable

import (
	"math"
	"sort"

	"github.com/cognicore/aligner/pkg/aligner"
)

// Counts is a sparse map of fractional counts.
// It is not safe for concurrent use; each worker owns its own.
type Counts struct {
	m     map[Pair]float64
	total float64
}

// NewCounts creates an empty count map
func NewCounts() *Counts {
	return &Counts{m: make(map[Pair]float64)}
}

// Increment implements Accumulator for single-goroutine use.
func (c *Counts) Increment(src, trg aligner.TokenID, amount float64) {
	c.Add(Pair{Source: src, Target: trg}, amount)
}

// Add adds amount to the count of p. Negative and non-finite amounts are ignored.
func (c *Counts) Add(p Pair, amount float64) {
	if !(amount >= 0) || math.IsInf(amount, 1) {
		return
	}
	c.m[p] += amount
	c.total += amount
}

// Get returns the count for a pair
func (c *Counts) Get(src, trg aligner.TokenID) float64 {
	return c.m[Pair{Source: src, Target: trg}]
}

// Len returns the number of distinct pairs
func (c *Counts) Len() int {
	return len(c.m)
}

// Total returns the sum of all counts
func (c *Counts) Total() float64 {
	return c.total
}

// Range calls fn for every pair in ascending (source, target) order.
func (c *Counts) Range(fn func(p Pair, count float64)) {
	for _, p := range c.Pairs() {
		fn(p, c.m[p])
	}
}

// Pairs returns the stored pairs sorted by source, then target.
func (c *Counts) Pairs() []Pair {
	pairs := make([]Pair, 0, len(c.m))
	for p := range c.m {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Source != pairs[j].Source {
			return pairs[i].Source < pairs[j].Source
		}
		return pairs[i].Target < pairs[j].Target
	})
	return pairs
}

// MergeInto issues one increment per stored pair to acc.
func (c *Counts) MergeInto(acc Accumulator) {
	for p, v := range c.m {
		acc.Increment(p.Source, p.Target, v)
	}
}

// Reset drops all counts, keeping the allocated map.
func (c *Counts) Reset() {
	clear(c.m)
	c.total = 0
}
