package model

import (
	"math/rand"

	"github.com/cognicore/aligner/pkg/aligner"
	"github.com/cognicore/aligner/pkg/aligner/ttable"
)

// Token ids used by the scenarios.
const (
	tokA aligner.TokenID = iota + 1
	tokB
	tokC
	tokX
	tokY
	tokZ
)

// brokenTable returns value for every pair whose target is bad and defers
// to the wrapped table otherwise.
type brokenTable struct {
	ttable.Reader
	bad   aligner.TokenID
	value float64
}

func (b brokenTable) Probability(src, trg aligner.TokenID) float64 {
	if trg == b.bad {
		return b.value
	}
	return b.Reader.Probability(src, trg)
}

func randomPairs(rng *rand.Rand, n, maxLen, vocab int) []aligner.SentencePair {
	pairs := make([]aligner.SentencePair, n)
	for i := range pairs {
		pairs[i] = aligner.SentencePair{
			Source: randomSentence(rng, rng.Intn(maxLen+1), vocab),
			Target: randomSentence(rng, rng.Intn(maxLen+1), vocab),
		}
	}
	return pairs
}

func randomSentence(rng *rand.Rand, length, vocab int) []aligner.TokenID {
	s := make([]aligner.TokenID, length)
	for i := range s {
		s[i] = aligner.TokenID(1 + rng.Intn(vocab))
	}
	return s
}

// randomTable seeds probabilities for every pair of a small vocabulary,
// null included.
func randomTable(rng *rand.Rand, vocab int) *ttable.Memory {
	tbl := ttable.NewMemory(ttable.Options{})
	for s := 0; s <= vocab; s++ {
		for t := 1; t <= vocab; t++ {
			tbl.SetProbability(aligner.TokenID(s), aligner.TokenID(t), 0.01+rng.Float64())
		}
	}
	return tbl
}

func uniformTable() *ttable.Memory {
	return ttable.NewMemory(ttable.Options{Floor: 0.1})
}

func optionGrid() []Options {
	var grid []Options
	for _, reverse := range []bool{false, true} {
		for _, useNull := range []bool{false, true} {
			for _, diag := range []bool{false, true} {
				opts := DefaultOptions()
				opts.Reverse = reverse
				opts.UseNull = useNull
				opts.FavorDiagonal = diag
				grid = append(grid, opts)
			}
		}
	}
	return grid
}
