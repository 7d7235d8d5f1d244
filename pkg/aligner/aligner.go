// Package aligner holds the types shared by the word-alignment scoring core:
// token ids, sentence pairs and alignment links.
package aligner

// TokenID identifies a vocabulary entry. Real tokens start at 1.
type TokenID uint32

// NullToken is the synthetic source token a target token aligns to when no
// real source token generated it.
const NullToken TokenID = 0

// SentencePair is one bilingual training example. Either side may be empty.
type SentencePair struct {
	Source []TokenID
	Target []TokenID
}

// Link says that the target token at Target was generated by the source
// token at Source. Both indexes are zero-based.
type Link struct {
	Source int
	Target int
}

// Alignment is the list of links for one sentence pair, at most one per
// target index. Target positions aligned to null have no link.
type Alignment []Link

// Reversed returns the pair with the two sides swapped.
func (p SentencePair) Reversed() SentencePair {
	return SentencePair{Source: p.Target, Target: p.Source}
}

// Empty reports whether the pair has nothing to score.
func (p SentencePair) Empty() bool {
	return len(p.Source) == 0 || len(p.Target) == 0
}
