package ttable

import (
	"math"
	"sync"

	"github.com/cognicore/aligner/pkg/aligner"
)

// DefaultFloor is the probability returned for pairs the table has never seen.
const DefaultFloor = 1e-9

// DefaultShards is the number of independently locked count maps.
const DefaultShards = 64

// Options configures a Memory table
type Options struct {
	Floor            float64 // probability of unseen pairs, must be > 0
	Shards           int
	VariationalBayes bool    // normalize with the mean-field Dirichlet update
	Alpha            float64 // Dirichlet concentration for VariationalBayes
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Floor:  DefaultFloor,
		Shards: DefaultShards,
		Alpha:  0.01,
	}
}

type shard struct {
	mu     sync.Mutex
	counts map[Pair]float64
}

// Memory is an in-memory translation table.
//
// Probabilities are read from a snapshot that only changes in Normalize and
// SetProbability; those two must not run while a batch is reading. Increments
// go to sharded, mutex-protected count maps and are safe from any number of
// goroutines.
type Memory struct {
	opts   Options
	probs  map[Pair]float64
	shards []shard
}

// NewMemory creates an empty table
func NewMemory(opts Options) *Memory {
	def := DefaultOptions()
	if !(opts.Floor > 0) {
		opts.Floor = def.Floor
	}
	if opts.Shards <= 0 {
		opts.Shards = def.Shards
	}
	if !(opts.Alpha > 0) {
		opts.Alpha = def.Alpha
	}
	t := &Memory{
		opts:   opts,
		probs:  make(map[Pair]float64),
		shards: make([]shard, opts.Shards),
	}
	for i := range t.shards {
		t.shards[i].counts = make(map[Pair]float64)
	}
	return t
}

// Options returns the effective options of the table.
func (t *Memory) Options() Options {
	return t.opts
}

// Probability returns P(trg | src), or the floor for unseen pairs.
func (t *Memory) Probability(src, trg aligner.TokenID) float64 {
	if p, ok := t.probs[Pair{Source: src, Target: trg}]; ok {
		return p
	}
	return t.opts.Floor
}

// SetProbability seeds a probability. Non-positive or non-finite values
// remove the entry so the floor applies.
func (t *Memory) SetProbability(src, trg aligner.TokenID, p float64) {
	key := Pair{Source: src, Target: trg}
	if !(p > 0) || math.IsInf(p, 0) {
		delete(t.probs, key)
		return
	}
	t.probs[key] = p
}

// Size returns the number of stored probabilities
func (t *Memory) Size() int {
	return len(t.probs)
}

// Increment adds amount to the expected count of (src, trg).
// Negative and non-finite amounts are ignored.
func (t *Memory) Increment(src, trg aligner.TokenID, amount float64) {
	if !(amount >= 0) || math.IsInf(amount, 1) {
		return
	}
	key := Pair{Source: src, Target: trg}
	s := &t.shards[t.shardFor(key)]
	s.mu.Lock()
	s.counts[key] += amount
	s.mu.Unlock()
}

// Count returns the expected count accumulated for (src, trg).
func (t *Memory) Count(src, trg aligner.TokenID) float64 {
	key := Pair{Source: src, Target: trg}
	s := &t.shards[t.shardFor(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// Counts returns a copy of all accumulated counts.
func (t *Memory) Counts() *Counts {
	out := NewCounts()
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for k, v := range s.counts {
			out.Add(k, v)
		}
		s.mu.Unlock()
	}
	return out
}

// Normalize replaces the probabilities with the accumulated counts turned
// into conditional distributions P(trg | src), then clears the counts.
// Sources with no counts keep no entries and fall back to the floor.
func (t *Memory) Normalize() {
	counts := t.Counts()

	bySource := make(map[aligner.TokenID][]Pair)
	totals := make(map[aligner.TokenID]float64)
	counts.Range(func(p Pair, c float64) {
		bySource[p.Source] = append(bySource[p.Source], p)
		if t.opts.VariationalBayes {
			totals[p.Source] += c + t.opts.Alpha
		} else {
			totals[p.Source] += c
		}
	})

	probs := make(map[Pair]float64, counts.Len())
	for src, pairs := range bySource {
		tot := totals[src]
		if tot == 0 {
			continue
		}
		if t.opts.VariationalBayes {
			dgTot := digamma(tot)
			for _, p := range pairs {
				probs[p] = math.Exp(digamma(counts.m[p]+t.opts.Alpha) - dgTot)
			}
			continue
		}
		for _, p := range pairs {
			if c := counts.m[p]; c > 0 {
				probs[p] = c / tot
			}
		}
	}

	t.probs = probs
	t.ResetCounts()
}

// ResetCounts drops every accumulated count.
func (t *Memory) ResetCounts() {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		clear(s.counts)
		s.mu.Unlock()
	}
}

func (t *Memory) shardFor(p Pair) int {
	h := uint64(p.Source)<<32 | uint64(p.Target)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return int(h % uint64(len(t.shards)))
}

// digamma approximates the digamma function for x > 0 using the
// recurrence psi(x) = psi(x+1) - 1/x and the asymptotic series.
func digamma(x float64) float64 {
	result := 0.0
	for x < 6 {
		result -= 1 / x
		x++
	}
	f := 1 / (x * x)
	t := f * (-1.0/12 + f*(1.0/120+f*(-1.0/252+f*(1.0/240+f*(-1.0/132)))))
	return result + math.Log(x) - 0.5/x + t
}
