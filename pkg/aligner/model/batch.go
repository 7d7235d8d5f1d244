package model

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/aligner/pkg/aligner"
	"github.com/cognicore/aligner/pkg/aligner/internalerr"
	"github.com/cognicore/aligner/pkg/aligner/ttable"
)

// workerResult is what one batch worker hands back after the join.
type workerResult struct {
	feature float64
	scored  int
	counts  *ttable.Counts
	failed  []*internalerr.PairError
}

// ScoreBatch scores every pair of the batch in parallel and returns the sum
// of their empirical diagonal features.
//
// out is either nil or has one slot per pair; slot i receives the Viterbi
// alignment of pairs[i]. Counts are collected per worker and merged into acc
// after all workers finish, so acc sees no increments from a batch that
// aborts. With the Skip policy the surviving pairs are merged and the
// returned error lists the skipped ones.
func (m *Model) ScoreBatch(pairs []aligner.SentencePair, acc ttable.Accumulator, out []aligner.Alignment) (float64, error) {
	if out != nil && len(out) != len(pairs) {
		return 0, fmt.Errorf("%w: %d alignment slots for %d pairs", internalerr.ErrInvalidInput, len(out), len(pairs))
	}
	if len(pairs) == 0 {
		return 0, nil
	}

	batchID := ulid.Make().String()
	start := time.Now()

	grain := m.opts.Grain
	if grain <= 0 {
		grain = DefaultGrain
	}
	workers := m.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if chunks := (len(pairs) + grain - 1) / grain; workers > chunks {
		workers = chunks
	}

	var (
		cursor  atomic.Int64
		stopped atomic.Bool
		wg      sync.WaitGroup
	)
	results := make([]workerResult, workers)
	for w := range results {
		wg.Add(1)
		go func(res *workerResult) {
			defer wg.Done()
			m.runWorker(pairs, acc != nil, out, grain, &cursor, &stopped, res)
		}(&results[w])
	}
	wg.Wait()

	var (
		total  float64
		scored int
		failed []*internalerr.PairError
	)
	for i := range results {
		total += results[i].feature
		scored += results[i].scored
		failed = append(failed, results[i].failed...)
	}

	if len(failed) > 0 {
		sort.Slice(failed, func(i, j int) bool { return failed[i].Index < failed[j].Index })
		batchErr := &internalerr.BatchError{BatchID: batchID, Failed: failed}
		if m.opts.ErrorPolicy == Abort {
			m.logger.Error("batch aborted", "batch", batchID, "pairs", len(pairs), "error", failed[0])
			return 0, batchErr
		}
		for _, f := range failed {
			m.logger.Warn("skipping pair", "batch", batchID, "pair", f.Index, "error", f.Err)
		}
		m.merge(results, acc)
		m.logger.Debug("batch scored", "batch", batchID, "pairs", len(pairs), "scored", scored,
			"skipped", len(failed), "workers", workers, "feature", total, "elapsed", time.Since(start))
		return total, batchErr
	}

	m.merge(results, acc)
	m.logger.Debug("batch scored", "batch", batchID, "pairs", len(pairs), "scored", scored,
		"workers", workers, "feature", total, "elapsed", time.Since(start))
	return total, nil
}

// runWorker claims grain-sized chunks of pair indexes from cursor until the
// batch is exhausted or stopped.
func (m *Model) runWorker(pairs []aligner.SentencePair, accumulate bool, out []aligner.Alignment, grain int,
	cursor *atomic.Int64, stopped *atomic.Bool, res *workerResult) {
	var sink ttable.Accumulator
	if accumulate {
		res.counts = ttable.NewCounts()
		sink = res.counts
	}
	var sc scratch

	for !stopped.Load() {
		lo := int(cursor.Add(int64(grain))) - grain
		if lo >= len(pairs) {
			return
		}
		hi := min(lo+grain, len(pairs))
		for i := lo; i < hi; i++ {
			if stopped.Load() {
				return
			}
			var slot *aligner.Alignment
			if out != nil {
				out[i] = aligner.Alignment{}
				slot = &out[i]
			}
			f, err := m.score(i, pairs[i].Source, pairs[i].Target, sink, slot, &sc)
			if err != nil {
				var pe *internalerr.PairError
				if !errors.As(err, &pe) {
					pe = &internalerr.PairError{Index: i, Position: -1, Err: err}
				}
				res.failed = append(res.failed, pe)
				if m.opts.ErrorPolicy == Abort {
					stopped.Store(true)
					return
				}
				continue
			}
			res.feature += f
			res.scored++
		}
	}
}

func (m *Model) merge(results []workerResult, acc ttable.Accumulator) {
	if acc == nil {
		return
	}
	for i := range results {
		if results[i].counts != nil {
			results[i].counts.MergeInto(acc)
		}
	}
}
