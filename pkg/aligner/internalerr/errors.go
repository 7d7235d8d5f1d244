package internalerr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidProbability   = errors.New("translation probability is not positive and finite")
	ErrDegenerateNormalizer = errors.New("posterior normalizer is not positive and finite")
	ErrDegeneratePartition  = errors.New("diagonal partition is not positive and finite")
)

// PairError reports a fatal failure while scoring one sentence pair.
// Index is the pair's position in its batch, or -1 for a standalone pair.
// Position is the target position being scored, or -1 when the failure
// is not tied to a position.
type PairError struct {
	Index    int
	Position int
	Err      error
}

func (e *PairError) Error() string {
	switch {
	case e.Index >= 0 && e.Position >= 0:
		return fmt.Sprintf("pair %d, target position %d: %v", e.Index, e.Position, e.Err)
	case e.Index >= 0:
		return fmt.Sprintf("pair %d: %v", e.Index, e.Err)
	case e.Position >= 0:
		return fmt.Sprintf("target position %d: %v", e.Position, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *PairError) Unwrap() error {
	return e.Err
}

// BatchError collects the pairs of one batch that could not be scored.
type BatchError struct {
	BatchID string
	Failed  []*PairError
}

func (e *BatchError) Error() string {
	if len(e.Failed) == 1 {
		return fmt.Sprintf("batch %s: %v", e.BatchID, e.Failed[0])
	}
	msgs := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("batch %s: %d pairs failed: %s", e.BatchID, len(e.Failed), strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}

// Indexes returns the batch indexes of the failed pairs.
func (e *BatchError) Indexes() []int {
	idx := make([]int, len(e.Failed))
	for i, f := range e.Failed {
		idx[i] = f.Index
	}
	return idx
}
