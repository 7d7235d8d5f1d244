package model

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/cognicore/aligner/pkg/aligner/diagonal"
	"github.com/cognicore/aligner/pkg/aligner/internalerr"
)

// ErrorPolicy decides what a batch does when one of its pairs fails.
type ErrorPolicy int

const (
	// Abort stops dispatching pairs after the first failure and merges no
	// counts into the accumulator.
	Abort ErrorPolicy = iota
	// Skip leaves failed pairs out of the counts and the feature sum and
	// keeps scoring the rest. The failures are still returned.
	Skip
)

func (p ErrorPolicy) String() string {
	switch p {
	case Abort:
		return "abort"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

// ParseErrorPolicy maps "abort" (or "") and "skip" to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return Abort, nil
	case "skip":
		return Skip, nil
	default:
		return Abort, fmt.Errorf("%w: unknown error policy %q", internalerr.ErrInvalidConfig, s)
	}
}

// Options configures a Model. A Model never changes its options; build a
// new one (or use WithTension) to score with different settings.
type Options struct {
	// Reverse scores the pair's target side as the source side.
	// Links are still reported in the caller's orientation.
	Reverse bool

	// UseNull adds the null token as an alignment candidate.
	UseNull bool

	// FavorDiagonal applies the diagonal positional prior.
	FavorDiagonal bool

	// ProbAlignNull is the prior mass of the null candidate when
	// FavorDiagonal is set.
	ProbAlignNull float64

	// DiagonalTension is the sharpness of the diagonal prior.
	DiagonalTension float64

	// Partition selects how the diagonal normalizer is computed.
	Partition diagonal.Method

	// Workers is the number of goroutines ScoreBatch uses;
	// 0 means runtime.GOMAXPROCS(0).
	Workers int

	// Grain is the number of consecutive pairs a worker claims at a time.
	Grain int

	ErrorPolicy ErrorPolicy

	Logger *slog.Logger
}

// Defaults used by DefaultOptions
const (
	DefaultProbAlignNull   = 0.08
	DefaultDiagonalTension = 4.0
	DefaultGrain           = 16
)

// DefaultOptions returns the usual forward model: null alignment and the
// diagonal prior enabled.
func DefaultOptions() Options {
	return Options{
		UseNull:         true,
		FavorDiagonal:   true,
		ProbAlignNull:   DefaultProbAlignNull,
		DiagonalTension: DefaultDiagonalTension,
		Partition:       diagonal.Direct,
		Grain:           DefaultGrain,
		ErrorPolicy:     Abort,
	}
}

// Validate checks the numeric ranges of the options.
func (o Options) Validate() error {
	if !(o.ProbAlignNull >= 0 && o.ProbAlignNull < 1) {
		return fmt.Errorf("%w: prob_align_null must be in [0, 1), got %v", internalerr.ErrInvalidConfig, o.ProbAlignNull)
	}
	if !(o.DiagonalTension >= 0) || math.IsInf(o.DiagonalTension, 1) {
		return fmt.Errorf("%w: diagonal_tension must be finite and >= 0, got %v", internalerr.ErrInvalidConfig, o.DiagonalTension)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", internalerr.ErrInvalidConfig, o.Workers)
	}
	if o.Grain < 0 {
		return fmt.Errorf("%w: grain must be >= 0, got %d", internalerr.ErrInvalidConfig, o.Grain)
	}
	if o.Partition != diagonal.Direct && o.Partition != diagonal.ClosedForm {
		return fmt.Errorf("%w: unknown partition method %v", internalerr.ErrInvalidConfig, o.Partition)
	}
	if o.ErrorPolicy != Abort && o.ErrorPolicy != Skip {
		return fmt.Errorf("%w: unknown error policy %v", internalerr.ErrInvalidConfig, o.ErrorPolicy)
	}
	return nil
}
