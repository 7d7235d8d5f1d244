// Command align-bench scores a synthetic parallel batch once and reports the
// empirical diagonal feature, the accumulated counts and throughput.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/aligner/pkg/aligner"
	"github.com/cognicore/aligner/pkg/aligner/config"
	"github.com/cognicore/aligner/pkg/aligner/diagonal"
	"github.com/cognicore/aligner/pkg/aligner/model"
	"github.com/cognicore/aligner/pkg/aligner/ttable"
	"github.com/cognicore/aligner/pkg/aligner/ttable/sqlite"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (defaults apply when empty)")
		numPairs   = flag.Int("pairs", 10000, "Number of synthetic sentence pairs")
		maxLen     = flag.Int("max-len", 40, "Maximum sentence length")
		vocab      = flag.Int("vocab", 2000, "Source vocabulary size")
		seed       = flag.Int64("seed", 1, "Random seed")
		workers    = flag.Int("workers", -1, "Worker goroutines (overrides config when >= 0)")
		reverse    = flag.Bool("reverse", false, "Score the reverse direction")
		dbPath     = flag.String("db", "", "Also flush counts to this SQLite database and normalize there")
		show       = flag.Int("show", 3, "Number of alignments to print")
		verbose    = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger, benchConfig{
		configPath: *configPath,
		pairs:      *numPairs,
		maxLen:     *maxLen,
		vocab:      *vocab,
		seed:       *seed,
		workers:    *workers,
		reverse:    *reverse,
		dbPath:     *dbPath,
		show:       *show,
	}); err != nil {
		logger.Error("align-bench failed", "error", err)
		os.Exit(1)
	}
}

type benchConfig struct {
	configPath string
	pairs      int
	maxLen     int
	vocab      int
	seed       int64
	workers    int
	reverse    bool
	dbPath     string
	show       int
}

func run(ctx context.Context, logger *slog.Logger, bc benchConfig) error {
	cfg := config.Default()
	if bc.configPath != "" {
		loaded, err := config.Load(bc.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if bc.workers >= 0 {
		cfg.Batch.Workers = bc.workers
	}
	if bc.reverse {
		cfg.Model.Reverse = true
	}
	if bc.pairs <= 0 || bc.maxLen <= 0 || bc.vocab <= 0 {
		return fmt.Errorf("pairs, max-len and vocab must be positive")
	}

	opts, err := cfg.ModelOptions(logger)
	if err != nil {
		return err
	}

	runID := ulid.Make().String()
	rng := rand.New(rand.NewSource(bc.seed))
	pairs := syntheticBatch(rng, bc.pairs, bc.maxLen, bc.vocab)
	logger.Info("generated batch", "run", runID, "pairs", len(pairs), "max_len", bc.maxLen, "vocab", bc.vocab)

	// The same table serves reads and accumulation; its probabilities start
	// uniform at the floor.
	tbl := ttable.NewMemory(cfg.TableOptions())
	m, err := model.New(tbl, opts)
	if err != nil {
		return err
	}

	out := make([]aligner.Alignment, len(pairs))
	start := time.Now()
	feature, err := m.ScoreBatch(pairs, tbl, out)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	targets, links := 0, 0
	expected := 0.0
	for i, p := range pairs {
		if opts.Reverse {
			p = p.Reversed()
		}
		links += len(out[i])
		if p.Empty() {
			continue
		}
		targets += len(p.Target)
		for j := range p.Target {
			expected += diagonal.ComputeDLogZ(j+1, len(p.Target), len(p.Source), opts.DiagonalTension)
		}
	}

	counts := tbl.Counts()
	logger.Info("batch scored",
		"run", runID,
		"feature", feature,
		"feature_per_token", safeDiv(feature, float64(targets)),
		"prior_feature_per_token", safeDiv(expected, float64(targets)),
		"links", links,
		"count_pairs", counts.Len(),
		"count_mass", counts.Total(),
		"elapsed", elapsed,
		"pairs_per_sec", safeDiv(float64(len(pairs)), elapsed.Seconds()),
	)

	for i := 0; i < bc.show && i < len(out); i++ {
		fmt.Println(pharaoh(out[i]))
	}

	if bc.dbPath != "" {
		if err := flushToStore(ctx, logger, bc.dbPath, counts); err != nil {
			return err
		}
	}

	tbl.Normalize()
	logger.Info("table normalized", "run", runID, "probabilities", tbl.Size())
	return nil
}

func flushToStore(ctx context.Context, logger *slog.Logger, path string, counts *ttable.Counts) error {
	st, err := sqlite.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer st.Close()

	counts.MergeInto(st)
	if err := st.Flush(ctx); err != nil {
		return err
	}
	if err := st.Normalize(ctx); err != nil {
		return err
	}
	loaded, err := st.LoadInto(ctx, ttable.NewMemory(ttable.Options{}))
	if err != nil {
		return err
	}
	logger.Info("counts stored", "db", path, "probabilities", loaded)
	return nil
}

// syntheticBatch builds pairs whose target side is a noisy, roughly monotone
// translation of the source side, so the diagonal prior has something to find.
// Target ids are source ids shifted past the source vocabulary.
func syntheticBatch(rng *rand.Rand, n, maxLen, vocab int) []aligner.SentencePair {
	pairs := make([]aligner.SentencePair, n)
	for i := range pairs {
		srcLen := 1 + rng.Intn(maxLen)
		src := make([]aligner.TokenID, srcLen)
		for k := range src {
			src[k] = aligner.TokenID(1 + rng.Intn(vocab))
		}

		trg := make([]aligner.TokenID, 0, srcLen+2)
		for _, s := range src {
			switch r := rng.Float64(); {
			case r < 0.1:
				// dropped word
			case r < 0.2:
				trg = append(trg, s+aligner.TokenID(vocab), aligner.TokenID(2*vocab+1+rng.Intn(50)))
			default:
				trg = append(trg, s+aligner.TokenID(vocab))
			}
		}
		if len(trg) > 1 && rng.Float64() < 0.3 {
			k := rng.Intn(len(trg) - 1)
			trg[k], trg[k+1] = trg[k+1], trg[k]
		}
		pairs[i] = aligner.SentencePair{Source: src, Target: trg}
	}
	return pairs
}

// pharaoh formats an alignment as space separated "source-target" links.
func pharaoh(a aligner.Alignment) string {
	parts := make([]string, len(a))
	for i, l := range a {
		parts[i] = fmt.Sprintf("%d-%d", l.Source, l.Target)
	}
	return strings.Join(parts, " ")
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
