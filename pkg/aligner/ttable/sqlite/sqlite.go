// Package sqlite keeps translation-table counts in a SQLite database for
// vocabularies whose pair counts do not fit in memory.
//
// Increments are staged in memory and written with Flush. Normalize turns
// the stored counts into probabilities, which LoadInto copies into a
// ttable.Memory for scoring.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/cognicore/aligner/pkg/aligner"
	"github.com/cognicore/aligner/pkg/aligner/internalerr"
	"github.com/cognicore/aligner/pkg/aligner/ttable"
)

// Store is a SQLite-backed count store. It implements ttable.Accumulator.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	pending *ttable.Counts
	closed  bool
}

var _ ttable.Accumulator = (*Store)(nil)

// Open opens a SQLite database with WAL mode enabled.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, pending: ttable.NewCounts()}, nil
}

// Close closes the database connection. Unflushed increments are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS lexical_counts (
	src INTEGER NOT NULL,
	trg INTEGER NOT NULL,
	count REAL NOT NULL DEFAULT 0,
	prob REAL,
	PRIMARY KEY(src, trg)
);

CREATE INDEX IF NOT EXISTS idx_lexical_counts_src ON lexical_counts(src);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Increment stages an expected count. It is safe for concurrent use.
func (s *Store) Increment(src, trg aligner.TokenID, amount float64) {
	s.mu.Lock()
	s.pending.Increment(src, trg, amount)
	s.mu.Unlock()
}

// Pending returns the number of staged pairs not yet flushed.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// Flush adds the staged counts to the database in one transaction.
// On failure the staged counts are kept for the next Flush.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return internalerr.ErrStoreUnavailable
	}
	batch := s.pending
	s.pending = ttable.NewCounts()
	s.mu.Unlock()

	if batch.Len() == 0 {
		return nil
	}

	if err := s.write(ctx, batch); err != nil {
		s.mu.Lock()
		batch.MergeInto(s.pending)
		s.mu.Unlock()
		return fmt.Errorf("flush %d counts: %w", batch.Len(), err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, batch *ttable.Counts) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO lexical_counts (src, trg, count) VALUES (?, ?, ?)
ON CONFLICT(src, trg) DO UPDATE SET count = count + excluded.count;
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var execErr error
	batch.Range(func(p ttable.Pair, c float64) {
		if execErr != nil {
			return
		}
		_, execErr = stmt.ExecContext(ctx, int64(p.Source), int64(p.Target), c)
	})
	if execErr != nil {
		return execErr
	}
	return tx.Commit()
}

// Count returns the flushed count of (src, trg).
func (s *Store) Count(ctx context.Context, src, trg aligner.TokenID) (float64, error) {
	if s.isClosed() {
		return 0, internalerr.ErrStoreUnavailable
	}
	var c float64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM lexical_counts WHERE src=? AND trg=?`, int64(src), int64(trg)).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return c, err
}

// Normalize turns the flushed counts into conditional probabilities
// P(trg | src) and zeroes the counts. Pairs without counts are removed.
func (s *Store) Normalize(ctx context.Context) error {
	if s.isClosed() {
		return internalerr.ErrStoreUnavailable
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lexical_counts WHERE count <= 0;`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE lexical_counts
SET prob = count / (SELECT SUM(c.count) FROM lexical_counts c WHERE c.src = lexical_counts.src);
`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE lexical_counts SET count = 0;`); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadInto copies every stored probability into t and returns how many
// were loaded.
func (s *Store) LoadInto(ctx context.Context, t *ttable.Memory) (int, error) {
	if s.isClosed() {
		return 0, internalerr.ErrStoreUnavailable
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT src, trg, prob FROM lexical_counts WHERE prob IS NOT NULL ORDER BY src, trg`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var src, trg int64
		var p float64
		if err := rows.Scan(&src, &trg, &p); err != nil {
			return n, err
		}
		t.SetProbability(aligner.TokenID(src), aligner.TokenID(trg), p)
		n++
	}
	return n, rows.Err()
}

// Reset deletes every stored count and probability and drops staged
// increments.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return internalerr.ErrStoreUnavailable
	}
	s.pending.Reset()
	s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM lexical_counts;`)
	return err
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
