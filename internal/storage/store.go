package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Store wraps the SQLite-backed manifest of runs and skipped block ranges.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id              TEXT PRIMARY KEY,
  network         TEXT NOT NULL,
  contract        TEXT NOT NULL,
  event           TEXT NOT NULL,
  from_block      INTEGER NOT NULL,
  to_block        INTEGER NOT NULL,
  chunk_size      INTEGER NOT NULL,
  output          TEXT NOT NULL,
  status          TEXT NOT NULL,
  events_written  INTEGER NOT NULL DEFAULT 0,
  error           TEXT,
  started_at      TIMESTAMP NOT NULL,
  finished_at     TIMESTAMP
);

CREATE TABLE IF NOT EXISTS skipped_ranges (
  run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  start_block  INTEGER NOT NULL,
  end_block    INTEGER NOT NULL,
  attempts     INTEGER NOT NULL,
  reason       TEXT NOT NULL,
  created_at   TIMESTAMP NOT NULL,
  resolved_at  TIMESTAMP,
  PRIMARY KEY(run_id, start_block)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Run is one collector invocation.
type Run struct {
	ID            string
	Network       string
	Contract      string
	Event         string
	FromBlock     uint64
	ToBlock       uint64
	ChunkSize     uint64
	Output        string
	Status        string
	EventsWritten int
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// SkippedRange is a block range whose logs could not be fetched.
type SkippedRange struct {
	RunID      string
	StartBlock uint64
	EndBlock   uint64
	Attempts   int
	Reason     string
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// StartRun records a new running run and returns it with its generated id.
func (s *Store) StartRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = RunRunning
	r.StartedAt = s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, network, contract, event, from_block, to_block, chunk_size, output, status, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, r.ID, r.Network, r.Contract, r.Event, r.FromBlock, r.ToBlock, r.ChunkSize, r.Output, r.Status, r.StartedAt)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// FinishRun sets the terminal status of a run.
func (s *Store) FinishRun(ctx context.Context, id, status string, eventsWritten int, runErr error) error {
	var msg any
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET status = ?, events_written = ?, error = ?, finished_at = ? WHERE id = ?;
`, status, eventsWritten, msg, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", id)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx, runSelect+` WHERE id = ?;`, id)
	return scanRun(row)
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx, runSelect+` ORDER BY started_at DESC, rowid DESC LIMIT 1;`)
	return scanRun(row)
}

const runSelect = `
SELECT id, network, contract, event, from_block, to_block, chunk_size, output, status,
       events_written, COALESCE(error, ''), started_at, finished_at
FROM runs`

func scanRun(row *sql.Row) (Run, bool, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Network, &r.Contract, &r.Event, &r.FromBlock, &r.ToBlock, &r.ChunkSize,
		&r.Output, &r.Status, &r.EventsWritten, &r.Error, &r.StartedAt, &finished)
	switch {
	case err == nil:
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		return r, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return Run{}, false, nil
	default:
		return Run{}, false, fmt.Errorf("get run: %w", err)
	}
}

// RecordSkipped stores a skipped range for a run; re-recording the same range updates it.
func (s *Store) RecordSkipped(ctx context.Context, sr SkippedRange) error {
	if sr.RunID == "" {
		return errors.New("run id required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO skipped_ranges (run_id, start_block, end_block, attempts, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, start_block) DO UPDATE SET
  end_block=excluded.end_block,
  attempts=skipped_ranges.attempts + excluded.attempts,
  reason=excluded.reason,
  resolved_at=NULL;
`, sr.RunID, sr.StartBlock, sr.EndBlock, sr.Attempts, sr.Reason, s.now().UTC())
	if err != nil {
		return fmt.Errorf("record skipped range: %w", err)
	}
	return nil
}

// ResolveSkipped marks a skipped range as backfilled.
func (s *Store) ResolveSkipped(ctx context.Context, runID string, startBlock uint64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE skipped_ranges SET resolved_at = ? WHERE run_id = ? AND start_block = ?;
`, s.now().UTC(), runID, startBlock)
	if err != nil {
		return fmt.Errorf("resolve skipped range: %w", err)
	}
	return nil
}

// ListSkipped returns a run's skipped ranges in block order. With unresolvedOnly,
// backfilled ranges are omitted.
func (s *Store) ListSkipped(ctx context.Context, runID string, unresolvedOnly bool) ([]SkippedRange, error) {
	query := `
SELECT run_id, start_block, end_block, attempts, reason, created_at, resolved_at
FROM skipped_ranges WHERE run_id = ?`
	if unresolvedOnly {
		query += ` AND resolved_at IS NULL`
	}
	query += ` ORDER BY start_block;`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list skipped ranges: %w", err)
	}
	defer rows.Close()

	var out []SkippedRange
	for rows.Next() {
		var (
			sr       SkippedRange
			resolved sql.NullTime
		)
		if err := rows.Scan(&sr.RunID, &sr.StartBlock, &sr.EndBlock, &sr.Attempts, &sr.Reason, &sr.CreatedAt, &resolved); err != nil {
			return nil, fmt.Errorf("scan skipped range: %w", err)
		}
		if resolved.Valid {
			sr.ResolvedAt = resolved.Time
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list skipped ranges: %w", err)
	}
	return out, nil
}
