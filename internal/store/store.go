// Package store persists finished episodes and the long-run series in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"tileagent/internal/stats"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs(
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS episodes(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		episode INTEGER NOT NULL,
		total_moves INTEGER NOT NULL,
		score INTEGER NOT NULL,
		largest_tile INTEGER NOT NULL,
		won INTEGER NOT NULL,
		total_reward REAL NOT NULL DEFAULT 0,
		ended_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS episodes_run ON episodes(run_id)`,
	`CREATE TABLE IF NOT EXISTS long_run(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		x INTEGER NOT NULL,
		avg REAL NOT NULL,
		avg_reward REAL NOT NULL
	)`,
}

// Run summarizes one run segment
type Run struct {
	ID        string
	StartedAt time.Time
	Episodes  int
	BestScore int
	BestTile  int
}

// Store is a stats.Display backed by SQLite. Rows are tagged with the id of
// the current run segment and each Clear registers the next one. Write
// errors are logged and the first is kept for Err.
type Store struct {
	db         *sql.DB
	logger     zerolog.Logger
	segment    *stats.Segment
	ownSegment bool

	// false for a reader on a database older than the total_reward column
	rewardColumn bool

	mu  sync.Mutex
	err error
}

// Open creates or opens the database at path and registers the current
// run segment. A nil segment gives the store one of its own, renewed on
// Clear.
func Open(ctx context.Context, path string, segment *stats.Segment, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	s, err := open(ctx, path, logger, true)
	if err != nil {
		return nil, err
	}
	s.segment, s.ownSegment = segment, segment == nil
	if s.ownSegment {
		s.segment = stats.NewSegment()
	}
	if err := s.registerRun(ctx); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReader opens an existing database for queries only. Nothing is
// written, not even the schema; the Display methods do nothing.
func OpenReader(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return open(ctx, path, logger, false)
}

func open(ctx context.Context, path string, logger zerolog.Logger, write bool) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: logger.With().Str("component", "store").Logger()}

	if !write {
		if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
		if s.rewardColumn, err = hasRewardColumn(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	s.rewardColumn = true
	return s, nil
}

// migrate adds columns missing from databases written by older builds
func migrate(ctx context.Context, db *sql.DB) error {
	ok, err := hasRewardColumn(ctx, db)
	if err != nil || ok {
		return err
	}
	if _, err := db.ExecContext(ctx, "ALTER TABLE episodes ADD COLUMN total_reward REAL NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("add total_reward: %w", err)
	}
	return nil
}

func hasRewardColumn(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info('episodes') WHERE name = 'total_reward'").Scan(&n); err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n > 0, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// RunID returns the current run segment id, empty for a reader
func (s *Store) RunID() string {
	if s.segment == nil {
		return ""
	}
	return s.segment.ID()
}

// Err returns the first write error
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) registerRun(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO runs(id, started_at) VALUES(?, ?)",
		s.segment.ID(), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) Move(stats.MoveEntry) {}

func (s *Store) ScorePoint(stats.ScorePoint) {}

// Episode inserts one finished episode
func (s *Store) Episode(e stats.EpisodeEntry) {
	if s.segment == nil {
		return
	}
	won := 0
	if e.Won {
		won = 1
	}
	s.exec("insert episode",
		`INSERT INTO episodes(run_id, episode, total_moves, score, largest_tile, won, total_reward, ended_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID(), e.Episode, e.TotalMoves, e.Score, e.LargestTile, won, e.TotalReward, time.Now().UnixMilli())
}

// LongRunPoint inserts one point of the long-run series
func (s *Store) LongRunPoint(p stats.LongRunPoint) {
	if s.segment == nil {
		return
	}
	s.exec("insert long-run point",
		"INSERT INTO long_run(run_id, x, avg, avg_reward) VALUES(?, ?, ?, ?)",
		s.RunID(), p.X, p.Avg, p.AvgReward)
}

// Clear registers the next run segment; stored history is kept
func (s *Store) Clear() {
	if s.segment == nil {
		return
	}
	if s.ownSegment {
		s.segment.Next()
	}
	if err := s.registerRun(context.Background()); err != nil {
		s.keep("new run", err)
	}
}

func (s *Store) exec(what, query string, args ...any) {
	if _, err := s.db.Exec(query, args...); err != nil {
		s.keep(what, err)
	}
}

func (s *Store) keep(what string, err error) {
	s.logger.Warn().Err(err).Msg(what)
	s.mu.Lock()
	if s.err == nil {
		s.err = fmt.Errorf("%s: %w", what, err)
	}
	s.mu.Unlock()
}

// Episodes returns the episodes of runID in insertion order; an empty
// runID returns every episode
func (s *Store) Episodes(ctx context.Context, runID string) ([]stats.EpisodeSummary, error) {
	reward := "total_reward"
	if !s.rewardColumn {
		reward = "0"
	}
	query := "SELECT episode, total_moves, score, largest_tile, won, " + reward + ", ended_at FROM episodes"
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []stats.EpisodeSummary
	for rows.Next() {
		var (
			e     stats.EpisodeSummary
			won   int
			ended int64
		)
		if err := rows.Scan(&e.Episode, &e.TotalMoves, &e.FinalScore, &e.LargestTile, &won, &e.TotalReward, &ended); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		e.Won = won != 0
		e.EndedAt = time.UnixMilli(ended)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LongRun returns the long-run series of runID
func (s *Store) LongRun(ctx context.Context, runID string) ([]stats.LongRunPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT x, avg, avg_reward FROM long_run WHERE run_id = ? ORDER BY id ASC", runID)
	if err != nil {
		return nil, fmt.Errorf("query long-run: %w", err)
	}
	defer rows.Close()

	var out []stats.LongRunPoint
	for rows.Next() {
		var p stats.LongRunPoint
		if err := rows.Scan(&p.X, &p.Avg, &p.AvgReward); err != nil {
			return nil, fmt.Errorf("scan long-run: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Runs lists every run segment, oldest first
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, COUNT(e.id), COALESCE(MAX(e.score), 0), COALESCE(MAX(e.largest_tile), 0)
		FROM runs r LEFT JOIN episodes e ON e.run_id = r.id
		GROUP BY r.id, r.started_at
		ORDER BY r.started_at ASC, MIN(r.rowid) ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			started int64
		)
		if err := rows.Scan(&r.ID, &started, &r.Episodes, &r.BestScore, &r.BestTile); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		out = append(out, r)
	}
	return out, rows.Err()
}
