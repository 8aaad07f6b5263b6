// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists training run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/strideml/stride/pkg/errors"
)

// Run is one row of training run history.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Epochs     int
	Steps      int
	StopReason string
}

// Store records run history in a local SQLite database.
//
// WAL mode is enabled for concurrent readers.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the run-history database at path and runs
// migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	connStr := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			epochs INTEGER NOT NULL DEFAULT 0,
			steps INTEGER NOT NULL DEFAULT 0,
			stop_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// RecordStart inserts a new run row.
func (s *Store) RecordStart(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		runID, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordFinish updates a run row with its final progress and stop reason.
func (s *Store) RecordFinish(ctx context.Context, runID string, finishedAt time.Time, epochs, steps int, stopReason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, epochs = ?, steps = ?, stop_reason = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339Nano), epochs, steps, stopReason, runID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n == 0 {
		return &errors.NotFoundError{Resource: "run", ID: runID}
	}
	return nil
}

// Get returns a single run by ID.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, epochs, steps, stop_reason FROM runs WHERE id = ?`,
		runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List returns runs ordered by start time, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, epochs, steps, stop_reason
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&run.ID, &startedAt, &finishedAt, &run.Epochs, &run.Steps, &run.StopReason); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
	}
	run.StartedAt = ts

	if finishedAt.Valid && finishedAt.String != "" {
		ts, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid finished_at %q: %w", finishedAt.String, err)
		}
		run.FinishedAt = ts
	}

	return &run, nil
}
