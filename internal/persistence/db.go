// Package persistence provides SQLite-based run result storage: run
// metadata plus the full per-step KPI snapshots, queryable after the fact.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/demandsim/internal/engine"
)

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// RunMeta describes one stored run.
type RunMeta struct {
	ID        string  `db:"id"`
	Scenario  string  `db:"scenario"`
	Mode      string  `db:"mode"`
	Start     float64 `db:"start"`
	Stop      float64 `db:"stop"`
	DT        float64 `db:"dt"`
	Steps     int     `db:"steps"`
	CreatedAt string  `db:"created_at"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		mode TEXT NOT NULL,
		start REAL NOT NULL,
		stop REAL NOT NULL,
		dt REAL NOT NULL,
		steps INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		t REAL NOT NULL,
		values_json TEXT NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun stores a completed run and all of its snapshots, returning the
// generated run ID.
func (db *DB) SaveRun(scenario, mode string, start, stop, dt float64, res *engine.Result) (string, error) {
	id := uuid.NewString()

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, scenario, mode, start, stop, dt, steps, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, scenario, mode, start, stop, dt, len(res.Snapshots),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Preparex(
		"INSERT INTO snapshots (run_id, step, t, values_json) VALUES (?, ?, ?, ?)")
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for _, s := range res.Snapshots {
		valuesJSON, err := json.Marshal(s.Values)
		if err != nil {
			return "", fmt.Errorf("marshal snapshot %d: %w", s.Step, err)
		}
		if _, err := stmt.Exec(id, s.Step, s.Time, string(valuesJSON)); err != nil {
			return "", fmt.Errorf("insert snapshot %d: %w", s.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Info("run saved", "id", id, "scenario", scenario, "snapshots", len(res.Snapshots))
	return id, nil
}

// LoadSnapshots reads a run's snapshots back in step order.
func (db *DB) LoadSnapshots(runID string) ([]engine.Snapshot, error) {
	type row struct {
		Step       int     `db:"step"`
		T          float64 `db:"t"`
		ValuesJSON string  `db:"values_json"`
	}
	var rows []row
	err := db.conn.Select(&rows,
		"SELECT step, t, values_json FROM snapshots WHERE run_id = ? ORDER BY step",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	out := make([]engine.Snapshot, len(rows))
	for i, r := range rows {
		snap := engine.Snapshot{Step: r.Step, Time: r.T}
		if err := json.Unmarshal([]byte(r.ValuesJSON), &snap.Values); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %d: %w", r.Step, err)
		}
		out[i] = snap
	}
	return out, nil
}

// ListRuns returns stored run metadata, newest first.
func (db *DB) ListRuns() ([]RunMeta, error) {
	var runs []RunMeta
	err := db.conn.Select(&runs,
		"SELECT id, scenario, mode, start, stop, dt, steps, created_at FROM runs ORDER BY created_at DESC")
	return runs, err
}
