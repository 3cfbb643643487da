// Package sqlite is the embedded single-node backend for the job queue and
// crop records. It serves local development and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS detection_jobs (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  state TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  input_image BLOB,
  input_mime TEXT NOT NULL DEFAULT '',
  input_filename TEXT NOT NULL DEFAULT '',
  image_url TEXT NOT NULL DEFAULT '',
  image_public_id TEXT NOT NULL DEFAULT '',
  region TEXT NOT NULL DEFAULT '',
  result_json TEXT,
  failure_reason TEXT NOT NULL DEFAULT '',
  submitted_at INTEGER NOT NULL,
  started_at INTEGER,
  finished_at INTEGER,
  next_run_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS detection_jobs_runnable_idx ON detection_jobs (state, next_run_at);
CREATE INDEX IF NOT EXISTS detection_jobs_owner_idx ON detection_jobs (owner_id, submitted_at);

CREATE TABLE IF NOT EXISTS crops (
  id TEXT PRIMARY KEY,
  job_id TEXT,
  owner_id TEXT NOT NULL,
  crop_name TEXT NOT NULL,
  image_url TEXT NOT NULL DEFAULT '',
  image_public_id TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS infections (
  id TEXT PRIMARY KEY,
  crop_id TEXT NOT NULL REFERENCES crops(id) ON DELETE CASCADE,
  disease_class TEXT NOT NULL,
  disease_class_raw TEXT NOT NULL,
  disease_top TEXT NOT NULL DEFAULT '',
  is_healthy INTEGER NOT NULL DEFAULT 0,
  confidence REAL NOT NULL DEFAULT 0,
  top_score REAL NOT NULL DEFAULT 0,
  inference_id TEXT NOT NULL DEFAULT '',
  image_width INTEGER NOT NULL DEFAULT 0,
  image_height INTEGER NOT NULL DEFAULT 0,
  description TEXT NOT NULL DEFAULT '',
  causes TEXT NOT NULL DEFAULT '[]',
  symptoms TEXT NOT NULL DEFAULT '[]',
  prevention TEXT NOT NULL DEFAULT '[]',
  treatment TEXT NOT NULL DEFAULT '[]',
  info_source TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
`

// cropsJobIndex runs after the job_id column is known to exist, so databases
// created before the column was added are upgraded in place.
const cropsJobIndex = `CREATE UNIQUE INDEX IF NOT EXISTS crops_job_idx ON crops (job_id)`

// DB is an open SQLite database with the detection schema applied.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path and applies the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// Writers are serialized so claims never race.
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	has, err := hasColumn(db, "crops", "job_id")
	if err != nil {
		return err
	}
	if !has {
		if _, err := db.Exec(`ALTER TABLE crops ADD COLUMN job_id TEXT`); err != nil {
			return err
		}
	}
	_, err = db.Exec(cropsJobIndex)
	return err
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (d *DB) Close() error { return d.db.Close() }

// Ping checks the database is reachable.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// Jobs returns the job repository view of the database.
func (d *DB) Jobs() *JobStore { return &JobStore{db: d.db} }

// Records returns the crop record view of the database.
func (d *DB) Records() *RecordStore { return &RecordStore{db: d.db} }
