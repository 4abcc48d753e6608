package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	command TEXT NOT NULL,
	strategy TEXT NOT NULL,
	target_ref TEXT,
	status TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	exit_code INTEGER
);

CREATE TABLE IF NOT EXISTS job_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	ts DATETIME NOT NULL,
	stream TEXT NOT NULL,
	data TEXT NOT NULL,
	UNIQUE (job_id, seq),
	FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_target_ref ON jobs(target_ref);
CREATE INDEX IF NOT EXISTS idx_jobs_started_at ON jobs(started_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	command TEXT NOT NULL,
	strategy TEXT NOT NULL,
	target_ref TEXT,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	exit_code INTEGER
);

CREATE TABLE IF NOT EXISTS job_logs (
	id BIGSERIAL PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	seq BIGINT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	stream TEXT NOT NULL,
	data TEXT NOT NULL,
	UNIQUE (job_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_target_ref ON jobs(target_ref);
CREATE INDEX IF NOT EXISTS idx_jobs_started_at ON jobs(started_at);
`

type DB struct {
	*sqlx.DB
	Driver string
}

// New opens the job store and creates the schema. driver is "sqlite" or "postgres".
func New(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		return newSQLite(dsn)
	case DriverPostgres:
		return newPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// sqlitePragmas run on open. WAL lets the log writer and API readers overlap.
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

func newSQLite(path string) (*DB, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store %s: %w", path, err)
	}

	// Every connection to an in-memory database gets its own copy.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range append(sqlitePragmas, sqliteSchema) {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare sqlite store: %w", err)
		}
	}

	return &DB{DB: db, Driver: DriverSQLite}, nil
}

func newPostgres(dsn string) (*DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres store: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create job tables: %w", err)
	}

	return &DB{DB: db, Driver: DriverPostgres}, nil
}

// Wrap adapts an already opened *sql.DB. The schema is not created.
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{DB: sqlx.NewDb(db, driver), Driver: driver}
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// NullString maps an optional column value. A nil pointer stores NULL.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func NullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
