package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/speedtrack/internal/model"
)

// SQLiteStore implements Warehouse using modernc.org/sqlite. It is meant
// for single-host deployments and tests.
type SQLiteStore struct {
	db    *sql.DB
	stmts statements
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps the pragmas below in effect and serialises writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, stmts: buildStatements(sqliteDialect)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS time_metadata (
	time_id          DATETIME PRIMARY KEY,
	local_tz         DATETIME NOT NULL,
	date_key         INTEGER NOT NULL,
	year             INTEGER NOT NULL,
	month            INTEGER NOT NULL,
	month_name       TEXT NOT NULL,
	day              INTEGER NOT NULL,
	day_of_week      INTEGER NOT NULL,
	day_of_week_name TEXT NOT NULL,
	week_of_year     INTEGER NOT NULL,
	quarter          INTEGER NOT NULL,
	hour             INTEGER NOT NULL,
	is_weekend       BOOLEAN NOT NULL,
	is_holiday       BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS servers (
	server_id         INTEGER PRIMARY KEY,
	server_name       TEXT NOT NULL DEFAULT '',
	server_host       TEXT NOT NULL DEFAULT '',
	server_location   TEXT NOT NULL DEFAULT '',
	server_country    TEXT NOT NULL DEFAULT '',
	server_ip         TEXT NOT NULL DEFAULT '',
	server_port       INTEGER NOT NULL DEFAULT 0,
	server_latitude   REAL,
	server_longitude  REAL,
	isp               TEXT NOT NULL DEFAULT '',
	geo_status        TEXT NOT NULL DEFAULT 'pending',
	geo_attempted_utc DATETIME,
	first_seen_utc    DATETIME NOT NULL,
	last_seen_utc     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS result_metadata (
	result_id        TEXT PRIMARY KEY,
	result_url       TEXT,
	result_persisted BOOLEAN NOT NULL DEFAULT 0,
	measured_at_utc  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS internet_speeds (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	result_id       TEXT NOT NULL REFERENCES result_metadata(result_id),
	server_id       INTEGER NOT NULL REFERENCES servers(server_id),
	measured_at_utc DATETIME NOT NULL REFERENCES time_metadata(time_id),
	download_mbps   REAL NOT NULL,
	upload_mbps     REAL NOT NULL,
	latency_ms      REAL NOT NULL,
	jitter_ms       REAL,
	packet_loss_pct REAL
);

CREATE INDEX IF NOT EXISTS idx_internet_speeds_measured_at ON internet_speeds(measured_at_utc);
CREATE INDEX IF NOT EXISTS idx_internet_speeds_result_id ON internet_speeds(result_id);
CREATE INDEX IF NOT EXISTS idx_internet_speeds_server_id ON internet_speeds(server_id);
CREATE INDEX IF NOT EXISTS idx_time_metadata_date_key ON time_metadata(date_key);
`

// DB returns the underlying handle for ad hoc queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Migrate creates the warehouse tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a database/sql transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(&warehouseTx{ex: sqlExecer{tx: tx}, stmts: s.stmts, d: sqliteDialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return eris.Wrapf(err, "sqlite: rollback also failed: %v", rbErr)
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

type sqlExecer struct {
	tx *sql.Tx
}

func (e sqlExecer) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (e sqlExecer) queryRow(ctx context.Context, query string, args ...any) scanner {
	return e.tx.QueryRowContext(ctx, query, args...)
}

func (sqlExecer) isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// HourlyMedians aggregates facts in [start, end) into UTC hour buckets.
// SQLite has no percentile aggregate, so medians are computed in Go.
func (s *SQLiteStore) HourlyMedians(ctx context.Context, start, end time.Time) ([]model.HourlyMedian, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT measured_at_utc, download_mbps, upload_mbps, latency_ms FROM internet_speeds
		WHERE measured_at_utc >= ? AND measured_at_utc < ? ORDER BY measured_at_utc`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: hourly medians")
	}
	defer rows.Close()

	var samples []hourSample
	for rows.Next() {
		var h hourSample
		if err := rows.Scan(&h.at, &h.download, &h.upload, &h.latency); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan hourly sample")
		}
		samples = append(samples, h)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate hourly samples")
	}
	return bucketMedians(samples), nil
}

// LatestMeasurement returns the newest fact, or nil when the warehouse is empty.
func (s *SQLiteStore) LatestMeasurement(ctx context.Context) (*model.Measurement, error) {
	q := measurementSelect() + ` ORDER BY f.measured_at_utc DESC, f.id DESC LIMIT 1`
	m, err := scanMeasurement(s.db.QueryRowContext(ctx, q))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: latest measurement")
	}
	return &m, nil
}

// RawRange lists facts in [start, end), newest first. limit <= 0 means no limit.
func (s *SQLiteStore) RawRange(ctx context.Context, start, end time.Time, limit int) ([]model.Measurement, error) {
	q := measurementSelect() + ` WHERE f.measured_at_utc >= ? AND f.measured_at_utc < ? ORDER BY f.measured_at_utc DESC, f.id DESC`
	args := []any{start.UTC(), end.UTC()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: raw range")
	}
	defer rows.Close()

	out := []model.Measurement{}
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan measurement")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate raw range")
}

// TimeBounds returns the earliest and latest measurement instants, or nil
// when the warehouse is empty.
func (s *SQLiteStore) TimeBounds(ctx context.Context) (*model.TimeBounds, error) {
	// min/max lose the column type, so read the extreme rows directly.
	var lo, hi time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT measured_at_utc FROM internet_speeds ORDER BY measured_at_utc ASC LIMIT 1`).Scan(&lo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: time bounds min")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT measured_at_utc FROM internet_speeds ORDER BY measured_at_utc DESC LIMIT 1`).Scan(&hi); err != nil {
		return nil, eris.Wrap(err, "sqlite: time bounds max")
	}
	return &model.TimeBounds{Min: lo.UTC(), Max: hi.UTC()}, nil
}
