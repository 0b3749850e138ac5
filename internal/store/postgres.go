package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/speedtrack/internal/db"
	"github.com/sells-group/speedtrack/internal/model"
)

// PostgresStore implements Warehouse using pgxpool.
type PostgresStore struct {
	pool  db.Pool
	stmts statements
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

// NewPostgres creates a PostgresStore with a small connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(0)
	idle := 5 * time.Minute
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
		if poolCfg.MaxConnIdleTime > 0 {
			idle = poolCfg.MaxConnIdleTime
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = idle

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool), nil
}

func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, stmts: buildStatements(postgresDialect)}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS time_metadata (
	time_id          TIMESTAMPTZ PRIMARY KEY,
	local_tz         TIMESTAMP NOT NULL,
	date_key         INTEGER NOT NULL,
	year             SMALLINT NOT NULL,
	month            SMALLINT NOT NULL,
	month_name       TEXT NOT NULL,
	day              SMALLINT NOT NULL,
	day_of_week      SMALLINT NOT NULL,
	day_of_week_name TEXT NOT NULL,
	week_of_year     SMALLINT NOT NULL,
	quarter          SMALLINT NOT NULL,
	hour             SMALLINT NOT NULL,
	is_weekend       BOOLEAN NOT NULL,
	is_holiday       BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS servers (
	server_id         BIGINT PRIMARY KEY,
	server_name       TEXT NOT NULL DEFAULT '',
	server_host       TEXT NOT NULL DEFAULT '',
	server_location   TEXT NOT NULL DEFAULT '',
	server_country    TEXT NOT NULL DEFAULT '',
	server_ip         TEXT NOT NULL DEFAULT '',
	server_port       INTEGER NOT NULL DEFAULT 0,
	server_latitude   DOUBLE PRECISION,
	server_longitude  DOUBLE PRECISION,
	isp               TEXT NOT NULL DEFAULT '',
	geo_status        TEXT NOT NULL DEFAULT 'pending',
	geo_attempted_utc TIMESTAMPTZ,
	first_seen_utc    TIMESTAMPTZ NOT NULL,
	last_seen_utc     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS result_metadata (
	result_id        TEXT PRIMARY KEY,
	result_url       TEXT,
	result_persisted BOOLEAN NOT NULL DEFAULT false,
	measured_at_utc  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS internet_speeds (
	id              BIGSERIAL PRIMARY KEY,
	result_id       TEXT NOT NULL REFERENCES result_metadata(result_id),
	server_id       BIGINT NOT NULL REFERENCES servers(server_id),
	measured_at_utc TIMESTAMPTZ NOT NULL REFERENCES time_metadata(time_id),
	download_mbps   DOUBLE PRECISION NOT NULL,
	upload_mbps     DOUBLE PRECISION NOT NULL,
	latency_ms      DOUBLE PRECISION NOT NULL,
	jitter_ms       DOUBLE PRECISION,
	packet_loss_pct DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_internet_speeds_measured_at ON internet_speeds(measured_at_utc);
CREATE INDEX IF NOT EXISTS idx_internet_speeds_result_id ON internet_speeds(result_id);
CREATE INDEX IF NOT EXISTS idx_internet_speeds_server_id ON internet_speeds(server_id);
CREATE INDEX IF NOT EXISTS idx_time_metadata_date_key ON time_metadata(date_key);
`

// Migrate creates the warehouse tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// InTx runs fn inside a pgx transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&warehouseTx{ex: pgxExecer{tx: tx}, stmts: s.stmts, d: postgresDialect})
	})
}

type pgxExecer struct {
	tx pgx.Tx
}

func (e pgxExecer) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := e.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e pgxExecer) queryRow(ctx context.Context, query string, args ...any) scanner {
	return e.tx.QueryRow(ctx, query, args...)
}

func (pgxExecer) isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

const pgHourlyMedians = `SELECT date_trunc('hour', measured_at_utc AT TIME ZONE 'UTC') AS hour_bucket,
	percentile_cont(0.5) WITHIN GROUP (ORDER BY download_mbps) AS median_download_mbps,
	percentile_cont(0.5) WITHIN GROUP (ORDER BY upload_mbps) AS median_upload_mbps,
	percentile_cont(0.5) WITHIN GROUP (ORDER BY latency_ms) AS median_latency_ms,
	count(*) AS samples
FROM internet_speeds
WHERE measured_at_utc >= $1 AND measured_at_utc < $2
GROUP BY 1
ORDER BY 1`

// HourlyMedians aggregates facts in [start, end) into UTC hour buckets.
func (s *PostgresStore) HourlyMedians(ctx context.Context, start, end time.Time) ([]model.HourlyMedian, error) {
	rows, err := s.pool.Query(ctx, pgHourlyMedians, start.UTC(), end.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: hourly medians")
	}
	defer rows.Close()

	out := []model.HourlyMedian{}
	for rows.Next() {
		var h model.HourlyMedian
		if err := rows.Scan(&h.HourBucket, &h.MedianDownloadMbps, &h.MedianUploadMbps, &h.MedianLatencyMs, &h.Samples); err != nil {
			return nil, eris.Wrap(err, "postgres: scan hourly median")
		}
		h.HourBucket = h.HourBucket.UTC()
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate hourly medians")
}

// measurementSelect joins facts with their server for display.
func measurementSelect() string {
	return fmt.Sprintf(`SELECT f.result_id, f.server_id, f.measured_at_utc, f.download_mbps, f.upload_mbps,
	f.latency_ms, f.jitter_ms, f.packet_loss_pct, s.server_name, s.server_location, s.isp
FROM %s f JOIN %s s ON s.server_id = f.server_id`, db.SanitizeTable(TableSpeeds), db.SanitizeTable(TableServers))
}

func scanMeasurement(sc scanner) (model.Measurement, error) {
	var m model.Measurement
	err := sc.Scan(&m.ResultID, &m.ServerID, &m.MeasuredAtUTC, &m.DownloadMbps, &m.UploadMbps,
		&m.LatencyMs, &m.JitterMs, &m.PacketLossPct, &m.ServerName, &m.ServerLocation, &m.ISP)
	m.MeasuredAtUTC = m.MeasuredAtUTC.UTC()
	return m, err
}

// LatestMeasurement returns the newest fact, or nil when the warehouse is empty.
func (s *PostgresStore) LatestMeasurement(ctx context.Context) (*model.Measurement, error) {
	q := measurementSelect() + ` ORDER BY f.measured_at_utc DESC LIMIT 1`
	m, err := scanMeasurement(s.pool.QueryRow(ctx, q))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest measurement")
	}
	return &m, nil
}

// RawRange lists facts in [start, end), newest first. limit <= 0 means no limit.
func (s *PostgresStore) RawRange(ctx context.Context, start, end time.Time, limit int) ([]model.Measurement, error) {
	q := measurementSelect() + ` WHERE f.measured_at_utc >= $1 AND f.measured_at_utc < $2 ORDER BY f.measured_at_utc DESC`
	args := []any{start.UTC(), end.UTC()}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: raw range")
	}
	defer rows.Close()

	out := []model.Measurement{}
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan measurement")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate raw range")
}

// TimeBounds returns the earliest and latest measurement instants, or nil
// when the warehouse is empty.
func (s *PostgresStore) TimeBounds(ctx context.Context) (*model.TimeBounds, error) {
	var lo, hi *time.Time
	err := s.pool.QueryRow(ctx, `SELECT min(measured_at_utc), max(measured_at_utc) FROM internet_speeds`).Scan(&lo, &hi)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: time bounds")
	}
	if lo == nil || hi == nil {
		return nil, nil
	}
	return &model.TimeBounds{Min: lo.UTC(), Max: hi.UTC()}, nil
}
