// Package store implements the speed warehouse: four tables written
// transactionally by the ingestion pipeline and read by the dashboard.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/speedtrack/internal/db"
	"github.com/sells-group/speedtrack/internal/model"
)

// Warehouse is the persistence interface shared by the Postgres and SQLite
// backends.
type Warehouse interface {
	Querier

	// InTx runs fn in one transaction. All writes commit together when fn
	// returns nil; otherwise everything is rolled back.
	InTx(ctx context.Context, fn func(Tx) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Querier is the read-only query service used by the dashboard. Empty
// ranges yield empty results, not errors.
type Querier interface {
	HourlyMedians(ctx context.Context, start, end time.Time) ([]model.HourlyMedian, error)
	LatestMeasurement(ctx context.Context) (*model.Measurement, error)
	RawRange(ctx context.Context, start, end time.Time, limit int) ([]model.Measurement, error)
	TimeBounds(ctx context.Context) (*model.TimeBounds, error)
}

// Tx is the write surface available inside Warehouse.InTx.
type Tx interface {
	// InsertTimeDimension inserts the row unless time_id exists.
	InsertTimeDimension(ctx context.Context, row model.TimeDimension) (bool, error)

	// GetServer returns the stored server, or nil when it was never seen.
	GetServer(ctx context.Context, serverID int64) (*model.ServerDimension, error)

	// UpsertServer updates descriptive fields and last_seen_utc of an
	// existing server, or inserts it with first_seen_utc = last_seen_utc =
	// now. Stored coordinates are never replaced. An empty GeoStatus keeps
	// the stored status. It reports whether a row was inserted.
	UpsertServer(ctx context.Context, srv model.ServerDimension, now time.Time) (bool, error)

	// InsertResult inserts the result unless result_id exists.
	InsertResult(ctx context.Context, res model.ResultMetadata) (bool, error)

	// InsertFact appends a fact row. With dedupe set, the insert is skipped
	// when a fact with the same result_id exists.
	InsertFact(ctx context.Context, fact model.SpeedFact, dedupe bool) (bool, error)
}

// Table names.
const (
	TableTime    = "time_metadata"
	TableServers = "servers"
	TableResults = "result_metadata"
	TableSpeeds  = "internet_speeds"
)

var (
	timeColumns = []string{
		"time_id", "local_tz", "date_key", "year", "month", "month_name", "day",
		"day_of_week", "day_of_week_name", "week_of_year", "quarter", "hour",
		"is_weekend", "is_holiday",
	}
	serverColumns = []string{
		"server_id", "server_name", "server_host", "server_location",
		"server_country", "server_ip", "server_port", "server_latitude",
		"server_longitude", "isp", "geo_status", "geo_attempted_utc",
		"first_seen_utc", "last_seen_utc",
	}
	resultColumns = []string{
		"result_id", "result_url", "result_persisted", "measured_at_utc",
	}
	factColumns = []string{
		"result_id", "server_id", "measured_at_utc", "download_mbps",
		"upload_mbps", "latency_ms", "jitter_ms", "packet_loss_pct",
	}
)

// dialect captures the SQL differences between backends.
type dialect struct {
	name        string
	placeholder func(n int) string
}

var (
	postgresDialect = dialect{name: "postgres", placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
	sqliteDialect   = dialect{name: "sqlite", placeholder: func(int) string { return "?" }}
)

func (d dialect) placeholders(from, count int) string {
	ph := make([]string, count)
	for i := range ph {
		ph[i] = d.placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

// statements holds the write SQL rendered for one dialect.
type statements struct {
	insertTime   string
	selectServer string
	updateServer string
	insertServer string
	insertResult string
	insertFact   string
	insertFactNX string
}

func buildStatements(d dialect) statements {
	p := d.placeholder
	servers := db.SanitizeTable(TableServers)
	speeds := db.SanitizeTable(TableSpeeds)

	return statements{
		insertTime: fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (time_id) DO NOTHING`,
			db.SanitizeTable(TableTime), db.QuoteAndJoin(timeColumns), d.placeholders(1, len(timeColumns))),

		selectServer: fmt.Sprintf(`SELECT %s FROM %s WHERE server_id = %s`,
			db.QuoteAndJoin(serverColumns), servers, p(1)),

		updateServer: fmt.Sprintf(`UPDATE %s SET server_name = %s, server_host = %s, server_location = %s, `+
			`server_country = %s, server_ip = %s, server_port = %s, isp = %s, `+
			`server_latitude = COALESCE(server_latitude, %s), server_longitude = COALESCE(server_longitude, %s), `+
			`geo_status = COALESCE(%s, geo_status), geo_attempted_utc = COALESCE(%s, geo_attempted_utc), `+
			`last_seen_utc = %s WHERE server_id = %s`,
			servers, p(1), p(2), p(3), p(4), p(5), p(6), p(7), p(8), p(9), p(10), p(11), p(12), p(13)),

		insertServer: fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			servers, db.QuoteAndJoin(serverColumns), d.placeholders(1, len(serverColumns))),

		insertResult: fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (result_id) DO NOTHING`,
			db.SanitizeTable(TableResults), db.QuoteAndJoin(resultColumns), d.placeholders(1, len(resultColumns))),

		insertFact: fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			speeds, db.QuoteAndJoin(factColumns), d.placeholders(1, len(factColumns))),

		insertFactNX: fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE result_id = %s)`,
			speeds, db.QuoteAndJoin(factColumns), factSelectList(d), speeds, p(len(factColumns)+1)),
	}
}

// factSelectList renders the fact values for INSERT ... SELECT. Postgres
// cannot infer parameter types in a bare select list, so they are cast.
func factSelectList(d dialect) string {
	if d.name != postgresDialect.name {
		return d.placeholders(1, len(factColumns))
	}
	types := []string{"text", "bigint", "timestamptz", "double precision",
		"double precision", "double precision", "double precision", "double precision"}
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%s::%s", d.placeholder(i+1), t)
	}
	return strings.Join(parts, ", ")
}

// scanner is satisfied by pgx.Row and *sql.Row.
type scanner interface {
	Scan(dest ...any) error
}

// execer abstracts the backend transaction handle.
type execer interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryRow(ctx context.Context, query string, args ...any) scanner
	isNoRows(err error) bool
}

// warehouseTx implements Tx over either backend.
type warehouseTx struct {
	ex    execer
	stmts statements
	d     dialect
}

func (t *warehouseTx) InsertTimeDimension(ctx context.Context, row model.TimeDimension) (bool, error) {
	n, err := t.ex.exec(ctx, t.stmts.insertTime,
		row.TimeID.UTC(), localWallClock(row.LocalTime), row.DateKey, row.Year, row.Month,
		row.MonthName, row.Day, row.DayOfWeek, row.DayOfWeekName, row.WeekOfYear,
		row.Quarter, row.Hour, row.IsWeekend, row.IsHoliday,
	)
	if err != nil {
		return false, eris.Wrapf(err, "%s: insert time %s", t.d.name, row.TimeID.UTC().Format(time.RFC3339))
	}
	return n > 0, nil
}

func (t *warehouseTx) GetServer(ctx context.Context, serverID int64) (*model.ServerDimension, error) {
	var (
		s         model.ServerDimension
		status    string
		attempted *time.Time
	)
	err := t.ex.queryRow(ctx, t.stmts.selectServer, serverID).Scan(
		&s.ServerID, &s.Name, &s.Host, &s.Location, &s.Country, &s.IP, &s.Port,
		&s.Latitude, &s.Longitude, &s.ISP, &status, &attempted,
		&s.FirstSeenUTC, &s.LastSeenUTC,
	)
	if err != nil {
		if t.ex.isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "%s: get server %d", t.d.name, serverID)
	}
	s.GeoStatus = model.GeoStatus(status)
	if attempted != nil {
		a := attempted.UTC()
		s.GeoAttemptedUTC = &a
	}
	s.FirstSeenUTC = s.FirstSeenUTC.UTC()
	s.LastSeenUTC = s.LastSeenUTC.UTC()
	return &s, nil
}

func (t *warehouseTx) UpsertServer(ctx context.Context, srv model.ServerDimension, now time.Time) (bool, error) {
	now = now.UTC()
	var status *string
	if srv.GeoStatus != "" {
		s := string(srv.GeoStatus)
		status = &s
	}
	attempted := utcPtr(srv.GeoAttemptedUTC)

	n, err := t.ex.exec(ctx, t.stmts.updateServer,
		srv.Name, srv.Host, srv.Location, srv.Country, srv.IP, srv.Port, srv.ISP,
		srv.Latitude, srv.Longitude, status, attempted, now, srv.ServerID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "%s: update server %d", t.d.name, srv.ServerID)
	}
	if n > 0 {
		return false, nil
	}

	insertStatus := string(model.GeoStatusPending)
	if status != nil {
		insertStatus = *status
	}
	if _, err := t.ex.exec(ctx, t.stmts.insertServer,
		srv.ServerID, srv.Name, srv.Host, srv.Location, srv.Country, srv.IP, srv.Port,
		srv.Latitude, srv.Longitude, srv.ISP, insertStatus, attempted, now, now,
	); err != nil {
		return false, eris.Wrapf(err, "%s: insert server %d", t.d.name, srv.ServerID)
	}
	return true, nil
}

func (t *warehouseTx) InsertResult(ctx context.Context, res model.ResultMetadata) (bool, error) {
	n, err := t.ex.exec(ctx, t.stmts.insertResult,
		res.ResultID, res.URL, res.Persisted, res.MeasuredAtUTC.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "%s: insert result %s", t.d.name, res.ResultID)
	}
	return n > 0, nil
}

func (t *warehouseTx) InsertFact(ctx context.Context, f model.SpeedFact, dedupe bool) (bool, error) {
	args := []any{
		f.ResultID, f.ServerID, f.MeasuredAtUTC.UTC(), f.DownloadMbps,
		f.UploadMbps, f.LatencyMs, f.JitterMs, f.PacketLossPct,
	}
	query := t.stmts.insertFact
	if dedupe {
		query = t.stmts.insertFactNX
		args = append(args, f.ResultID)
	}
	n, err := t.ex.exec(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "%s: insert fact %s", t.d.name, f.ResultID)
	}
	return n > 0, nil
}

// localWallClock drops the zone so the column holds the local wall clock.
func localWallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
