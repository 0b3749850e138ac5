package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/speedtrack/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresWithPool(mock), mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS time_metadata`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_Commits(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "time_metadata" .* ON CONFLICT \(time_id\) DO NOTHING`).
		WithArgs(anyArgs(len(timeColumns))...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	var inserted bool
	err := s.InTx(context.Background(), func(tx Tx) error {
		var err error
		inserted, err = tx.InsertTimeDimension(context.Background(), timeRow(at))
		return err
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "result_metadata"`).
		WithArgs(anyArgs(len(resultColumns))...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.InsertResult(context.Background(), model.ResultMetadata{ResultID: "abc"})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert result abc")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertTimeDimension_Existing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "time_metadata"`).
		WithArgs(anyArgs(len(timeColumns))...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	var inserted bool
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		var err error
		inserted, err = tx.InsertTimeDimension(context.Background(), timeRow(time.Now()))
		return err
	}))
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetServer_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "servers" WHERE server_id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		srv, err := tx.GetServer(context.Background(), 99)
		assert.Nil(t, srv)
		return err
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertServer_InsertsWhenUpdateMisses(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "servers" SET .*COALESCE\(server_latitude, \$8\)`).
		WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO "servers"`).
		WithArgs(int64(1234), "Econet Telecom Lesotho", "speedtest.etl.co.ls", "Maseru", "Lesotho",
			"196.11.80.4", 8080, pgxmock.AnyArg(), pgxmock.AnyArg(), "Vodacom Lesotho",
			"pending", pgxmock.AnyArg(), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	var inserted bool
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		var err error
		inserted, err = tx.UpsertServer(context.Background(), testServer(1234), now)
		return err
	}))
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertServer_UpdatesExisting(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "servers" SET`).
		WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	var inserted bool
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		var err error
		inserted, err = tx.UpsertServer(context.Background(), testServer(1234), time.Now())
		return err
	}))
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFact(t *testing.T) {
	tests := []struct {
		name   string
		dedupe bool
		query  string
		args   int
	}{
		{"append", false, `INSERT INTO "internet_speeds" \(.*\) VALUES`, len(factColumns)},
		{"dedupe", true, `WHERE NOT EXISTS \(SELECT 1 FROM "internet_speeds" WHERE result_id = \$9\)`, len(factColumns) + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockPostgresStore(t)

			mock.ExpectBegin()
			mock.ExpectExec(tt.query).
				WithArgs(anyArgs(tt.args)...).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
			mock.ExpectCommit()

			require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
				_, err := tx.InsertFact(context.Background(), model.SpeedFact{ResultID: "r1", ServerID: 1}, tt.dedupe)
				return err
			}))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_HourlyMedians(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	rows := mock.NewRows([]string{"hour_bucket", "median_download_mbps", "median_upload_mbps", "median_latency_ms", "samples"}).
		AddRow(start.Add(10*time.Hour), 80.0, 20.0, 20.0, 3).
		AddRow(start.Add(11*time.Hour), 15.0, 2.0, 40.0, 2)
	mock.ExpectQuery(`percentile_cont\(0.5\) WITHIN GROUP \(ORDER BY download_mbps\)`).
		WithArgs(start, end).
		WillReturnRows(rows)

	got, err := s.HourlyMedians(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 80.0, got[0].MedianDownloadMbps)
	assert.Equal(t, 2, got[1].Samples)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HourlyMedians_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM internet_speeds`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"hour_bucket", "median_download_mbps", "median_upload_mbps", "median_latency_ms", "samples"}))

	got, err := s.HourlyMedians(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestMeasurement_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ORDER BY f.measured_at_utc DESC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LatestMeasurement(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RawRange_Limit(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	cols := []string{"result_id", "server_id", "measured_at_utc", "download_mbps", "upload_mbps",
		"latency_ms", "jitter_ms", "packet_loss_pct", "server_name", "server_location", "isp"}
	jitter := 1.5
	mock.ExpectQuery(`WHERE f.measured_at_utc >= \$1 AND f.measured_at_utc < \$2 ORDER BY f.measured_at_utc DESC LIMIT \$3`).
		WithArgs(start, end, 5).
		WillReturnRows(mock.NewRows(cols).
			AddRow("r1", int64(1234), start.Add(10*time.Minute), 100.0, 20.0, 15.0, &jitter, (*float64)(nil), "ETL", "Maseru", "Vodacom"))

	got, err := s.RawRange(context.Background(), start, end, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ResultID)
	assert.Equal(t, "Maseru", got[0].ServerLocation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectPing().WillReturnError(errors.New("down"))

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}
