package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/speedtrack/internal/model"
	"github.com/sells-group/speedtrack/internal/store"
	"github.com/sells-group/speedtrack/internal/timedim"
	"github.com/sells-group/speedtrack/pkg/geoip"
)

// --- Geolocation Mock ---

type mockGeoClient struct {
	mock.Mock
}

func (m *mockGeoClient) Lookup(ctx context.Context, ip string) (*geoip.Location, error) {
	args := m.Called(ctx, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geoip.Location), args.Error(1)
}

// --- Source Mock ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Measure(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// --- Helpers ---

func newTestWarehouse(t *testing.T) *store.SQLiteStore {
	t.Helper()
	wh, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { wh.Close() })
	require.NoError(t, wh.Migrate(context.Background()))
	return wh
}

func maseruResolver(t *testing.T) *timedim.Resolver {
	t.Helper()
	r, err := timedim.NewResolverFor("Africa/Maseru", "LS", "")
	require.NoError(t, err)
	return r
}

func reportJSON(resultID string, serverID int64, timestamp string, bandwidth int64) []byte {
	return []byte(fmt.Sprintf(`{
	"type": "result",
	"timestamp": %q,
	"ping": {"jitter": 1.8, "latency": 18.4},
	"download": {"bandwidth": %d},
	"upload": {"bandwidth": 2500000},
	"packetLoss": 0,
	"isp": "Vodacom Lesotho",
	"server": {"id": %d, "host": "speedtest.vcl.co.ls", "port": 8080, "name": "Vodacom Lesotho",
		"location": "Maseru", "country": "Lesotho", "ip": "196.11.80.4"},
	"result": {"id": %q, "url": "https://www.speedtest.net/result/c/%s", "persisted": true}
}`, timestamp, bandwidth, serverID, resultID, resultID))
}

func observation(resultID string, serverID int64, at time.Time) *model.Observation {
	return &model.Observation{
		Fact: model.SpeedFact{
			MeasuredAtUTC: at,
			DownloadMbps:  100,
			UploadMbps:    20,
			LatencyMs:     18.4,
			ResultID:      resultID,
			ServerID:      serverID,
		},
		Server: model.ServerDimension{
			ServerID:  serverID,
			Name:      "Vodacom Lesotho",
			Host:      "speedtest.vcl.co.ls",
			Location:  "Maseru",
			Country:   "Lesotho",
			IP:        "196.11.80.4",
			Port:      8080,
			ISP:       "Vodacom Lesotho",
			GeoStatus: model.GeoStatusPending,
		},
		Result: model.ResultMetadata{ResultID: resultID, Persisted: true, MeasuredAtUTC: at},
	}
}

func loadServer(t *testing.T, wh store.Warehouse, id int64) *model.ServerDimension {
	t.Helper()
	var srv *model.ServerDimension
	require.NoError(t, wh.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		srv, err = tx.GetServer(context.Background(), id)
		return err
	}))
	return srv
}

func f64(v float64) *float64 { return &v }
