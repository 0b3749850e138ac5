package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/speedtrack/internal/config"
	"github.com/sells-group/speedtrack/internal/ingest"
	"github.com/sells-group/speedtrack/internal/store"
	"github.com/sells-group/speedtrack/internal/timedim"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "cmd.db")},
		Speedtest: config.SpeedtestConfig{BinPath: "speedtest", TimeoutSecs: 60},
		Geo:       config.GeoConfig{Retry: "never"},
		Calendar:  config.CalendarConfig{Timezone: "Africa/Maseru", Country: "LS"},
		Ingest:    config.IngestConfig{DedupeFacts: true},
		Schedule:  config.ScheduleConfig{Cron: "@every 1h"},
		Dashboard: config.DashboardConfig{DefaultDays: 7, ISPPromiseMbps: 35},
		Log:       config.LogConfig{Level: "info", Format: "json"},
	}
}

// offlinePipeline ingests saved reports only; geolocation is disabled.
func offlinePipeline(t *testing.T, wh store.Warehouse) *ingest.Pipeline {
	t.Helper()
	resolver, err := timedim.NewResolverFor("Africa/Maseru", "LS", "")
	require.NoError(t, err)
	return ingest.NewPipeline(nil, ingest.NewWriter(wh, resolver, ingest.NewEnricher(nil, ingest.RetryNever)))
}

func openTestWarehouse(t *testing.T, c *config.Config) store.Warehouse {
	t.Helper()
	wh, err := openWarehouse(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })
	return wh
}

func reportJSON(resultID, timestamp string, bandwidth int64) []byte {
	return []byte(fmt.Sprintf(`{
	"type": "result",
	"timestamp": %q,
	"ping": {"jitter": 1.8, "latency": 18.4},
	"download": {"bandwidth": %d},
	"upload": {"bandwidth": 2500000},
	"packetLoss": 0,
	"isp": "Vodacom Lesotho",
	"server": {"id": 4851, "host": "speedtest.vcl.co.ls", "port": 8080, "name": "Vodacom Lesotho",
		"location": "Maseru", "country": "Lesotho", "ip": "196.11.80.4"},
	"result": {"id": %q, "url": "https://www.speedtest.net/result/c/%s", "persisted": true}
}`, timestamp, bandwidth, resultID, resultID))
}
