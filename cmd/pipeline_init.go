package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/speedtrack/internal/config"
	"github.com/sells-group/speedtrack/internal/ingest"
	"github.com/sells-group/speedtrack/internal/speedtest"
	"github.com/sells-group/speedtrack/internal/store"
	"github.com/sells-group/speedtrack/internal/timedim"
	"github.com/sells-group/speedtrack/pkg/geoip"
)

// pipelineEnv holds the warehouse and the ingestion pipeline used by the
// ingest and watch commands.
type pipelineEnv struct {
	Store    store.Warehouse
	Pipeline *ingest.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline opens the warehouse and wires the runner, geolocation client,
// time resolver and writer. Callers should defer env.Close().
func initPipeline(ctx context.Context, c *config.Config) (*pipelineEnv, error) {
	policy, err := ingest.ParseRetryPolicy(c.Geo.Retry)
	if err != nil {
		return nil, err
	}

	resolver, err := timedim.NewResolverFor(c.Calendar.Timezone, c.Calendar.Country, c.Calendar.ExtraHolidaysFile)
	if err != nil {
		return nil, eris.Wrap(err, "init time resolver")
	}

	wh, err := openWarehouse(ctx, c)
	if err != nil {
		return nil, err
	}

	geo := geoip.NewClient(
		geoip.WithBaseURL(c.Geo.BaseURL),
		geoip.WithTimeout(c.Geo.Timeout()),
		geoip.WithRateLimit(c.Geo.RatePerSec),
	)

	writer := ingest.NewWriter(wh, resolver, ingest.NewEnricher(geo, policy),
		ingest.WithFactDedupe(c.Ingest.DedupeFacts),
	)
	runner := speedtest.NewRunner(c.Speedtest.BinPath, c.Speedtest.Timeout(), c.Speedtest.ServerID)

	return &pipelineEnv{
		Store:    wh,
		Pipeline: ingest.NewPipeline(runner, writer),
	}, nil
}
