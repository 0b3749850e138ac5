package main

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/speedtrack/internal/config"
	"github.com/sells-group/speedtrack/internal/dashboard"
	"github.com/sells-group/speedtrack/internal/model"
	"github.com/sells-group/speedtrack/internal/store"
)

var (
	dashboardMetric string
	dashboardStart  string
	dashboardEnd    string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print hourly medians and the latest KPI for a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		wh, err := openWarehouse(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = wh.Close() }()

		return runDashboard(ctx, cmd.OutOrStdout(), wh, cfg, time.Now())
	},
}

func runDashboard(ctx context.Context, out io.Writer, q store.Querier, c *config.Config, now time.Time) error {
	metric, ok := model.ParseMetric(dashboardMetric)
	if !ok {
		return eris.Errorf("unknown metric %q (want download_mbps, upload_mbps or latency_ms)", dashboardMetric)
	}

	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return eris.Wrap(err, "load dashboard timezone")
	}

	rng, err := dashboard.ParseRange(dashboardStart, dashboardEnd, now, loc, c.Dashboard.DefaultDays)
	if err != nil {
		return err
	}

	medians, err := q.HourlyMedians(ctx, rng.Start, rng.End)
	if err != nil {
		return err
	}

	dashboard.WriteReport(out, rng, medians, dashboard.ReportOptions{
		Metric:         metric,
		Location:       loc,
		ISPPromiseMbps: c.Dashboard.ISPPromiseMbps,
	})
	return nil
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardMetric, "metric", string(model.MetricDownload), "metric to focus on (download_mbps, upload_mbps, latency_ms)")
	dashboardCmd.Flags().StringVar(&dashboardStart, "start", "", "first local day, YYYY-MM-DD (default: last N days)")
	dashboardCmd.Flags().StringVar(&dashboardEnd, "end", "", "last local day, YYYY-MM-DD, inclusive")
	rootCmd.AddCommand(dashboardCmd)
}
