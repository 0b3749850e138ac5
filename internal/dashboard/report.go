package dashboard

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/sells-group/speedtrack/internal/model"
)

// ReportOptions configures the terminal report.
type ReportOptions struct {
	Metric         model.Metric
	Location       *time.Location
	ISPPromiseMbps float64
}

// WriteReport prints the KPI block and the hourly median table, newest
// bucket first.
func WriteReport(w io.Writer, rng Range, medians []model.HourlyMedian, opts ReportOptions) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	metric := opts.Metric
	if metric == "" {
		metric = model.MetricDownload
	}

	fmt.Fprintln(w, "Internet Speed Dashboard")
	fmt.Fprintf(w, "Range: %s to %s (%s)\n",
		rng.Start.In(loc).Format(DateLayout),
		rng.End.In(loc).AddDate(0, 0, -1).Format(DateLayout),
		loc)

	k, ok := ComputeKPI(medians, metric)
	if !ok {
		fmt.Fprintln(w, "No data available for selected range")
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s (%s)\n", k.Label, k.Unit)
	fmt.Fprintf(w, "  Actual:   %s\n", FormatValue(metric, k.Actual))
	fmt.Fprintf(w, "  Change:   %s (%s)\n", FormatChange(metric, k.Change), k.Trend)
	fmt.Fprintf(w, "  %% Change: %s relative to previous hour\n", FormatPct(k.ChangePct))
	if opts.ISPPromiseMbps > 0 {
		latest := medians[len(medians)-1].MedianDownloadMbps
		verdict := "below"
		if latest >= opts.ISPPromiseMbps {
			verdict = "at or above"
		}
		fmt.Fprintf(w, "  Download %s Mbps is %s the ISP promise of %s Mbps\n",
			FormatValue(model.MetricDownload, latest), verdict, FormatValue(model.MetricDownload, opts.ISPPromiseMbps))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Hourly Median Internet Speeds")
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Hour", "Download (Mbps)", "Upload (Mbps)", "Latency (ms)", "Samples"})

	rows := slices.Clone(medians)
	slices.Reverse(rows)
	for _, m := range rows {
		table.Append([]string{
			m.HourBucket.In(loc).Format("2006-01-02 03:04 PM"),
			FormatValue(model.MetricDownload, m.MedianDownloadMbps),
			FormatValue(model.MetricUpload, m.MedianUploadMbps),
			FormatValue(model.MetricLatency, m.MedianLatencyMs),
			fmt.Sprintf("%d", m.Samples),
		})
	}
	table.Render()
}
