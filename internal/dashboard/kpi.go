package dashboard

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/speedtrack/internal/model"
)

// Trend classifies a change by whether it is an improvement for the metric.
type Trend string

const (
	TrendGood Trend = "good"
	TrendBad  Trend = "bad"
	TrendFlat Trend = "flat"
)

// KPI summarises the latest hourly median of one metric.
type KPI struct {
	Metric     model.Metric `json:"metric"`
	Label      string       `json:"label"`
	Unit       string       `json:"unit"`
	HourBucket time.Time    `json:"hour_bucket"`
	Actual     float64      `json:"actual"`
	Change     *float64     `json:"change"`
	ChangePct  *float64     `json:"change_pct"`
	Trend      Trend        `json:"trend"`
}

// ComputeKPI reads the last bucket as the actual value and compares it with
// the bucket before. Percent change is nil when the previous value is zero.
// It reports false when medians is empty.
func ComputeKPI(medians []model.HourlyMedian, m model.Metric) (*KPI, bool) {
	if len(medians) == 0 {
		return nil, false
	}
	last := medians[len(medians)-1]
	k := &KPI{
		Metric:     m,
		Label:      MetricLabel(m),
		Unit:       m.Unit(),
		HourBucket: last.HourBucket,
		Actual:     last.Value(m),
		Trend:      TrendFlat,
	}
	if len(medians) < 2 {
		return k, true
	}

	prev := medians[len(medians)-2].Value(m)
	change := k.Actual - prev
	k.Change = &change
	if prev != 0 {
		pct := change / prev * 100
		k.ChangePct = &pct
	}
	k.Trend = trendOf(change, m)
	return k, true
}

func trendOf(change float64, m model.Metric) Trend {
	switch {
	case change == 0:
		return TrendFlat
	case (change > 0) == m.HigherIsBetter():
		return TrendGood
	default:
		return TrendBad
	}
}

// MetricLabel renders a metric name for display, e.g. "Download Mbps".
func MetricLabel(m model.Metric) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(m), "_", " "))
}

// FormatValue renders latency with one decimal and throughput with two.
func FormatValue(m model.Metric, v float64) string {
	if m == model.MetricLatency {
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// FormatChange renders a signed change, or "N/A" when absent.
func FormatChange(m model.Metric, v *float64) string {
	if v == nil {
		return "N/A"
	}
	if m == model.MetricLatency {
		return fmt.Sprintf("%+.1f", *v)
	}
	return fmt.Sprintf("%+.2f", *v)
}

// FormatPct renders a signed percentage, or "-" when absent.
func FormatPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}
