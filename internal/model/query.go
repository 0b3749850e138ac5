package model

import "time"

// Metric selects which measurement the dashboard focuses on.
type Metric string

const (
	MetricDownload Metric = "download_mbps"
	MetricUpload   Metric = "upload_mbps"
	MetricLatency  Metric = "latency_ms"
)

// Metrics lists the selectable metrics in display order.
var Metrics = []Metric{MetricDownload, MetricUpload, MetricLatency}

// ParseMetric validates a metric selector. An empty string selects download.
func ParseMetric(s string) (Metric, bool) {
	if s == "" {
		return MetricDownload, true
	}
	for _, m := range Metrics {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Unit returns the display unit of the metric.
func (m Metric) Unit() string {
	if m == MetricLatency {
		return "ms"
	}
	return "Mbps"
}

// HigherIsBetter is true for throughput and false for latency.
func (m Metric) HigherIsBetter() bool {
	return m != MetricLatency
}

// HourlyMedian aggregates all facts measured within one UTC hour.
type HourlyMedian struct {
	HourBucket         time.Time `json:"hour_bucket"`
	MedianDownloadMbps float64   `json:"median_download_mbps"`
	MedianUploadMbps   float64   `json:"median_upload_mbps"`
	MedianLatencyMs    float64   `json:"median_latency_ms"`
	Samples            int       `json:"samples"`
}

// Value returns the median for the given metric.
func (h HourlyMedian) Value(m Metric) float64 {
	switch m {
	case MetricUpload:
		return h.MedianUploadMbps
	case MetricLatency:
		return h.MedianLatencyMs
	default:
		return h.MedianDownloadMbps
	}
}

// Measurement is a fact row joined with its server for display.
type Measurement struct {
	SpeedFact
	ServerName     string `json:"server_name"`
	ServerLocation string `json:"server_location"`
	ISP            string `json:"isp"`
}

// TimeBounds is the measured_at_utc range present in the warehouse.
type TimeBounds struct {
	Min time.Time `json:"min_dt"`
	Max time.Time `json:"max_dt"`
}
