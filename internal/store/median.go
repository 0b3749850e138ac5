package store

import (
	"sort"
	"time"

	"github.com/sells-group/speedtrack/internal/model"
)

type hourSample struct {
	at                        time.Time
	download, upload, latency float64
}

// bucketMedians groups samples by UTC hour and takes the median of each
// metric, matching percentile_cont(0.5). Buckets are returned oldest first.
func bucketMedians(samples []hourSample) []model.HourlyMedian {
	type acc struct {
		download, upload, latency []float64
	}
	buckets := map[time.Time]*acc{}
	var order []time.Time
	for _, s := range samples {
		key := s.at.UTC().Truncate(time.Hour)
		a, ok := buckets[key]
		if !ok {
			a = &acc{}
			buckets[key] = a
			order = append(order, key)
		}
		a.download = append(a.download, s.download)
		a.upload = append(a.upload, s.upload)
		a.latency = append(a.latency, s.latency)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	out := make([]model.HourlyMedian, 0, len(order))
	for _, key := range order {
		a := buckets[key]
		out = append(out, model.HourlyMedian{
			HourBucket:         key,
			MedianDownloadMbps: median(a.download),
			MedianUploadMbps:   median(a.upload),
			MedianLatencyMs:    median(a.latency),
			Samples:            len(a.download),
		})
	}
	return out
}

// median interpolates between the two middle values for even counts.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
