// Package transform turns a raw speedtest report into warehouse rows.
package transform

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/speedtrack/internal/model"
)

// BytesPerSecToMbps converts the CLI's bytes/sec bandwidth to megabits/sec.
func BytesPerSecToMbps(bps int64) float64 {
	return float64(bps) * 8 / 1_000_000
}

// NormalizeIP strips whitespace and stray quote characters the CLI
// occasionally leaves around the server address.
func NormalizeIP(ip string) string {
	return strings.Trim(strings.TrimSpace(ip), `'" `)
}

// ParseTimestamp parses an ISO-8601 timestamp into UTC. A trailing "Z" and
// explicit offsets are both accepted; a timestamp without any zone is
// taken to be UTC. The result is truncated to microseconds, the warehouse
// timestamp precision, so every row keyed by the instant agrees on it.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05.999999999", s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC().Truncate(time.Microsecond), nil
}

// Transform decodes raw CLI output and maps it to an Observation.
func Transform(raw []byte) (*model.Observation, error) {
	var rep model.MeasurementReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, eris.Wrapf(model.ErrMalformedReport, "transform: decode: %v", err)
	}
	return FromReport(rep)
}

func missing(field string) error {
	return eris.Wrapf(model.ErrMalformedReport, "transform: missing %s", field)
}

// FromReport maps a decoded report to an Observation. Required fields are
// the timestamp, both bandwidths, ping latency, server id and result id;
// any of them absent or invalid yields an error wrapping
// model.ErrMalformedReport and no observation.
func FromReport(rep model.MeasurementReport) (*model.Observation, error) {
	if rep.Timestamp == nil {
		return nil, missing("timestamp")
	}
	measuredAt, err := ParseTimestamp(*rep.Timestamp)
	if err != nil {
		return nil, eris.Wrapf(model.ErrMalformedReport, "transform: timestamp %q: %v", *rep.Timestamp, err)
	}

	if rep.Download == nil || rep.Download.Bandwidth == nil {
		return nil, missing("download.bandwidth")
	}
	if rep.Upload == nil || rep.Upload.Bandwidth == nil {
		return nil, missing("upload.bandwidth")
	}
	if *rep.Download.Bandwidth < 0 || *rep.Upload.Bandwidth < 0 {
		return nil, eris.Wrap(model.ErrMalformedReport, "transform: negative bandwidth")
	}
	if rep.Ping == nil || rep.Ping.Latency == nil {
		return nil, missing("ping.latency")
	}
	if rep.Server == nil || rep.Server.ID == nil {
		return nil, missing("server.id")
	}
	if rep.Result == nil || rep.Result.ID == nil || strings.TrimSpace(*rep.Result.ID) == "" {
		return nil, missing("result.id")
	}

	resultID := strings.TrimSpace(*rep.Result.ID)
	srv := rep.Server

	obs := &model.Observation{
		Fact: model.SpeedFact{
			MeasuredAtUTC: measuredAt,
			DownloadMbps:  BytesPerSecToMbps(*rep.Download.Bandwidth),
			UploadMbps:    BytesPerSecToMbps(*rep.Upload.Bandwidth),
			LatencyMs:     *rep.Ping.Latency,
			JitterMs:      rep.Ping.Jitter,
			PacketLossPct: rep.PacketLoss,
			ResultID:      resultID,
			ServerID:      *srv.ID,
		},
		Server: model.ServerDimension{
			ServerID:  *srv.ID,
			Name:      deref(srv.Name),
			Host:      deref(srv.Host),
			Location:  deref(srv.Location),
			Country:   deref(srv.Country),
			IP:        NormalizeIP(deref(srv.IP)),
			ISP:       deref(rep.ISP),
			GeoStatus: model.GeoStatusPending,
		},
		Result: model.ResultMetadata{
			ResultID:      resultID,
			URL:           rep.Result.URL,
			MeasuredAtUTC: measuredAt,
		},
	}
	if srv.Port != nil {
		obs.Server.Port = *srv.Port
	}
	if rep.Result.Persisted != nil {
		obs.Result.Persisted = *rep.Result.Persisted
	}
	return obs, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
