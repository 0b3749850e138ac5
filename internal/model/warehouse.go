package model

import "time"

// GeoStatus records the outcome of the last geolocation attempt for a server.
type GeoStatus string

const (
	GeoStatusPending  GeoStatus = "pending"
	GeoStatusEnriched GeoStatus = "enriched"
	GeoStatusFailed   GeoStatus = "failed"   // transient: timeout, 429, 5xx, network
	GeoStatusRejected GeoStatus = "rejected" // permanent: API-level error or 4xx
	GeoStatusSkipped  GeoStatus = "skipped"  // no address to look up
)

// Retryable reports whether a later sighting may reasonably try again.
func (s GeoStatus) Retryable() bool {
	return s == GeoStatusFailed || s == GeoStatusPending
}

// SpeedFact is one row of internet_speeds.
type SpeedFact struct {
	MeasuredAtUTC time.Time `json:"measured_at_utc"`
	DownloadMbps  float64   `json:"download_mbps"`
	UploadMbps    float64   `json:"upload_mbps"`
	LatencyMs     float64   `json:"latency_ms"`
	JitterMs      *float64  `json:"jitter_ms,omitempty"`
	PacketLossPct *float64  `json:"packet_loss_pct,omitempty"`
	ResultID      string    `json:"result_id"`
	ServerID      int64     `json:"server_id"`
}

// ServerDimension is one row of servers.
type ServerDimension struct {
	ServerID        int64      `json:"server_id"`
	Name            string     `json:"server_name"`
	Host            string     `json:"server_host"`
	Location        string     `json:"server_location"`
	Country         string     `json:"server_country"`
	IP              string     `json:"server_ip"`
	Port            int        `json:"server_port"`
	Latitude        *float64   `json:"server_latitude,omitempty"`
	Longitude       *float64   `json:"server_longitude,omitempty"`
	ISP             string     `json:"isp"`
	GeoStatus       GeoStatus  `json:"geo_status"`
	GeoAttemptedUTC *time.Time `json:"geo_attempted_utc,omitempty"`
	FirstSeenUTC    time.Time  `json:"first_seen_utc"`
	LastSeenUTC     time.Time  `json:"last_seen_utc"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (s ServerDimension) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// ResultMetadata is one row of result_metadata.
type ResultMetadata struct {
	ResultID      string    `json:"result_id"`
	URL           *string   `json:"result_url,omitempty"`
	Persisted     bool      `json:"result_persisted"`
	MeasuredAtUTC time.Time `json:"measured_at_utc"`
}

// TimeDimension is one row of time_metadata. All calendar attributes are
// derived from TimeID in the configured local zone.
type TimeDimension struct {
	TimeID        time.Time `json:"time_id"`
	LocalTime     time.Time `json:"local_tz"`
	DateKey       int       `json:"date_key"`
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	MonthName     string    `json:"month_name"`
	Day           int       `json:"day"`
	DayOfWeek     int       `json:"day_of_week"`
	DayOfWeekName string    `json:"day_of_week_name"`
	WeekOfYear    int       `json:"week_of_year"`
	Quarter       int       `json:"quarter"`
	Hour          int       `json:"hour"`
	IsWeekend     bool      `json:"is_weekend"`
	IsHoliday     bool      `json:"is_holiday"`
}

// Observation is a transformed measurement ready for the warehouse.
type Observation struct {
	Fact   SpeedFact       `json:"fact"`
	Server ServerDimension `json:"server"`
	Result ResultMetadata  `json:"result"`
}
