package model

// MeasurementReport is the JSON document printed by the speedtest CLI with
// --format json. Pointer fields distinguish absent values from zeros.
type MeasurementReport struct {
	Type       string          `json:"type"`
	Timestamp  *string         `json:"timestamp"`
	Ping       *PingReport     `json:"ping"`
	Download   *TransferReport `json:"download"`
	Upload     *TransferReport `json:"upload"`
	PacketLoss *float64        `json:"packetLoss"`
	ISP        *string         `json:"isp"`
	Server     *ServerReport   `json:"server"`
	Result     *ResultReport   `json:"result"`
}

// PingReport holds idle latency statistics in milliseconds.
type PingReport struct {
	Jitter  *float64 `json:"jitter"`
	Latency *float64 `json:"latency"`
	Low     *float64 `json:"low"`
	High    *float64 `json:"high"`
}

// TransferReport holds one direction of a throughput test.
type TransferReport struct {
	Bandwidth *int64 `json:"bandwidth"` // bytes/sec
	Bytes     *int64 `json:"bytes"`
	Elapsed   *int64 `json:"elapsed"` // ms
}

// ServerReport describes the test server chosen by the CLI.
type ServerReport struct {
	ID       *int64  `json:"id"`
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Country  *string `json:"country"`
	IP       *string `json:"ip"`
}

// ResultReport identifies the published result on speedtest.net.
type ResultReport struct {
	ID        *string `json:"id"`
	URL       *string `json:"url"`
	Persisted *bool   `json:"persisted"`
}
