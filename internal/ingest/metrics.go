package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CycleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedtrack_ingest_cycles_total", Help: "Ingestion cycles by outcome.",
	}, []string{"outcome"})

	EnrichmentLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedtrack_enrichment_lookups_total", Help: "Server geolocation lookups by resulting status.",
	}, []string{"status"})

	DownloadMbps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speedtrack_download_mbps",
		Help:    "Download throughput of ingested measurements.",
		Buckets: []float64{1, 5, 10, 20, 35, 50, 75, 100, 200, 500},
	})
)

// Cycle outcome labels.
const (
	OutcomeOK                = "ok"
	OutcomeSourceUnavailable = "source_unavailable"
	OutcomeMalformedReport   = "malformed_report"
	OutcomeWriteFailed       = "write_failed"
	OutcomeError             = "error"
)
