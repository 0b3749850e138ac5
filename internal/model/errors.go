package model

import "github.com/rotisserie/eris"

// Ingestion failure taxonomy. Producers wrap these with context via eris;
// callers classify with errors.Is.
var (
	// ErrSourceUnavailable: the speedtest command is missing, exited
	// non-zero, timed out, or printed nothing. Aborts the cycle.
	ErrSourceUnavailable = eris.New("measurement source unavailable")

	// ErrMalformedReport: the report is not JSON or lacks a required
	// field. Aborts the cycle.
	ErrMalformedReport = eris.New("malformed measurement report")

	// ErrEnrichmentFailed: the geolocation lookup did not produce
	// coordinates. Never aborts the cycle.
	ErrEnrichmentFailed = eris.New("server enrichment failed")

	// ErrWriteFailed: the warehouse transaction was rolled back.
	ErrWriteFailed = eris.New("warehouse write failed")
)
