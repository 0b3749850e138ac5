package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/speedtrack/internal/model"
	"github.com/sells-group/speedtrack/internal/resilience"
	"github.com/sells-group/speedtrack/pkg/geoip"
)

// RetryPolicy decides whether a server already in the warehouse gets
// another geolocation attempt.
type RetryPolicy string

const (
	// RetryNever looks a server up only on its first sighting.
	RetryNever RetryPolicy = "never"
	// RetryTransient retries servers whose last attempt failed transiently.
	RetryTransient RetryPolicy = "transient"
	// RetryAlways retries any server still lacking coordinates.
	RetryAlways RetryPolicy = "always"
)

// ParseRetryPolicy validates a geo.retry setting. Empty means never.
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch RetryPolicy(s) {
	case "", RetryNever:
		return RetryNever, nil
	case RetryTransient, RetryAlways:
		return RetryPolicy(s), nil
	}
	return "", eris.Errorf("ingest: unknown geo retry policy %q", s)
}

// EnrichOutcome is the result of one enrichment decision. Status is empty
// when no attempt was made and the stored status should stand.
type EnrichOutcome struct {
	Attempted bool
	Status    model.GeoStatus
	Latitude  *float64
	Longitude *float64
	// Err wraps model.ErrEnrichmentFailed when a lookup was made and failed.
	Err error
}

// Enricher adds coordinates to servers via a geolocation client.
type Enricher struct {
	client geoip.Client
	policy RetryPolicy
}

// NewEnricher creates an Enricher. A nil client disables lookups.
func NewEnricher(client geoip.Client, policy RetryPolicy) *Enricher {
	if policy == "" {
		policy = RetryNever
	}
	return &Enricher{client: client, policy: policy}
}

// ShouldLookup applies the retry policy to the stored server state. A nil
// known server is a first sighting.
func (e *Enricher) ShouldLookup(known *model.ServerDimension) bool {
	if known == nil {
		return true
	}
	if known.HasCoordinates() {
		return false
	}
	switch e.policy {
	case RetryAlways:
		return true
	case RetryTransient:
		return known.GeoStatus.Retryable()
	default:
		return false
	}
}

// Enrich looks up srv's IP when the policy allows it. It never returns an
// error; failures are reported in the outcome and degrade to nil
// coordinates.
func (e *Enricher) Enrich(ctx context.Context, srv model.ServerDimension, known *model.ServerDimension) EnrichOutcome {
	log := zap.L().With(
		zap.String("component", "enrich"),
		zap.Int64("server_id", srv.ServerID),
		zap.String("ip", srv.IP),
	)

	if !e.ShouldLookup(known) {
		log.Debug("enrich: server already known, skipping lookup")
		return EnrichOutcome{}
	}
	if e.client == nil {
		log.Debug("enrich: no geolocation client configured")
		return EnrichOutcome{Status: skippedIfNew(known)}
	}
	if srv.IP == "" {
		log.Info("enrich: server has no address, skipping lookup")
		EnrichmentLookups.WithLabelValues(string(model.GeoStatusSkipped)).Inc()
		return EnrichOutcome{Status: skippedIfNew(known)}
	}

	start := time.Now()
	loc, err := e.client.Lookup(ctx, srv.IP)
	log = log.With(zap.Duration("elapsed", time.Since(start)))

	if err == nil {
		lat, lon := loc.Latitude, loc.Longitude
		log.Info("enrich: server located", zap.Float64("latitude", lat), zap.Float64("longitude", lon))
		EnrichmentLookups.WithLabelValues(string(model.GeoStatusEnriched)).Inc()
		return EnrichOutcome{Attempted: true, Status: model.GeoStatusEnriched, Latitude: &lat, Longitude: &lon}
	}

	status := classifyLookupError(err)
	EnrichmentLookups.WithLabelValues(string(status)).Inc()

	var apiErr *geoip.APIError
	var statusErr *geoip.StatusError
	switch {
	case errors.Is(err, geoip.ErrRateLimited):
		log.Warn("enrich: rate limited by geolocation service", zap.Error(err))
	case errors.As(err, &apiErr):
		log.Warn("enrich: geolocation refused", zap.String("reason", apiErr.Reason), zap.String("message", apiErr.Message))
	case errors.As(err, &statusErr):
		log.Warn("enrich: unexpected geolocation status", zap.Int("status", statusErr.Code))
	default:
		log.Warn("enrich: geolocation lookup failed", zap.Error(err))
	}

	return EnrichOutcome{
		Attempted: true,
		Status:    status,
		Err:       eris.Wrapf(model.ErrEnrichmentFailed, "ingest: enrich server %d: %v", srv.ServerID, err),
	}
}

// classifyLookupError maps a lookup error to the stored status. Transient
// failures and unusable bodies may succeed later; refusals will not.
func classifyLookupError(err error) model.GeoStatus {
	switch {
	case errors.Is(err, geoip.ErrNoAddress):
		return model.GeoStatusSkipped
	case resilience.IsTransient(err), errors.Is(err, geoip.ErrMalformedResponse):
		return model.GeoStatusFailed
	default:
		return model.GeoStatusRejected
	}
}

func skippedIfNew(known *model.ServerDimension) model.GeoStatus {
	if known == nil {
		return model.GeoStatusSkipped
	}
	return ""
}
