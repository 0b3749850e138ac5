package ingest

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/speedtrack/internal/model"
	"github.com/sells-group/speedtrack/internal/store"
	"github.com/sells-group/speedtrack/internal/timedim"
)

// WriteResult reports which rows a write created.
type WriteResult struct {
	TimeInserted   bool
	ServerInserted bool
	ResultInserted bool
	FactInserted   bool
	Enrichment     EnrichOutcome
}

// Writer stores observations in the warehouse, one transaction each.
type Writer struct {
	wh       store.Warehouse
	resolver *timedim.Resolver
	enricher *Enricher
	clock    clockwork.Clock
	dedupe   bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithClock sets the clock used for server watermarks.
func WithClock(c clockwork.Clock) WriterOption {
	return func(w *Writer) { w.clock = c }
}

// WithFactDedupe controls whether a fact is skipped when its result_id is
// already stored.
func WithFactDedupe(dedupe bool) WriterOption {
	return func(w *Writer) { w.dedupe = dedupe }
}

// NewWriter creates a Writer. Facts are deduplicated by default.
func NewWriter(wh store.Warehouse, resolver *timedim.Resolver, enricher *Enricher, opts ...WriterOption) *Writer {
	w := &Writer{
		wh:       wh,
		resolver: resolver,
		enricher: enricher,
		clock:    clockwork.NewRealClock(),
		dedupe:   true,
	}
	for _, o := range opts {
		o(w)
	}
	if w.enricher == nil {
		w.enricher = NewEnricher(nil, RetryNever)
	}
	return w
}

// Write upserts the time, server, result and fact rows for obs. Either all
// of them commit or none do; failures wrap model.ErrWriteFailed.
func (w *Writer) Write(ctx context.Context, obs *model.Observation) (*WriteResult, error) {
	if obs == nil {
		return nil, eris.Wrap(model.ErrWriteFailed, "ingest: nil observation")
	}
	log := zap.L().With(
		zap.String("component", "writer"),
		zap.String("result_id", obs.Result.ResultID),
		zap.Int64("server_id", obs.Server.ServerID),
	)

	var res *WriteResult
	err := w.wh.InTx(ctx, func(tx store.Tx) error {
		r := &WriteResult{}
		now := w.clock.Now().UTC()
		var err error

		if r.TimeInserted, err = tx.InsertTimeDimension(ctx, w.resolver.Resolve(obs.Fact.MeasuredAtUTC)); err != nil {
			return err
		}

		known, err := tx.GetServer(ctx, obs.Server.ServerID)
		if err != nil {
			return err
		}
		r.Enrichment = w.enricher.Enrich(ctx, obs.Server, known)

		srv := obs.Server
		srv.Latitude, srv.Longitude = r.Enrichment.Latitude, r.Enrichment.Longitude
		srv.GeoStatus = r.Enrichment.Status
		srv.GeoAttemptedUTC = nil
		if r.Enrichment.Attempted {
			srv.GeoAttemptedUTC = &now
		}
		if r.ServerInserted, err = tx.UpsertServer(ctx, srv, now); err != nil {
			return err
		}

		if r.ResultInserted, err = tx.InsertResult(ctx, obs.Result); err != nil {
			return err
		}
		if r.FactInserted, err = tx.InsertFact(ctx, obs.Fact, w.dedupe); err != nil {
			return err
		}

		res = r
		return nil
	})
	if err != nil {
		log.Error("ingest: write rolled back", zap.Error(err))
		return nil, eris.Wrapf(model.ErrWriteFailed, "ingest: write result %s: %v", obs.Result.ResultID, err)
	}

	log.Info("ingest: observation stored",
		zap.Bool("new_time", res.TimeInserted),
		zap.Bool("new_server", res.ServerInserted),
		zap.Bool("new_result", res.ResultInserted),
		zap.Bool("new_fact", res.FactInserted),
		zap.String("geo_status", string(res.Enrichment.Status)),
	)
	return res, nil
}
