// Package ingest runs measurement cycles: measure, transform, enrich and
// store one observation at a time.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/speedtrack/internal/model"
	"github.com/sells-group/speedtrack/internal/speedtest"
	"github.com/sells-group/speedtrack/internal/transform"
)

// Outcome summarises one ingestion cycle.
type Outcome struct {
	CycleID     string             `json:"cycle_id"`
	Observation *model.Observation `json:"observation,omitempty"`
	Write       *WriteResult       `json:"-"`
	Elapsed     time.Duration      `json:"elapsed"`
}

// Pipeline wires the measurement source to the warehouse writer.
type Pipeline struct {
	source speedtest.Source
	writer *Writer
}

// NewPipeline creates a Pipeline. source may be nil when only saved
// reports are ingested.
func NewPipeline(source speedtest.Source, writer *Writer) *Pipeline {
	return &Pipeline{source: source, writer: writer}
}

// RunOnce performs one full cycle. Source and transform failures abort the
// cycle before anything is written.
func (p *Pipeline) RunOnce(ctx context.Context) (*Outcome, error) {
	cycleID := uuid.New().String()
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("cycle_id", cycleID))

	if p.source == nil {
		return nil, eris.Wrap(model.ErrSourceUnavailable, "ingest: no measurement source configured")
	}

	log.Info("ingest: starting measurement")
	start := time.Now()
	raw, err := p.source.Measure(ctx)
	if err != nil {
		CycleOutcomes.WithLabelValues(outcomeLabel(err)).Inc()
		log.Error("ingest: measurement failed", zap.Error(err))
		return nil, err
	}
	return p.ingest(ctx, log, cycleID, start, raw)
}

// IngestReport stores a report captured earlier, e.g. a saved CLI output.
func (p *Pipeline) IngestReport(ctx context.Context, raw []byte) (*Outcome, error) {
	cycleID := uuid.New().String()
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("cycle_id", cycleID))
	return p.ingest(ctx, log, cycleID, time.Now(), raw)
}

func (p *Pipeline) ingest(ctx context.Context, log *zap.Logger, cycleID string, start time.Time, raw []byte) (*Outcome, error) {
	obs, err := transform.Transform(raw)
	if err != nil {
		CycleOutcomes.WithLabelValues(outcomeLabel(err)).Inc()
		log.Error("ingest: report rejected", zap.Error(err))
		return nil, err
	}

	log = log.With(zap.String("result_id", obs.Result.ResultID), zap.Time("measured_at_utc", obs.Fact.MeasuredAtUTC))
	wr, err := p.writer.Write(ctx, obs)
	if err != nil {
		CycleOutcomes.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	CycleOutcomes.WithLabelValues(OutcomeOK).Inc()
	DownloadMbps.Observe(obs.Fact.DownloadMbps)

	out := &Outcome{CycleID: cycleID, Observation: obs, Write: wr, Elapsed: time.Since(start)}
	log.Info("ingest: cycle complete",
		zap.Float64("download_mbps", obs.Fact.DownloadMbps),
		zap.Float64("upload_mbps", obs.Fact.UploadMbps),
		zap.Float64("latency_ms", obs.Fact.LatencyMs),
		zap.Duration("elapsed", out.Elapsed),
	)
	return out, nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, model.ErrSourceUnavailable):
		return OutcomeSourceUnavailable
	case errors.Is(err, model.ErrMalformedReport):
		return OutcomeMalformedReport
	case errors.Is(err, model.ErrWriteFailed):
		return OutcomeWriteFailed
	default:
		return OutcomeError
	}
}
