package ingest

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Scheduler runs pipeline cycles on a cron schedule. Cycles never overlap;
// a tick that arrives while a cycle is still running is skipped.
type Scheduler struct {
	pipeline *Pipeline
	spec     string
	cron     *cron.Cron
}

// NewScheduler validates spec (standard five-field cron or descriptors such
// as "@every 1h") and creates a Scheduler.
func NewScheduler(p *Pipeline, spec string) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, eris.Wrapf(err, "ingest: bad schedule %q", spec)
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &Scheduler{pipeline: p, spec: spec, cron: c}, nil
}

// Run blocks until ctx is cancelled. With immediate set, one cycle runs
// before the first tick. Cycle failures are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, immediate bool) error {
	log := zap.L().With(zap.String("component", "scheduler"), zap.String("schedule", s.spec))

	if _, err := s.cron.AddFunc(s.spec, func() { s.cycle(ctx, log) }); err != nil {
		return eris.Wrapf(err, "ingest: schedule %q", s.spec)
	}
	if immediate {
		s.cycle(ctx, log)
	}

	s.cron.Start()
	log.Info("scheduler started")
	<-ctx.Done()

	// Wait for an in-flight cycle to finish.
	<-s.cron.Stop().Done()
	log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) cycle(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.pipeline.RunOnce(ctx); err != nil {
		log.Warn("scheduler: cycle failed, waiting for next tick", zap.Error(err))
	}
}
