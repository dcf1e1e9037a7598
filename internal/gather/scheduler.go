package gather

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the gather job on a cron schedule in daemon mode.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// NewScheduler creates an idle scheduler. Schedules use standard five-field
// cron syntax, e.g. "30 21 * * 1-5" for 21:30 UTC on weekdays, after the US
// market close.
func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{cron: cron.New(), log: log.With("component", "scheduler")}
}

// Add registers the gatherer to run on the given schedule.
func (s *Scheduler) Add(spec string, g *DailyBarGatherer) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := g.Gather(context.Background()); err != nil {
			s.log.Error("scheduled gather failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	s.log.Info("gather scheduled", "spec", spec)
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// any in-flight job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
}
