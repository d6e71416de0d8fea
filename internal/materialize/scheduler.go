package materialize

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule runs the materializer once a day at 06:00.
const DefaultSchedule = "0 6 * * *"

// Scheduler drives the Runner from a cron expression. One Scheduler runs a
// single loop; ticks never overlap because the loop waits for each cycle to
// finish before sleeping again, and the Runner's own mutex covers manual
// triggers.
type Scheduler struct {
	runner   *Runner
	schedule cron.Schedule
	log      zerolog.Logger
}

// NewScheduler parses a standard 5-field cron expression. An invalid
// expression is logged and replaced with DefaultSchedule; startup never
// fails on a bad schedule.
func NewScheduler(runner *Runner, expr string, log zerolog.Logger) *Scheduler {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		log.Warn().Err(err).Str("schedule", expr).Str("fallback", DefaultSchedule).
			Msg("invalid materialization schedule, using default")
		schedule, _ = cron.ParseStandard(DefaultSchedule)
	}
	return &Scheduler{runner: runner, schedule: schedule, log: log}
}

// Run blocks until ctx is cancelled, invoking one materialization cycle at
// each scheduled activation. A cycle error is logged and the loop waits for
// the next activation.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.schedule.Next(time.Now())
		s.log.Info().Time("next_run", next).Msg("materializer sleeping until next activation")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("materializer stopped")
			return
		case <-timer.C:
		}

		result, err := s.runner.RunCycle(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("materialization cycle failed")
			continue
		}
		s.log.Info().
			Int("processed", len(result.Processed)).
			Int("errors", len(result.Errors)).
			Msg("materialization cycle finished")
	}
}
