// Package scheduler triggers engine cycles on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

// CycleRunner runs one complete engine cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (types.CycleSnapshot, error)
}

// Scheduler manages the cron entries that drive the engine.
type Scheduler struct {
	cron   *cron.Cron
	runner CycleRunner
	ctx    context.Context
	logger zerolog.Logger

	runs     atomic.Int64
	failures atomic.Int64
}

// New creates a scheduler. Specs use the six-field format with seconds. Overlapping triggers are
// skipped rather than queued.
func New(ctx context.Context, runner CycleRunner) *Scheduler {
	log := logger.GetForComponent("scheduler")
	adapter := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		runner: runner,
		ctx:    ctx,
		logger: log,
	}
}

// RegisterCycle schedules RunCycle on spec.
func (s *Scheduler) RegisterCycle(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runCycle); err != nil {
		return fmt.Errorf("register cycle task %q: %w", spec, err)
	}
	s.logger.Info().Str("spec", spec).Msg("Cycle task registered")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("entries", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Int64("runs", s.runs.Load()).Int64("failures", s.failures.Load()).Msg("Scheduler stopped")
}

// RunNow executes a cycle immediately, outside the schedule.
func (s *Scheduler) RunNow() {
	s.runCycle()
}

// Runs returns the number of cycles triggered and how many of them failed.
func (s *Scheduler) Runs() (int64, int64) {
	return s.runs.Load(), s.failures.Load()
}

func (s *Scheduler) runCycle() {
	if s.ctx.Err() != nil {
		return
	}
	s.runs.Add(1)
	snapshot, err := s.runner.RunCycle(s.ctx)
	if err != nil {
		s.failures.Add(1)
		s.logger.Warn().Err(err).Str("class", types.ErrorClass(err)).Int("cycle", snapshot.CycleNumber).Msg("Scheduled cycle failed")
		return
	}
	s.logger.Info().Int("cycle", snapshot.CycleNumber).Int64("durationMs", snapshot.DurationMs).Msg("Scheduled cycle completed")
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
