// Package scheduler triggers runs on cron schedules. One entry per mode; a
// tick is skipped when a run of the same mode is still queued or executing,
// so a slow window never stacks identical runs behind itself.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"fedflow/pkg/contracts/domain"
)

// Runner is the slice of the run service the scheduler drives.
type Runner interface {
	// TriggerMode enqueues a run of mode with its mode-derived window.
	TriggerMode(ctx context.Context, mode domain.Mode) error
	// ModeActive reports whether a run of mode is queued or executing.
	ModeActive(mode domain.Mode) bool
}

// Config carries the cron specs, one per recurring mode. Empty specs disable
// their mode.
type Config struct {
	DailySpec   string
	WeeklySpec  string
	MonthlySpec string
	Timezone    string
}

// Scheduler owns the cron runner and its entries.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  *slog.Logger
	entries map[domain.Mode]cron.EntryID
}

// New validates every configured spec and registers the entries. The cron
// runner stays stopped until Start.
func New(cfg Config, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler: nil runner")
	}
	if logger == nil {
		logger = slog.Default()
	}

	location := time.UTC
	if cfg.Timezone != "" {
		var err error
		location, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid timezone %q: %w", cfg.Timezone, err)
		}
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(location)),
		runner:  runner,
		logger:  logger.With(slog.String("component", "scheduler")),
		entries: make(map[domain.Mode]cron.EntryID),
	}

	specs := []struct {
		mode domain.Mode
		spec string
	}{
		{domain.ModeDaily, cfg.DailySpec},
		{domain.ModeWeekly, cfg.WeeklySpec},
		{domain.ModeMonthly, cfg.MonthlySpec},
	}
	for _, entry := range specs {
		if entry.spec == "" {
			continue
		}
		mode := entry.mode
		id, err := s.cron.AddFunc(entry.spec, func() { s.tick(mode) })
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid %s spec %q: %w", mode, entry.spec, err)
		}
		s.entries[mode] = id
	}
	if len(s.entries) == 0 {
		return nil, fmt.Errorf("scheduler: no schedules configured")
	}

	return s, nil
}

// Start begins firing entries at their next activation.
func (s *Scheduler) Start() {
	s.cron.Start()
	for mode := range s.entries {
		s.logger.Info("schedule_registered",
			slog.String("mode", string(mode)),
			slog.Time("next_run", s.NextRun(mode)))
	}
}

// Stop halts scheduling and waits for an in-flight tick to return. Runs the
// ticks already enqueued keep executing; only new activations stop.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// NextRun returns the next activation for the mode, zero when the mode has no
// entry.
func (s *Scheduler) NextRun(mode domain.Mode) time.Time {
	id, ok := s.entries[mode]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Modes returns the modes with registered entries.
func (s *Scheduler) Modes() []domain.Mode {
	modes := make([]domain.Mode, 0, len(s.entries))
	for mode := range s.entries {
		modes = append(modes, mode)
	}
	return modes
}

func (s *Scheduler) tick(mode domain.Mode) {
	ctx := context.Background()

	if s.runner.ModeActive(mode) {
		s.logger.WarnContext(ctx, "schedule_tick_skipped",
			slog.String("mode", string(mode)),
			slog.String("reason", "previous run of this mode still active"))
		return
	}

	if err := s.runner.TriggerMode(ctx, mode); err != nil {
		s.logger.ErrorContext(ctx, "schedule_trigger_failed",
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()))
		return
	}

	s.logger.InfoContext(ctx, "schedule_triggered",
		slog.String("mode", string(mode)),
		slog.Time("next_run", s.NextRun(mode)))
}
