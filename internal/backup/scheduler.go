package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a five-field cron expression or a descriptor such
// as "@daily". An empty schedule is valid and disables backups.
func ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs Snapshot on a cron schedule.
type Scheduler struct {
	snap   *Snapshotter
	spec   string
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler validates spec and prepares a scheduler. It does not start it.
func NewScheduler(snap *Snapshotter, spec string, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		return nil, fmt.Errorf("backup: empty schedule")
	}
	if err := ValidateSchedule(spec); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		snap:   snap,
		spec:   spec,
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger,
	}, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running snapshot to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.snap.Snapshot(ctx); err != nil {
			s.logger.Error("scheduled backup failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("backup: schedule: %w", err)
	}
	s.cron.Start()
	s.logger.Info("backup scheduler started",
		slog.String("schedule", s.spec),
		slog.String("dir", s.snap.Dir()),
		slog.Time("next_run", s.Next()))

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("backup scheduler stopped")
	return nil
}

// Next returns the next scheduled run, or the zero time before Run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
