package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"worktime/internal/clock"
	"worktime/internal/model"
	"worktime/internal/notify"
)

// BackupFunc writes a snapshot of the store and describes it.
type BackupFunc func(ctx context.Context) (model.Backup, error)

// Schedule holds the wall-clock settings for the periodic jobs.
type Schedule struct {
	WeeklyResetDay    time.Weekday
	WeeklyResetHour   int
	WeeklyResetMinute int
	BackupInterval    time.Duration
	ReminderHours     []int
	WatchdogInterval  time.Duration
	DailyReportTime   string // "HH:MM"; empty disables the admin digest
}

// JobService runs the background jobs: weekly reset, backup, reminder scan,
// daily admin report and the watchdog. Each run has its own failure boundary.
type JobService struct {
	rollups   *RollupService
	reminders *ReminderService
	watchdog  *WatchdogService
	stats     *StatsService
	backup    BackupFunc
	sink      notify.Sink
	clock     clock.Clock
	log       *slog.Logger
}

func NewJobService(rollups *RollupService, reminders *ReminderService, watchdog *WatchdogService, stats *StatsService, backup BackupFunc, sink notify.Sink, clk clock.Clock, log *slog.Logger) *JobService {
	if sink == nil {
		sink = notify.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return &JobService{
		rollups:   rollups,
		reminders: reminders,
		watchdog:  watchdog,
		stats:     stats,
		backup:    backup,
		sink:      sink,
		clock:     clk,
		log:       log,
	}
}

// WeeklyReset clears this week's rollups and announces how many users it touched.
func (j *JobService) WeeklyReset(ctx context.Context) (int64, error) {
	key := j.rollups.CurrentWeekKey()
	n, err := j.rollups.ResetCurrentWeek(ctx)
	if err != nil {
		return 0, err
	}
	j.emit(ctx, notify.WeeklyResetCompleted{WeekStart: key, UsersAffected: n})
	return n, nil
}

// Backup invokes the backup hook and announces the file it produced.
func (j *JobService) Backup(ctx context.Context) (model.Backup, error) {
	if j.backup == nil {
		return model.Backup{}, fmt.Errorf("%w: no backup hook configured", model.ErrBackupFailure)
	}
	b, err := j.backup(ctx)
	if err != nil {
		return model.Backup{}, fmt.Errorf("%w: %w", model.ErrBackupFailure, err)
	}
	j.log.Info("backup created", "path", b.Path, "size_bytes", b.SizeBytes)
	j.emit(ctx, notify.BackupCompleted{Path: b.Path, SizeBytes: b.SizeBytes})
	return b, nil
}

// ReminderScan emits a ReminderDue for every user behind on today's goal.
func (j *JobService) ReminderScan(ctx context.Context) ([]notify.ReminderDue, error) {
	due, err := j.reminders.Due(ctx, j.clock.Now())
	if err != nil {
		return nil, err
	}
	for _, r := range due {
		j.emit(ctx, r)
	}
	if len(due) > 0 {
		j.log.Info("reminders sent", "count", len(due))
	}
	return due, nil
}

// DailyReport builds today's summary and pushes it to the sinks.
func (j *JobService) DailyReport(ctx context.Context) (*notify.DailyReport, error) {
	report, err := j.stats.DailyReport(ctx)
	if err != nil {
		return nil, err
	}
	j.emit(ctx, *report)
	return report, nil
}

// Watchdog runs one watchdog tick.
func (j *JobService) Watchdog(ctx context.Context) (WatchdogResult, error) {
	return j.watchdog.Tick(ctx)
}

// Register schedules every job on sched. Jobs run with ctx.
func (j *JobService) Register(ctx context.Context, sched *SchedulerService, cfg Schedule) error {
	if _, err := sched.ScheduleWeekly(cfg.WeeklyResetDay, cfg.WeeklyResetHour, cfg.WeeklyResetMinute,
		j.guard(ctx, "weekly_reset", func(ctx context.Context) error {
			_, err := j.WeeklyReset(ctx)
			return err
		})); err != nil {
		return fmt.Errorf("schedule weekly reset: %w", err)
	}
	if _, err := sched.ScheduleInterval(cfg.BackupInterval,
		j.guard(ctx, "backup", func(ctx context.Context) error {
			_, err := j.Backup(ctx)
			return err
		})); err != nil {
		return fmt.Errorf("schedule backup: %w", err)
	}
	if len(cfg.ReminderHours) > 0 {
		if _, err := sched.ScheduleHours(cfg.ReminderHours,
			j.guard(ctx, "reminder_scan", func(ctx context.Context) error {
				_, err := j.ReminderScan(ctx)
				return err
			})); err != nil {
			return fmt.Errorf("schedule reminders: %w", err)
		}
	}
	if _, err := sched.ScheduleInterval(cfg.WatchdogInterval,
		j.guard(ctx, "watchdog", func(ctx context.Context) error {
			_, err := j.Watchdog(ctx)
			return err
		})); err != nil {
		return fmt.Errorf("schedule watchdog: %w", err)
	}
	if cfg.DailyReportTime != "" {
		if _, err := sched.ScheduleDaily(cfg.DailyReportTime,
			j.guard(ctx, "daily_report", func(ctx context.Context) error {
				_, err := j.DailyReport(ctx)
				return err
			})); err != nil {
			return fmt.Errorf("schedule daily report: %w", err)
		}
	}
	return nil
}

// guard turns fn into a cron job. Errors and panics are logged and
// reported as OperationFailed; the job stays scheduled either way.
func (j *JobService) guard(ctx context.Context, name string, fn func(context.Context) error) func() {
	return func() {
		start := time.Now()
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					j.log.Error("job panicked", "job", name, "panic", r, "stack", string(debug.Stack()))
				}
			}()
			return fn(ctx)
		}()
		if err != nil {
			j.log.Error("job failed", "job", name, "error", err)
			j.emit(ctx, notify.Failed(name, 0, err))
			return
		}
		j.log.Debug("job done", "job", name, "took", time.Since(start))
	}
}

func (j *JobService) emit(ctx context.Context, e notify.Event) {
	if err := j.sink.Notify(ctx, e); err != nil {
		j.log.Warn("notify", "kind", string(e.Kind()), "error", err)
	}
}
