package service

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerService wraps cron-based jobs. Every job is recovered from
// panics and skipped while a previous run is still going.
type SchedulerService struct {
	cron *cron.Cron
}

func NewSchedulerService(loc *time.Location, log *slog.Logger) *SchedulerService {
	if log == nil {
		log = slog.Default()
	}
	logger := cronLogger{log: log.With("component", "cron")}
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *SchedulerService) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleWeekly registers a job on day at hour:minute.
func (s *SchedulerService) ScheduleWeekly(day time.Weekday, hour, minute int, job func()) (cron.EntryID, error) {
	spec, err := buildWeeklySpec(day, hour, minute)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleHours registers a job at the top of each listed hour.
func (s *SchedulerService) ScheduleHours(hours []int, job func()) (cron.EntryID, error) {
	spec, err := buildHoursSpec(hours)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	// Convert to cron spec: every N seconds.
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries reports how many jobs are registered.
func (s *SchedulerService) Entries() int {
	return len(s.cron.Entries())
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

func buildWeeklySpec(day time.Weekday, hour, minute int) (string, error) {
	if day < time.Sunday || day > time.Saturday {
		return "", fmt.Errorf("invalid weekday %d", day)
	}
	if hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %d", hour)
	}
	if minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %d", minute)
	}
	return fmt.Sprintf("0 %d %d * * %d", minute, hour, int(day)), nil
}

func buildHoursSpec(hours []int) (string, error) {
	if len(hours) == 0 {
		return "", fmt.Errorf("no hours given")
	}
	parts := make([]string, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			return "", fmt.Errorf("invalid hour %d", h)
		}
		parts = append(parts, strconv.Itoa(h))
	}
	return fmt.Sprintf("0 0 %s * * *", strings.Join(parts, ",")), nil
}

// cronLogger routes cron's own messages (skips, recovered panics) to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if msg == "skip" {
		l.log.Warn("job still running, skipped", keysAndValues...)
		return
	}
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
