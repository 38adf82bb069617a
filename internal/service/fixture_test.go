package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"worktime/internal/clock"
	"worktime/internal/logging"
	"worktime/internal/model"
	"worktime/internal/notify"
	"worktime/internal/repository"
)

// monday is 2025-06-02 09:00 UTC, the first day of an ISO week.
var monday = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

const maxSession = 12 * time.Hour

type fixture struct {
	repos     *repository.Repositories
	clock     *clock.Fake
	events    *notify.Recorder
	rollups   *RollupService
	sessions  *SessionService
	watchdog  *WatchdogService
	reminders *ReminderService
	stats     *StatsService
	jobs      *JobService
	backups   *repository.SQLiteBackup
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.Discard()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "worktime.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close(db) })

	f := &fixture{
		repos:  repository.NewRepositories(db),
		clock:  clock.NewFake(monday),
		events: &notify.Recorder{},
	}
	goals := model.Goals{DailyMinutes: 480, WeeklyMinutes: 2400}
	f.rollups = NewRollupService(f.repos, f.clock, time.UTC, log)
	f.sessions = NewSessionService(f.repos, f.rollups, f.clock, f.events, goals, log)
	f.watchdog = NewWatchdogService(f.repos.Sessions, f.sessions, f.clock, maxSession, log)
	f.reminders = NewReminderService(f.repos.Users, f.repos.Sessions, 0.8, time.UTC)
	f.stats = NewStatsService(f.repos, f.rollups, f.clock, maxSession)
	f.backups = repository.NewSQLiteBackup(db, filepath.Join(t.TempDir(), "backups"), f.clock)
	f.jobs = NewJobService(f.rollups, f.reminders, f.watchdog, f.stats, f.backups.Snapshot, f.events, f.clock, log)
	return f
}

// work runs one session of length d for the user and returns it.
func (f *fixture) work(t *testing.T, userID int64, d time.Duration) *model.Session {
	t.Helper()
	ctx := context.Background()
	started, err := f.sessions.StartSession(ctx, userID, "")
	require.NoError(t, err)
	require.True(t, started)
	f.clock.Advance(d)
	ended, err := f.sessions.EndSession(ctx, userID, false)
	require.NoError(t, err)
	require.NotNil(t, ended)
	return ended
}

func (f *fixture) weekly(t *testing.T, userID int64, day time.Time) *model.WeeklyRollup {
	t.Helper()
	row, err := f.rollups.Weekly(context.Background(), userID, day)
	require.NoError(t, err)
	return row
}

func (f *fixture) monthly(t *testing.T, userID int64, day time.Time) *model.MonthlyRollup {
	t.Helper()
	row, err := f.rollups.Monthly(context.Background(), userID, day)
	require.NoError(t, err)
	return row
}

func ids(standings []model.Standing) []int64 {
	out := make([]int64, 0, len(standings))
	for _, s := range standings {
		out = append(out, s.UserID)
	}
	return out
}
