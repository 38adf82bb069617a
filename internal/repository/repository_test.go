package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"worktime/internal/clock"
	"worktime/internal/logging"
	"worktime/internal/model"
)

var defaultGoals = model.Goals{DailyMinutes: 480, WeeklyMinutes: 2400}

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return NewRepositories(db)
}

func mustUser(t *testing.T, repos *Repositories, id int64, name string) {
	t.Helper()
	_, err := repos.Users.Upsert(context.Background(), id, name, defaultGoals)
	require.NoError(t, err)
}

func endedSession(t *testing.T, repos *Repositories, userID int64, start time.Time, minutes int) model.Session {
	t.Helper()
	ctx := context.Background()
	s := model.Session{UserID: userID, StartTime: start, Status: model.SessionActive}
	require.NoError(t, repos.Sessions.Create(ctx, &s))
	ok, err := repos.Sessions.Close(ctx, s.ID, start.Add(time.Duration(minutes)*time.Minute), minutes, false)
	require.NoError(t, err)
	require.True(t, ok)
	return s
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t,
		"a.db?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=1",
		withPragmas("a.db"))
	got := withPragmas("file:a.db?_busy_timeout=100")
	assert.Equal(t, "file:a.db?_busy_timeout=100&_journal_mode=WAL&_txlock=immediate&_foreign_keys=1", got)
	assert.Contains(t, got, "_busy_timeout=100")
	assert.NotContains(t, got, "_busy_timeout=5000")
}

func TestUserUpsert(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	u, err := repos.Users.Upsert(ctx, 7, "ann", defaultGoals)
	require.NoError(t, err)
	assert.Equal(t, 480, u.DailyGoalMinutes)

	u, err = repos.Users.Upsert(ctx, 7, "anna", model.Goals{DailyMinutes: 1, WeeklyMinutes: 1})
	require.NoError(t, err)
	assert.Equal(t, "anna", u.Username)
	assert.Equal(t, 480, u.DailyGoalMinutes, "defaults only apply on create")

	require.NoError(t, repos.Users.SetGoal(ctx, 7, model.GoalWeekly, 600))
	u, err = repos.Users.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 600, u.WeeklyGoalMinutes)

	assert.Error(t, repos.Users.SetGoal(ctx, 99, model.GoalDaily, 60))

	missing, err := repos.Users.FindByID(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOneActiveSessionPerUser(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	mustUser(t, repos, 1, "a")

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repos.Sessions.Create(ctx, &model.Session{UserID: 1, StartTime: now, Status: model.SessionActive}))

	err := repos.Sessions.Create(ctx, &model.Session{UserID: 1, StartTime: now, Status: model.SessionActive})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	n, err := repos.Sessions.CountByStatus(ctx, model.SessionActive)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSessionCloseOnlyOnce(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	mustUser(t, repos, 1, "a")

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s := model.Session{UserID: 1, StartTime: start, Status: model.SessionActive}
	require.NoError(t, repos.Sessions.Create(ctx, &s))

	ok, err := repos.Sessions.Close(ctx, s.ID, start.Add(time.Hour), 60, false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Sessions.Close(ctx, s.ID, start.Add(2*time.Hour), 120, true)
	require.NoError(t, err)
	assert.False(t, ok)

	active, err := repos.Sessions.FindActive(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, active)

	history, err := repos.Sessions.ListEnded(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 60, history[0].Minutes())
	assert.False(t, history[0].AutoEnded)
}

func TestSessionQueries(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	mustUser(t, repos, 1, "a")
	mustUser(t, repos, 2, "b")

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	endedSession(t, repos, 1, day.Add(8*time.Hour), 30)
	endedSession(t, repos, 1, day.Add(10*time.Hour), 45)
	endedSession(t, repos, 2, day.Add(-2*time.Hour), 90)
	require.NoError(t, repos.Sessions.Create(ctx, &model.Session{UserID: 2, StartTime: day.Add(11 * time.Hour), Status: model.SessionActive}))

	history, err := repos.Sessions.ListEnded(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 45, history[0].Minutes(), "most recent first")

	to := day.AddDate(0, 0, 1)
	totals, err := repos.Sessions.EndedTotals(ctx, nil, &day, &to)
	require.NoError(t, err)
	assert.Equal(t, model.Totals{Minutes: 75, Sessions: 2}, totals)

	uid := int64(2)
	totals, err = repos.Sessions.EndedTotals(ctx, &uid, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Totals{Minutes: 90, Sessions: 1}, totals)

	byUser, err := repos.Sessions.EndedMinutesByUser(ctx, day, to)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 75}, byUser)

	long, err := repos.Sessions.ListActiveStartedBefore(ctx, day.Add(11*time.Hour))
	require.NoError(t, err)
	assert.Len(t, long, 1)
	long, err = repos.Sessions.ListActiveStartedBefore(ctx, day.Add(11*time.Hour-time.Second))
	require.NoError(t, err)
	assert.Empty(t, long)

	ids, err := repos.Sessions.ActiveUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	n, err := repos.Sessions.CountStartedBetween(ctx, day, to)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestRollupUpsertIsAdditive(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	mustUser(t, repos, 1, "a")

	require.NoError(t, repos.Rollups.AddWeekly(ctx, 1, "2025-06-02", 60))
	require.NoError(t, repos.Rollups.AddWeekly(ctx, 1, "2025-06-02", 15))
	require.NoError(t, repos.Rollups.AddMonthly(ctx, 1, "2025-06-01", 60))

	w, err := repos.Rollups.FindWeekly(ctx, 1, "2025-06-02")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 75, w.TotalMinutes)
	assert.Equal(t, 2, w.SessionsCount)

	m, err := repos.Rollups.FindMonthly(ctx, 1, "2025-06-01")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 1, m.SessionsCount)

	none, err := repos.Rollups.FindWeekly(ctx, 1, "2025-06-09")
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := repos.Rollups.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRollupRankingTies(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	mustUser(t, repos, 1, "a")
	mustUser(t, repos, 2, "b")
	mustUser(t, repos, 3, "c")

	require.NoError(t, repos.Rollups.AddWeekly(ctx, 2, "2025-06-02", 60))
	require.NoError(t, repos.Rollups.AddWeekly(ctx, 1, "2025-06-02", 60))
	require.NoError(t, repos.Rollups.AddWeekly(ctx, 3, "2025-06-02", 90))
	require.NoError(t, repos.Rollups.AddWeekly(ctx, 1, "2025-05-26", 500))

	top, err := repos.Rollups.TopWeekly(ctx, "2025-06-02", 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{top[0].UserID, top[1].UserID, top[2].UserID})
	assert.Equal(t, "c", top[0].Username)

	top, err = repos.Rollups.TopWeekly(ctx, "2025-06-02", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestTopFromSessions(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	mustUser(t, repos, 1, "a")
	mustUser(t, repos, 2, "b")

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	endedSession(t, repos, 2, day.Add(time.Hour), 40)
	endedSession(t, repos, 1, day.Add(2*time.Hour), 40)
	endedSession(t, repos, 1, day.AddDate(0, 0, -3), 100)

	top, err := repos.Rollups.TopFromSessions(ctx, nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(1), top[0].UserID)
	assert.Equal(t, 140, top[0].TotalMinutes)
	assert.Equal(t, 2, top[0].SessionsCount)

	to := day.AddDate(0, 0, 1)
	top, err = repos.Rollups.TopFromSessions(ctx, &day, &to, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].UserID, "tie goes to the earlier first session")
}

func TestDeleteWeek(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	mustUser(t, repos, 1, "a")
	mustUser(t, repos, 2, "b")

	require.NoError(t, repos.Rollups.AddWeekly(ctx, 1, "2025-06-02", 10))
	require.NoError(t, repos.Rollups.AddWeekly(ctx, 2, "2025-06-02", 10))
	require.NoError(t, repos.Rollups.AddWeekly(ctx, 1, "2025-05-26", 10))

	n, err := repos.Rollups.DeleteWeek(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repos.Rollups.DeleteWeek(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Zero(t, n)

	prev, err := repos.Rollups.FindWeekly(ctx, 1, "2025-05-26")
	require.NoError(t, err)
	assert.NotNil(t, prev)

	require.NoError(t, repos.Rollups.DeleteAll(ctx))
	total, err := repos.Rollups.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestWithinTxRollsBack(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	mustUser(t, repos, 1, "a")

	err := repos.WithinTx(ctx, func(tx *Repositories) error {
		if err := tx.Rollups.AddWeekly(ctx, 1, "2025-06-02", 10); err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	require.ErrorIs(t, err, gorm.ErrInvalidData)

	w, err := repos.Rollups.FindWeekly(ctx, 1, "2025-06-02")
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestSnapshot(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	mustUser(t, repos, 1, "a")

	dir := filepath.Join(t.TempDir(), "backups")
	clk := clock.NewFake(time.Date(2025, 6, 2, 14, 30, 5, 0, time.UTC))
	b := NewSQLiteBackup(repos.DB(), dir, clk)

	first, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "worktime_backup_20250602_143005.db"), first.Path)
	assert.Positive(t, first.SizeBytes)

	second, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Path, second.Path)

	_, err = os.Stat(second.Path)
	assert.NoError(t, err)

	size, err := SizeBytes(ctx, repos.DB())
	require.NoError(t, err)
	assert.Positive(t, size)
}
