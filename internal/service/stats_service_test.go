package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	none, err := f.stats.UserStats(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, none)

	f.work(t, 1, 4*time.Hour)
	f.work(t, 1, 2*time.Hour)
	_, err = f.sessions.StartSession(ctx, 1, "ann")
	require.NoError(t, err)
	f.clock.Advance(10*time.Hour + 5*time.Minute)

	st, err := f.stats.UserStats(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 360, st.Week.Minutes)
	assert.Equal(t, 2, st.Week.Sessions)
	assert.Equal(t, 360, st.Month.Minutes)
	assert.Equal(t, 360, st.Overall.Minutes)
	assert.InDelta(t, 15.0, st.WeeklyPercent, 1e-9)
	require.NotNil(t, st.Active)
	assert.Equal(t, 605, st.ActiveMinutes)
	assert.True(t, st.NearLimit)
}

func TestNearLimit(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.stats.NearLimit(9*time.Hour+59*time.Minute))
	assert.True(t, f.stats.NearLimit(10*time.Hour))
}

func TestSystemStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.work(t, 1, time.Hour)
	_, err := f.sessions.StartSession(ctx, 2, "")
	require.NoError(t, err)

	st, err := f.stats.System(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Users)
	assert.EqualValues(t, 1, st.ActiveSessions)
	assert.EqualValues(t, 1, st.EndedSessions)
	assert.EqualValues(t, 2, st.SessionsToday)
	assert.EqualValues(t, 2, st.RollupRows)
	assert.Positive(t, st.DatabaseBytes)
}

func TestDailyReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Set(monday.AddDate(0, 0, -1))
	f.work(t, 1, 3*time.Hour)
	f.clock.Set(monday)
	f.work(t, 1, time.Hour)
	f.work(t, 2, 2*time.Hour)
	_, err := f.sessions.StartSession(ctx, 3, "")
	require.NoError(t, err)

	r, err := f.stats.DailyReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", r.Day)
	assert.Equal(t, 180, r.Today.Minutes)
	assert.Equal(t, 2, r.Today.Sessions)
	assert.Equal(t, 180, r.Yesterday.Minutes)
	assert.EqualValues(t, 1, r.Active)
	assert.Equal(t, []int64{2, 1}, ids(r.Top))
}
