package service

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worktime/internal/logging"
)

func TestBuildSpecs(t *testing.T) {
	spec, err := buildDailySpec("09:30")
	require.NoError(t, err)
	assert.Equal(t, "0 30 9 * * *", spec)

	_, err = buildDailySpec("9")
	assert.Error(t, err)
	_, err = buildDailySpec("24:00")
	assert.Error(t, err)

	spec, err = buildWeeklySpec(time.Sunday, 23, 59)
	require.NoError(t, err)
	assert.Equal(t, "0 59 23 * * 0", spec)

	_, err = buildWeeklySpec(time.Weekday(7), 0, 0)
	assert.Error(t, err)
	_, err = buildWeeklySpec(time.Monday, 0, 60)
	assert.Error(t, err)

	spec, err = buildHoursSpec([]int{9, 13, 18})
	require.NoError(t, err)
	assert.Equal(t, "0 0 9,13,18 * * *", spec)

	_, err = buildHoursSpec(nil)
	assert.Error(t, err)
	_, err = buildHoursSpec([]int{-1})
	assert.Error(t, err)
}

func TestScheduleIntervalRejectsNonPositive(t *testing.T) {
	s := NewSchedulerService(time.UTC, logging.Discard())
	_, err := s.ScheduleInterval(0, func() {})
	assert.Error(t, err)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := NewSchedulerService(time.UTC, logging.Discard())
	var running, runs atomic.Int32
	var overlapped atomic.Bool
	release := make(chan struct{})

	_, err := s.ScheduleInterval(time.Second, func() {
		if running.Add(1) > 1 {
			overlapped.Store(true)
		}
		defer running.Add(-1)
		runs.Add(1)
		<-release
	})
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	// Let at least one more tick fire while the first run is blocked.
	time.Sleep(1500 * time.Millisecond)
	stopped := s.cron.Stop()
	close(release)
	<-stopped.Done()

	assert.False(t, overlapped.Load())
	assert.EqualValues(t, 1, runs.Load())
}
