package service

import (
	"context"
	"time"

	"worktime/internal/clock"
	"worktime/internal/model"
	"worktime/internal/notify"
	"worktime/internal/repository"
)

// limitWarning is how close to the limit a running session gets flagged.
const limitWarning = 2 * time.Hour

// UserStats is a personal summary.
type UserStats struct {
	User          model.User
	Week          model.Totals
	Month         model.Totals
	Overall       model.Totals
	WeeklyPercent float64
	Active        *model.Session
	ActiveMinutes int
	NearLimit     bool
}

// SystemStats is the admin view of the whole store.
type SystemStats struct {
	Users          int64
	ActiveSessions int64
	EndedSessions  int64
	SessionsToday  int64
	DatabaseBytes  int64
	RollupRows     int64
	GeneratedAt    time.Time
}

// StatsService builds read-only summaries.
type StatsService struct {
	repos   *repository.Repositories
	rollups *RollupService
	clock   clock.Clock
	limit   time.Duration
}

func NewStatsService(repos *repository.Repositories, rollups *RollupService, clk clock.Clock, limit time.Duration) *StatsService {
	return &StatsService{repos: repos, rollups: rollups, clock: clk, limit: limit}
}

// UserStats returns nil for a user who has never interacted.
func (s *StatsService) UserStats(ctx context.Context, userID int64) (*UserStats, error) {
	user, err := s.repos.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	if user == nil {
		return nil, nil
	}

	now := s.clock.Now()
	out := &UserStats{User: *user}

	week, err := s.rollups.Weekly(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if week != nil {
		out.Week = model.Totals{Minutes: week.TotalMinutes, Sessions: week.SessionsCount}
	}
	month, err := s.rollups.Monthly(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if month != nil {
		out.Month = model.Totals{Minutes: month.TotalMinutes, Sessions: month.SessionsCount}
	}
	if out.Overall, err = s.repos.Sessions.EndedTotals(ctx, &userID, nil, nil); err != nil {
		return nil, storeErr(err)
	}
	if user.WeeklyGoalMinutes > 0 {
		out.WeeklyPercent = float64(out.Week.Minutes) / float64(user.WeeklyGoalMinutes) * 100
	}

	active, err := s.repos.Sessions.FindActive(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	if active != nil {
		out.Active = active
		elapsed := active.Elapsed(now)
		out.ActiveMinutes = model.WholeMinutes(elapsed)
		out.NearLimit = s.NearLimit(elapsed)
	}
	return out, nil
}

// NearLimit reports whether a session running for elapsed is within two
// hours of the watchdog limit.
func (s *StatsService) NearLimit(elapsed time.Duration) bool {
	return s.limit > 0 && elapsed >= s.limit-limitWarning
}

// System gathers store-wide counters.
func (s *StatsService) System(ctx context.Context) (*SystemStats, error) {
	now := s.clock.Now()
	from := model.DayStart(now.In(s.rollups.Location()))
	out := &SystemStats{GeneratedAt: now}

	err := s.each(
		func() (err error) { out.Users, err = s.repos.Users.Count(ctx); return },
		func() (err error) { out.ActiveSessions, err = s.repos.Sessions.CountByStatus(ctx, model.SessionActive); return },
		func() (err error) { out.EndedSessions, err = s.repos.Sessions.CountByStatus(ctx, model.SessionEnded); return },
		func() (err error) {
			out.SessionsToday, err = s.repos.Sessions.CountStartedBetween(ctx, from, from.AddDate(0, 0, 1))
			return
		},
		func() (err error) { out.RollupRows, err = s.repos.Rollups.Count(ctx); return },
		func() (err error) { out.DatabaseBytes, err = repository.SizeBytes(ctx, s.repos.DB()); return },
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DailyReport summarizes today and yesterday plus today's top five.
func (s *StatsService) DailyReport(ctx context.Context) (*notify.DailyReport, error) {
	today := model.DayStart(s.clock.Now().In(s.rollups.Location()))
	tomorrow := today.AddDate(0, 0, 1)
	yesterday := today.AddDate(0, 0, -1)
	out := &notify.DailyReport{Day: model.PeriodKey(today)}

	err := s.each(
		func() (err error) { out.Today, err = s.repos.Sessions.EndedTotals(ctx, nil, &today, &tomorrow); return },
		func() (err error) { out.Yesterday, err = s.repos.Sessions.EndedTotals(ctx, nil, &yesterday, &today); return },
		func() (err error) { out.Active, err = s.repos.Sessions.CountByStatus(ctx, model.SessionActive); return },
	)
	if err != nil {
		return nil, err
	}
	if out.Top, err = s.rollups.TopPerformers(ctx, model.PeriodDaily, 5); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *StatsService) each(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return storeErr(err)
		}
	}
	return nil
}
