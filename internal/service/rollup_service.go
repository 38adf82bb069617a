package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"worktime/internal/clock"
	"worktime/internal/model"
	"worktime/internal/repository"
)

const defaultTopLimit = 10

// RollupService keeps weekly and monthly totals in step with ended sessions.
type RollupService struct {
	repos *repository.Repositories
	clock clock.Clock
	loc   *time.Location
	log   *slog.Logger
}

func NewRollupService(repos *repository.Repositories, clk clock.Clock, loc *time.Location, log *slog.Logger) *RollupService {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	return &RollupService{repos: repos, clock: clk, loc: loc, log: log}
}

// Location is the zone period boundaries are computed in.
func (s *RollupService) Location() *time.Location {
	return s.loc
}

// Contribute adds a finished session to the week and month containing its
// start. It must run inside the transaction that closed the session.
func (s *RollupService) Contribute(ctx context.Context, tx *repository.Repositories, userID int64, sessionStart time.Time, minutes int) error {
	start := sessionStart.In(s.loc)
	if err := tx.Rollups.AddWeekly(ctx, userID, model.PeriodKey(model.WeekStart(start)), minutes); err != nil {
		return err
	}
	return tx.Rollups.AddMonthly(ctx, userID, model.PeriodKey(model.MonthStart(start)), minutes)
}

// Weekly returns the user's rollup for the week containing weekStart.
func (s *RollupService) Weekly(ctx context.Context, userID int64, weekStart time.Time) (*model.WeeklyRollup, error) {
	row, err := s.repos.Rollups.FindWeekly(ctx, userID, model.PeriodKey(model.WeekStart(weekStart.In(s.loc))))
	if err != nil {
		return nil, storeErr(err)
	}
	return row, nil
}

// Monthly returns the user's rollup for the month containing monthStart.
func (s *RollupService) Monthly(ctx context.Context, userID int64, monthStart time.Time) (*model.MonthlyRollup, error) {
	row, err := s.repos.Rollups.FindMonthly(ctx, userID, model.PeriodKey(model.MonthStart(monthStart.In(s.loc))))
	if err != nil {
		return nil, storeErr(err)
	}
	return row, nil
}

// CurrentWeekKey is the period key of the week containing now.
func (s *RollupService) CurrentWeekKey() string {
	return model.PeriodKey(model.WeekStart(s.now()))
}

// TopPerformers ranks users for period. Weekly and monthly read the rollup
// tables for the current period; daily and overall sum sessions directly.
func (s *RollupService) TopPerformers(ctx context.Context, period model.Period, limit int) ([]model.Standing, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	now := s.now()

	var (
		out []model.Standing
		err error
	)
	switch period {
	case model.PeriodWeekly:
		out, err = s.repos.Rollups.TopWeekly(ctx, model.PeriodKey(model.WeekStart(now)), limit)
	case model.PeriodMonthly:
		out, err = s.repos.Rollups.TopMonthly(ctx, model.PeriodKey(model.MonthStart(now)), limit)
	case model.PeriodDaily:
		from := model.DayStart(now)
		to := from.AddDate(0, 0, 1)
		out, err = s.repos.Rollups.TopFromSessions(ctx, &from, &to, limit)
	case model.PeriodOverall:
		out, err = s.repos.Rollups.TopFromSessions(ctx, nil, nil, limit)
	default:
		return nil, fmt.Errorf("%w: unknown period %q", model.ErrInvalidArgument, period)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// ResetCurrentWeek deletes this week's rollup rows and returns how many
// users had one. Sessions are kept, so RebuildWeek can restore the rows.
func (s *RollupService) ResetCurrentWeek(ctx context.Context) (int64, error) {
	key := s.CurrentWeekKey()
	n, err := s.repos.Rollups.DeleteWeek(ctx, key)
	if err != nil {
		return 0, storeErr(err)
	}
	s.log.Info("weekly rollups reset", "week_start", key, "users", n)
	return n, nil
}

// RebuildWeek replaces the rollup rows of the week containing day with
// totals recomputed from ended sessions.
func (s *RollupService) RebuildWeek(ctx context.Context, day time.Time) (int, error) {
	from := model.WeekStart(day.In(s.loc))
	to := from.AddDate(0, 0, 7)
	key := model.PeriodKey(from)

	var replayed int
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Rollups.DeleteWeek(ctx, key); err != nil {
			return err
		}
		sessions, err := tx.Sessions.ListEndedBetween(ctx, &from, &to)
		if err != nil {
			return err
		}
		for _, sess := range sessions {
			if err := tx.Rollups.AddWeekly(ctx, sess.UserID, key, sess.Minutes()); err != nil {
				return err
			}
		}
		replayed = len(sessions)
		return nil
	})
	if err != nil {
		return 0, storeErr(err)
	}
	s.log.Info("weekly rollups rebuilt", "week_start", key, "sessions", replayed)
	return replayed, nil
}

// RebuildMonth is RebuildWeek for the month containing day.
func (s *RollupService) RebuildMonth(ctx context.Context, day time.Time) (int, error) {
	from := model.MonthStart(day.In(s.loc))
	to := from.AddDate(0, 1, 0)
	key := model.PeriodKey(from)

	var replayed int
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Rollups.DeleteMonth(ctx, key); err != nil {
			return err
		}
		sessions, err := tx.Sessions.ListEndedBetween(ctx, &from, &to)
		if err != nil {
			return err
		}
		for _, sess := range sessions {
			if err := tx.Rollups.AddMonthly(ctx, sess.UserID, key, sess.Minutes()); err != nil {
				return err
			}
		}
		replayed = len(sessions)
		return nil
	})
	if err != nil {
		return 0, storeErr(err)
	}
	s.log.Info("monthly rollups rebuilt", "month_start", key, "sessions", replayed)
	return replayed, nil
}

// RebuildAll drops every rollup row and replays all ended sessions.
func (s *RollupService) RebuildAll(ctx context.Context) (int, error) {
	var replayed int
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Rollups.DeleteAll(ctx); err != nil {
			return err
		}
		sessions, err := tx.Sessions.ListEndedBetween(ctx, nil, nil)
		if err != nil {
			return err
		}
		for _, sess := range sessions {
			if err := s.Contribute(ctx, tx, sess.UserID, sess.StartTime, sess.Minutes()); err != nil {
				return err
			}
		}
		replayed = len(sessions)
		return nil
	})
	if err != nil {
		return 0, storeErr(err)
	}
	s.log.Info("all rollups rebuilt", "sessions", replayed)
	return replayed, nil
}

// ColdStart rebuilds every period when the rollup tables are empty but
// ended sessions exist. It reports whether a rebuild ran.
func (s *RollupService) ColdStart(ctx context.Context) (bool, error) {
	rows, err := s.repos.Rollups.Count(ctx)
	if err != nil {
		return false, storeErr(err)
	}
	if rows > 0 {
		return false, nil
	}
	totals, err := s.repos.Sessions.EndedTotals(ctx, nil, nil, nil)
	if err != nil {
		return false, storeErr(err)
	}
	if totals.Sessions == 0 {
		return false, nil
	}
	if _, err := s.RebuildAll(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RollupService) now() time.Time {
	return s.clock.Now().In(s.loc)
}
