package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"worktime/internal/clock"
	"worktime/internal/model"
	"worktime/internal/notify"
	"worktime/internal/repository"
)

const (
	defaultHistoryLimit = 10
	maxGoalHours        = 24
)

// SessionService owns the session lifecycle: start, end, queries and goals.
type SessionService struct {
	repos   *repository.Repositories
	rollups *RollupService
	clock   clock.Clock
	sink    notify.Sink
	goals   model.Goals
	log     *slog.Logger
}

func NewSessionService(repos *repository.Repositories, rollups *RollupService, clk clock.Clock, sink notify.Sink, goals model.Goals, log *slog.Logger) *SessionService {
	if sink == nil {
		sink = notify.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return &SessionService{repos: repos, rollups: rollups, clock: clk, sink: sink, goals: goals, log: log}
}

// StartSession opens a session for the user, creating the user on first
// contact. It returns false when a session is already running.
func (s *SessionService) StartSession(ctx context.Context, userID int64, displayName string) (bool, error) {
	started := false
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Users.Upsert(ctx, userID, displayName, s.goals); err != nil {
			return err
		}
		active, err := tx.Sessions.FindActive(ctx, userID)
		if err != nil {
			return err
		}
		if active != nil {
			return nil
		}
		session := model.Session{UserID: userID, StartTime: s.clock.Now(), Status: model.SessionActive}
		if err := tx.Sessions.Create(ctx, &session); err != nil {
			return err
		}
		started = true
		return nil
	})
	if repository.IsUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, s.fail(ctx, "start_session", userID, err)
	}
	if started {
		s.log.Info("session started", "user_id", userID)
	}
	return started, nil
}

// EndSession closes the user's active session and adds it to the rollups in
// one transaction. It returns nil when nothing was running.
func (s *SessionService) EndSession(ctx context.Context, userID int64, autoEnded bool) (*model.Session, error) {
	return s.end(ctx, userID, endOptions{autoEnded: autoEnded})
}

// EndSessionByAdmin closes the user's session on an admin's behalf. It is
// a manual close; the event tells the user who ended it.
func (s *SessionService) EndSessionByAdmin(ctx context.Context, userID int64) (*model.Session, error) {
	return s.end(ctx, userID, endOptions{byAdmin: true})
}

// AutoEnd closes the user's active session only if it started at or before
// cutoff. A session the user restarted since the scan is left alone.
func (s *SessionService) AutoEnd(ctx context.Context, userID int64, cutoff time.Time) (*model.Session, error) {
	return s.end(ctx, userID, endOptions{autoEnded: true, cutoff: &cutoff})
}

type endOptions struct {
	autoEnded bool
	byAdmin   bool
	cutoff    *time.Time
}

func (s *SessionService) end(ctx context.Context, userID int64, opts endOptions) (*model.Session, error) {
	autoEnded, cutoff := opts.autoEnded, opts.cutoff
	var (
		ended    *model.Session
		username string
	)
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		active, err := tx.Sessions.FindActive(ctx, userID)
		if err != nil || active == nil {
			return err
		}
		if cutoff != nil && active.StartTime.After(*cutoff) {
			return nil
		}

		end := s.clock.Now().UTC().Truncate(time.Second)
		if end.Before(active.StartTime) {
			end = active.StartTime
		}
		minutes := model.WholeMinutes(end.Sub(active.StartTime))

		closed, err := tx.Sessions.Close(ctx, active.ID, end, minutes, autoEnded)
		if err != nil || !closed {
			return err
		}
		if err := s.rollups.Contribute(ctx, tx, userID, active.StartTime, minutes); err != nil {
			return err
		}
		if user, err := tx.Users.FindByID(ctx, userID); err == nil && user != nil {
			username = user.Username
		}

		active.EndTime = &end
		active.DurationMinutes = &minutes
		active.Status = model.SessionEnded
		active.AutoEnded = autoEnded
		ended = active
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "end_session", userID, err)
	}
	if ended == nil {
		return nil, nil
	}

	s.log.Info("session ended", "user_id", userID, "session_id", ended.ID, "minutes", ended.Minutes(), "auto", autoEnded, "admin", opts.byAdmin)
	s.emit(ctx, notify.SessionEnded{
		UserID:        userID,
		Username:      username,
		SessionID:     ended.ID,
		Start:         ended.StartTime,
		End:           *ended.EndTime,
		Minutes:       ended.Minutes(),
		AutoEnded:     autoEnded,
		ClosedByAdmin: opts.byAdmin,
	})
	return ended, nil
}

// ActiveSession returns the running session, or nil.
func (s *SessionService) ActiveSession(ctx context.Context, userID int64) (*model.Session, error) {
	session, err := s.repos.Sessions.FindActive(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return session, nil
}

// History lists ended sessions, newest first. A non-positive limit uses the default.
func (s *SessionService) History(ctx context.Context, userID int64, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	sessions, err := s.repos.Sessions.ListEnded(ctx, userID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return sessions, nil
}

// SetGoal stores a daily or weekly goal given in hours.
func (s *SessionService) SetGoal(ctx context.Context, userID int64, displayName string, kind model.GoalKind, hours float64) error {
	if kind != model.GoalDaily && kind != model.GoalWeekly {
		return fmt.Errorf("%w: unknown goal kind %q", model.ErrInvalidArgument, kind)
	}
	if math.IsNaN(hours) || hours <= 0 || hours > maxGoalHours {
		return fmt.Errorf("%w: goal must be between 0 and %d hours, got %g", model.ErrInvalidArgument, maxGoalHours, hours)
	}
	minutes := int(math.Floor(hours * 60))
	if minutes < 1 {
		return fmt.Errorf("%w: goal must be at least one minute", model.ErrInvalidArgument)
	}

	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Users.Upsert(ctx, userID, displayName, s.goals); err != nil {
			return err
		}
		return tx.Users.SetGoal(ctx, userID, kind, minutes)
	})
	if err != nil {
		return s.fail(ctx, "set_goal", userID, err)
	}
	return nil
}

// CloseAll ends every running session as an admin close. Sessions that
// fail to close are skipped and their errors joined.
func (s *SessionService) CloseAll(ctx context.Context) ([]model.Session, error) {
	active, err := s.repos.Sessions.ListActive(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	var (
		closed []model.Session
		errs   []error
	)
	for _, sess := range active {
		ended, err := s.EndSessionByAdmin(ctx, sess.UserID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ended != nil {
			closed = append(closed, *ended)
		}
	}
	return closed, errors.Join(errs...)
}

// User returns the stored user, or nil before their first interaction.
func (s *SessionService) User(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.repos.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return user, nil
}

func (s *SessionService) fail(ctx context.Context, op string, userID int64, err error) error {
	err = storeErr(err)
	s.log.Error("operation failed", "op", op, "user_id", userID, "error", err)
	s.emit(ctx, notify.Failed(op, userID, err))
	return err
}

func (s *SessionService) emit(ctx context.Context, e notify.Event) {
	if err := s.sink.Notify(ctx, e); err != nil {
		s.log.Warn("notify", "kind", string(e.Kind()), "error", err)
	}
}
