package service

import (
	"context"
	"time"

	"worktime/internal/model"
	"worktime/internal/notify"
	"worktime/internal/repository"
)

// ReminderService finds users who are behind on today's goal.
type ReminderService struct {
	userRepo    *repository.UserRepository
	sessionRepo *repository.SessionRepository
	threshold   float64
	loc         *time.Location
}

func NewReminderService(userRepo *repository.UserRepository, sessionRepo *repository.SessionRepository, threshold float64, loc *time.Location) *ReminderService {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderService{userRepo: userRepo, sessionRepo: sessionRepo, threshold: threshold, loc: loc}
}

// Due returns a reminder for every user with a daily goal, no running
// session and less than threshold*goal completed today. Read-only.
func (s *ReminderService) Due(ctx context.Context, now time.Time) ([]notify.ReminderDue, error) {
	users, err := s.userRepo.ListWithDailyGoal(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(users) == 0 {
		return nil, nil
	}

	activeIDs, err := s.sessionRepo.ActiveUserIDs(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	working := make(map[int64]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		working[id] = struct{}{}
	}

	from := model.DayStart(now.In(s.loc))
	done, err := s.sessionRepo.EndedMinutesByUser(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, storeErr(err)
	}

	var due []notify.ReminderDue
	for _, u := range users {
		if _, ok := working[u.ID]; ok {
			continue
		}
		completed := done[u.ID]
		if float64(completed) >= s.threshold*float64(u.DailyGoalMinutes) {
			continue
		}
		due = append(due, notify.ReminderDue{
			UserID:         u.ID,
			Username:       u.Username,
			GoalHours:      hours(u.DailyGoalMinutes),
			CompletedHours: hours(completed),
			RemainingHours: hours(max(u.DailyGoalMinutes-completed, 0)),
		})
	}
	return due, nil
}

func hours(minutes int) float64 {
	return float64(minutes) / 60
}
