// Package notify carries lifecycle events from the core services to
// whatever renders them: logs, Telegram chats or a Kafka topic.
package notify

import (
	"time"

	"worktime/internal/model"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindSessionEnded         Kind = "session_ended"
	KindWeeklyResetCompleted Kind = "weekly_reset_completed"
	KindBackupCompleted      Kind = "backup_completed"
	KindReminderDue          Kind = "reminder_due"
	KindOperationFailed      Kind = "operation_failed"
	KindDailyReport          Kind = "daily_report"
)

// Event is anything a Sink can receive.
type Event interface {
	Kind() Kind
}

// SessionEnded is emitted once per closed session. AutoEnded marks a
// watchdog close, ClosedByAdmin a close on an admin's behalf.
type SessionEnded struct {
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username"`
	SessionID     uint      `json:"session_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Minutes       int       `json:"minutes"`
	AutoEnded     bool      `json:"auto_ended"`
	ClosedByAdmin bool      `json:"closed_by_admin,omitempty"`
}

func (SessionEnded) Kind() Kind { return KindSessionEnded }

type WeeklyResetCompleted struct {
	WeekStart     string `json:"week_start"`
	UsersAffected int64  `json:"users_affected"`
}

func (WeeklyResetCompleted) Kind() Kind { return KindWeeklyResetCompleted }

type BackupCompleted struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

func (BackupCompleted) Kind() Kind { return KindBackupCompleted }

// ReminderDue nudges a user who is behind on today's goal.
type ReminderDue struct {
	UserID         int64   `json:"user_id"`
	Username       string  `json:"username"`
	GoalHours      float64 `json:"goal_hours"`
	CompletedHours float64 `json:"completed_hours"`
	RemainingHours float64 `json:"remaining_hours"`
}

func (ReminderDue) Kind() Kind { return KindReminderDue }

// OperationFailed reports a failure caught at a job or request boundary.
// UserID is zero for jobs that are not tied to one user.
type OperationFailed struct {
	Operation string `json:"operation"`
	UserID    int64  `json:"user_id,omitempty"`
	Error     string `json:"error"`
}

func (OperationFailed) Kind() Kind { return KindOperationFailed }

// DailyReport compares today with yesterday and ranks today's users.
type DailyReport struct {
	Day       string           `json:"day"`
	Today     model.Totals     `json:"today"`
	Yesterday model.Totals     `json:"yesterday"`
	Active    int64            `json:"active"`
	Top       []model.Standing `json:"top"`
}

func (DailyReport) Kind() Kind { return KindDailyReport }

// Failed builds an OperationFailed from err.
func Failed(operation string, userID int64, err error) OperationFailed {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return OperationFailed{Operation: operation, UserID: userID, Error: msg}
}

// UserID returns the user an event is about, or zero.
func UserID(e Event) int64 {
	switch ev := e.(type) {
	case SessionEnded:
		return ev.UserID
	case ReminderDue:
		return ev.UserID
	case OperationFailed:
		return ev.UserID
	default:
		return 0
	}
}
