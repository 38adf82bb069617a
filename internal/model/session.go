package model

import "time"

// SessionStatus is the lifecycle state of a work session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session is one contiguous work interval. It is created active and
// moves to ended exactly once.
type Session struct {
	ID              uint          `gorm:"primaryKey"`
	UserID          int64         `gorm:"not null;index"`
	StartTime       time.Time     `gorm:"not null;index"`
	EndTime         *time.Time
	DurationMinutes *int
	Status          SessionStatus `gorm:"size:16;not null;index"`
	AutoEnded       bool          `gorm:"not null;default:false"`
	CreatedAt       time.Time
}

func (Session) TableName() string { return "work_sessions" }

// Active reports whether the session is still running.
func (s Session) Active() bool { return s.Status == SessionActive }

// Minutes returns the recorded duration, or zero for an active session.
func (s Session) Minutes() int {
	if s.DurationMinutes == nil {
		return 0
	}
	return *s.DurationMinutes
}

// Elapsed is the running time of an active session at now.
func (s Session) Elapsed(now time.Time) time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	if now.Before(s.StartTime) {
		return 0
	}
	return now.Sub(s.StartTime)
}

// WholeMinutes floors d to whole minutes, never going below zero.
func WholeMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}
