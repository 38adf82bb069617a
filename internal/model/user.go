package model

import "time"

// Goals holds per-user targets in minutes.
type Goals struct {
	DailyMinutes  int
	WeeklyMinutes int
}

// User stores chat platform user metadata and work goals.
// ID is the platform's own user id, so it is never auto-generated.
type User struct {
	ID                int64  `gorm:"primaryKey;autoIncrement:false"`
	Username          string `gorm:"not null"`
	DailyGoalMinutes  int    `gorm:"not null;default:480"`
	WeeklyGoalMinutes int    `gorm:"not null;default:2400"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Sessions       []Session       `gorm:"foreignKey:UserID"`
	WeeklyRollups  []WeeklyRollup  `gorm:"foreignKey:UserID"`
	MonthlyRollups []MonthlyRollup `gorm:"foreignKey:UserID"`
}

// Goals returns the user's targets.
func (u User) Goals() Goals {
	return Goals{DailyMinutes: u.DailyGoalMinutes, WeeklyMinutes: u.WeeklyGoalMinutes}
}
