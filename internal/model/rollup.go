package model

import "time"

// WeeklyRollup is the running total of ended sessions that started in the
// week beginning on WeekStart (a Monday, formatted with DateLayout).
type WeeklyRollup struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        int64  `gorm:"not null;uniqueIndex:idx_weekly_user_week"`
	WeekStart     string `gorm:"size:10;not null;uniqueIndex:idx_weekly_user_week;index"`
	TotalMinutes  int    `gorm:"not null;default:0"`
	SessionsCount int    `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MonthlyRollup is the monthly counterpart of WeeklyRollup.
type MonthlyRollup struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        int64  `gorm:"not null;uniqueIndex:idx_monthly_user_month"`
	MonthStart    string `gorm:"size:10;not null;uniqueIndex:idx_monthly_user_month;index"`
	TotalMinutes  int    `gorm:"not null;default:0"`
	SessionsCount int    `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Standing is one leaderboard row.
type Standing struct {
	UserID        int64
	Username      string
	TotalMinutes  int
	SessionsCount int
}

// Totals sums ended sessions over some range.
type Totals struct {
	Minutes  int
	Sessions int
}

// Backup describes a point-in-time copy of the database.
type Backup struct {
	Path      string
	SizeBytes int64
}
