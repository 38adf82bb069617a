package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"worktime/internal/model"
)

// RollupRepository maintains weekly and monthly totals.
type RollupRepository struct {
	db *gorm.DB
}

func NewRollupRepository(db *gorm.DB) *RollupRepository {
	return &RollupRepository{db: db}
}

// AddWeekly adds minutes and one session to the (user, week) row, creating it on first use.
func (r *RollupRepository) AddWeekly(ctx context.Context, userID int64, weekKey string, minutes int) error {
	row := model.WeeklyRollup{UserID: userID, WeekStart: weekKey, TotalMinutes: minutes, SessionsCount: 1}
	if err := r.db.WithContext(ctx).Clauses(additiveUpsert("user_id", "week_start")).Create(&row).Error; err != nil {
		return fmt.Errorf("add weekly rollup: %w", err)
	}
	return nil
}

// AddMonthly adds minutes and one session to the (user, month) row, creating it on first use.
func (r *RollupRepository) AddMonthly(ctx context.Context, userID int64, monthKey string, minutes int) error {
	row := model.MonthlyRollup{UserID: userID, MonthStart: monthKey, TotalMinutes: minutes, SessionsCount: 1}
	if err := r.db.WithContext(ctx).Clauses(additiveUpsert("user_id", "month_start")).Create(&row).Error; err != nil {
		return fmt.Errorf("add monthly rollup: %w", err)
	}
	return nil
}

func additiveUpsert(keys ...string) clause.OnConflict {
	cols := make([]clause.Column, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, clause.Column{Name: k})
	}
	return clause.OnConflict{
		Columns: cols,
		DoUpdates: clause.Assignments(map[string]any{
			"total_minutes":  gorm.Expr("total_minutes + excluded.total_minutes"),
			"sessions_count": gorm.Expr("sessions_count + 1"),
			"updated_at":     gorm.Expr("excluded.updated_at"),
		}),
	}
}

// FindWeekly returns nil when the user has no row for the week.
func (r *RollupRepository) FindWeekly(ctx context.Context, userID int64, weekKey string) (*model.WeeklyRollup, error) {
	var row model.WeeklyRollup
	err := r.db.WithContext(ctx).Where("user_id = ? AND week_start = ?", userID, weekKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find weekly rollup: %w", err)
	}
	return &row, nil
}

// FindMonthly returns nil when the user has no row for the month.
func (r *RollupRepository) FindMonthly(ctx context.Context, userID int64, monthKey string) (*model.MonthlyRollup, error) {
	var row model.MonthlyRollup
	err := r.db.WithContext(ctx).Where("user_id = ? AND month_start = ?", userID, monthKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find monthly rollup: %w", err)
	}
	return &row, nil
}

// TopWeekly ranks users for a week. Ties keep the order rows were first created.
func (r *RollupRepository) TopWeekly(ctx context.Context, weekKey string, limit int) ([]model.Standing, error) {
	return r.top(ctx, "weekly_rollups", "week_start", weekKey, limit)
}

// TopMonthly ranks users for a month. Ties keep the order rows were first created.
func (r *RollupRepository) TopMonthly(ctx context.Context, monthKey string, limit int) ([]model.Standing, error) {
	return r.top(ctx, "monthly_rollups", "month_start", monthKey, limit)
}

func (r *RollupRepository) top(ctx context.Context, table, keyColumn, key string, limit int) ([]model.Standing, error) {
	var out []model.Standing
	err := r.db.WithContext(ctx).
		Table(table+" AS r").
		Select("r.user_id, u.username, r.total_minutes, r.sessions_count").
		Joins("JOIN users u ON u.id = r.user_id").
		Where("r."+keyColumn+" = ?", key).
		Order("r.total_minutes DESC, r.id ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", table, err)
	}
	return out, nil
}

// TopFromSessions ranks users live over ended sessions starting in [from, to).
// Nil bounds are open. Ties keep the order of each user's first session.
func (r *RollupRepository) TopFromSessions(ctx context.Context, from, to *time.Time, limit int) ([]model.Standing, error) {
	var out []model.Standing
	q := r.db.WithContext(ctx).
		Table("work_sessions AS s").
		Select("s.user_id, u.username, COALESCE(SUM(s.duration_minutes), 0) AS total_minutes, COUNT(s.id) AS sessions_count").
		Joins("JOIN users u ON u.id = s.user_id").
		Where("s.status = ?", model.SessionEnded)
	q = startRange(q, "s.start_time", from, to)
	err := q.Group("s.user_id, u.username").
		Order("total_minutes DESC, MIN(s.id) ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("rank sessions: %w", err)
	}
	return out, nil
}

// DeleteWeek removes every row for the week and reports how many distinct
// users had one.
func (r *RollupRepository) DeleteWeek(ctx context.Context, weekKey string) (int64, error) {
	var users int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.WeeklyRollup{}).
			Where("week_start = ?", weekKey).
			Distinct("user_id").
			Count(&users).Error; err != nil {
			return err
		}
		return tx.Where("week_start = ?", weekKey).Delete(&model.WeeklyRollup{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete weekly rollups: %w", err)
	}
	return users, nil
}

// DeleteMonth removes every row for the month.
func (r *RollupRepository) DeleteMonth(ctx context.Context, monthKey string) error {
	if err := r.db.WithContext(ctx).Where("month_start = ?", monthKey).Delete(&model.MonthlyRollup{}).Error; err != nil {
		return fmt.Errorf("delete monthly rollups: %w", err)
	}
	return nil
}

// DeleteAll clears both rollup tables.
func (r *RollupRepository) DeleteAll(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("1 = 1").Delete(&model.WeeklyRollup{}).Error; err != nil {
		return fmt.Errorf("clear weekly rollups: %w", err)
	}
	if err := db.Where("1 = 1").Delete(&model.MonthlyRollup{}).Error; err != nil {
		return fmt.Errorf("clear monthly rollups: %w", err)
	}
	return nil
}

// Count returns the number of weekly plus monthly rows.
func (r *RollupRepository) Count(ctx context.Context) (int64, error) {
	var weekly, monthly int64
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.WeeklyRollup{}).Count(&weekly).Error; err != nil {
		return 0, fmt.Errorf("count weekly rollups: %w", err)
	}
	if err := db.Model(&model.MonthlyRollup{}).Count(&monthly).Error; err != nil {
		return 0, fmt.Errorf("count monthly rollups: %w", err)
	}
	return weekly + monthly, nil
}
