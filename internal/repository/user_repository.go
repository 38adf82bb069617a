package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"worktime/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert finds or creates a user by platform id and keeps the display name current.
// New users get the supplied default goals.
func (r *UserRepository) Upsert(ctx context.Context, id int64, username string, defaults model.Goals) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("id = ?", id).First(&user).Error
	switch {
	case err == nil:
		if username == "" || username == user.Username {
			return &user, nil
		}
		if err := db.Model(&user).Update("username", username).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		user.Username = username
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			ID:                id,
			Username:          username,
			DailyGoalMinutes:  defaults.DailyMinutes,
			WeeklyGoalMinutes: defaults.WeeklyMinutes,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

// FindByID returns nil when the user does not exist.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// SetGoal stores minutes in the goal column picked by kind.
func (r *UserRepository) SetGoal(ctx context.Context, id int64, kind model.GoalKind, minutes int) error {
	var column string
	switch kind {
	case model.GoalDaily:
		column = "daily_goal_minutes"
	case model.GoalWeekly:
		column = "weekly_goal_minutes"
	default:
		return fmt.Errorf("%w: unknown goal kind %q", model.ErrInvalidArgument, kind)
	}
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update(column, minutes)
	if res.Error != nil {
		return fmt.Errorf("set goal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set goal: user %d: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// ListWithDailyGoal returns users whose daily goal is nonzero.
func (r *UserRepository) ListWithDailyGoal(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("daily_goal_minutes > 0").Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users with goals: %w", err)
	}
	return users, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
