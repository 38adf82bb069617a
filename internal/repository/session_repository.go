package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"worktime/internal/model"
)

// SessionRepository handles work session rows.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	session.StartTime = dbTime(session.StartTime)
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindActive returns the user's active session, or nil when there is none.
func (r *SessionRepository) FindActive(ctx context.Context, userID int64) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SessionActive).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return &session, nil
}

// Close ends an active session. It reports false when the session was
// already ended by someone else, so only one closer ever wins.
func (r *SessionRepository) Close(ctx context.Context, id uint, end time.Time, minutes int, autoEnded bool) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND status = ?", id, model.SessionActive).
		Updates(map[string]any{
			"end_time":         dbTime(end),
			"duration_minutes": minutes,
			"status":           model.SessionEnded,
			"auto_ended":       autoEnded,
		})
	if res.Error != nil {
		return false, fmt.Errorf("close session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListEnded returns the user's ended sessions, most recent start first.
func (r *SessionRepository) ListEnded(ctx context.Context, userID int64, limit int) ([]model.Session, error) {
	var sessions []model.Session
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SessionEnded).
		Order("start_time DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return sessions, nil
}

// ListActiveStartedBefore returns active sessions with start <= cutoff.
func (r *SessionRepository) ListActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.WithContext(ctx).
		Where("status = ? AND start_time <= ?", model.SessionActive, dbTime(cutoff)).
		Order("start_time ASC, id ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list long sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) ListActive(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.SessionActive).
		Order("id ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// ListEndedBetween returns ended sessions whose start falls in [from, to),
// in contribution order. Nil bounds are open.
func (r *SessionRepository) ListEndedBetween(ctx context.Context, from, to *time.Time) ([]model.Session, error) {
	var sessions []model.Session
	q := r.db.WithContext(ctx).Where("status = ?", model.SessionEnded)
	q = startRange(q, "start_time", from, to)
	if err := q.Order("id ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list ended sessions: %w", err)
	}
	return sessions, nil
}

// EndedTotals sums ended sessions starting in [from, to). A nil userID
// covers every user.
func (r *SessionRepository) EndedTotals(ctx context.Context, userID *int64, from, to *time.Time) (model.Totals, error) {
	var totals model.Totals
	q := r.db.WithContext(ctx).Model(&model.Session{}).
		Select("COALESCE(SUM(duration_minutes), 0) AS minutes, COUNT(*) AS sessions").
		Where("status = ?", model.SessionEnded)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	q = startRange(q, "start_time", from, to)
	if err := q.Scan(&totals).Error; err != nil {
		return model.Totals{}, fmt.Errorf("sum sessions: %w", err)
	}
	return totals, nil
}

// EndedMinutesByUser sums ended minutes per user for sessions starting in [from, to).
func (r *SessionRepository) EndedMinutesByUser(ctx context.Context, from, to time.Time) (map[int64]int, error) {
	var rows []struct {
		UserID  int64
		Minutes int
	}
	if err := r.db.WithContext(ctx).Model(&model.Session{}).
		Select("user_id, COALESCE(SUM(duration_minutes), 0) AS minutes").
		Where("status = ? AND start_time >= ? AND start_time < ?", model.SessionEnded, dbTime(from), dbTime(to)).
		Group("user_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("sum minutes by user: %w", err)
	}
	out := make(map[int64]int, len(rows))
	for _, row := range rows {
		out[row.UserID] = row.Minutes
	}
	return out, nil
}

// ActiveUserIDs lists users with a running session.
func (r *SessionRepository) ActiveUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("status = ?", model.SessionActive).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return ids, nil
}

func (r *SessionRepository) CountByStatus(ctx context.Context, status model.SessionStatus) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Where("status = ?", status).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// CountStartedBetween counts sessions of any status starting in [from, to).
func (r *SessionRepository) CountStartedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("start_time >= ? AND start_time < ?", dbTime(from), dbTime(to)).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func startRange(q *gorm.DB, column string, from, to *time.Time) *gorm.DB {
	if from != nil {
		q = q.Where(column+" >= ?", dbTime(*from))
	}
	if to != nil {
		q = q.Where(column+" < ?", dbTime(*to))
	}
	return q
}

// dbTime normalizes timestamps to whole UTC seconds. SQLite compares the
// stored text form, so every value written or compared must share one layout.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
