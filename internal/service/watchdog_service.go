package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"worktime/internal/clock"
	"worktime/internal/model"
)

// LongSessionFinder lists sessions that have been running since before cutoff.
type LongSessionFinder interface {
	ListActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]model.Session, error)
}

// AutoEnder force-ends a user's session if it is still older than cutoff.
type AutoEnder interface {
	AutoEnd(ctx context.Context, userID int64, cutoff time.Time) (*model.Session, error)
}

// WatchdogResult summarizes one tick.
type WatchdogResult struct {
	Ended  []model.Session
	Failed int
}

// WatchdogService force-ends sessions that ran past the configured limit.
type WatchdogService struct {
	finder LongSessionFinder
	ender  AutoEnder
	clock  clock.Clock
	limit  time.Duration
	log    *slog.Logger
}

func NewWatchdogService(finder LongSessionFinder, ender AutoEnder, clk clock.Clock, limit time.Duration, log *slog.Logger) *WatchdogService {
	if log == nil {
		log = slog.Default()
	}
	return &WatchdogService{finder: finder, ender: ender, clock: clk, limit: limit, log: log}
}

// Tick ends every session started at or before now-limit. A session that
// fails to close is counted and skipped; its failure was already reported
// by the ender. Only a failed scan returns an error.
func (w *WatchdogService) Tick(ctx context.Context) (WatchdogResult, error) {
	var res WatchdogResult
	cutoff := w.clock.Now().Add(-w.limit)

	stale, err := w.finder.ListActiveStartedBefore(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("scan long sessions: %w", storeErr(err))
	}

	for _, sess := range stale {
		ended, err := w.ender.AutoEnd(ctx, sess.UserID, cutoff)
		if err != nil {
			res.Failed++
			w.log.Warn("auto-end session", "user_id", sess.UserID, "session_id", sess.ID, "error", err)
			continue
		}
		if ended != nil {
			res.Ended = append(res.Ended, *ended)
		}
	}

	if len(stale) > 0 {
		w.log.Info("watchdog tick", "candidates", len(stale), "ended", len(res.Ended), "failed", res.Failed)
	}
	return res, nil
}
