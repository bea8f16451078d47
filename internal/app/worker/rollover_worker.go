// Package worker runs the background rollover loop: periodic reset sweeps
// at period boundaries and the daily snapshot pass.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/repository"
)

// LeaderboardAdmin is the slice of the leaderboard service the worker
// drives. Satisfied by service.LeaderboardService.
type LeaderboardAdmin interface {
	Reset(ctx context.Context, id string, snapshotType model.SnapshotType) error
	CreateSnapshot(ctx context.Context, id string, snapshotType model.SnapshotType) (*model.LeaderboardSnapshot, error)
}

// RolloverWorker periodically sweeps for leaderboards whose reset boundary
// has passed and, once a day, snapshots every active leaderboard. One
// board's failure never stops the sweep: errors are logged and the loop
// moves on.
type RolloverWorker struct {
	leaderboardRepo repository.LeaderboardRepository
	leaderboardSvc  LeaderboardAdmin

	interval     time.Duration
	snapshotHour int
}

func NewRolloverWorker(leaderboardRepo repository.LeaderboardRepository, leaderboardSvc LeaderboardAdmin, interval time.Duration, snapshotHour int) *RolloverWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RolloverWorker{
		leaderboardRepo: leaderboardRepo,
		leaderboardSvc:  leaderboardSvc,
		interval:        interval,
		snapshotHour:    snapshotHour,
	}
}

// Run blocks until ctx is cancelled, ticking at the configured interval.
// An initial sweep runs immediately so resets missed during downtime are
// caught up on startup.
func (w *RolloverWorker) Run(ctx context.Context) {
	slog.Info("rollover worker started", "interval", w.interval, "snapshot_hour", w.snapshotHour)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			slog.Info("rollover worker stopping")
			return
		case now := <-ticker.C:
			w.tick(ctx, now)
		}
	}
}

func (w *RolloverWorker) tick(ctx context.Context, now time.Time) {
	w.sweepResets(ctx, now)
	if now.Hour() == w.snapshotHour {
		w.sweepDailySnapshots(ctx)
	}
}

func (w *RolloverWorker) sweepResets(ctx context.Context, now time.Time) {
	due, err := w.leaderboardRepo.FindDueForReset(ctx, now)
	if err != nil {
		slog.Error("reset sweep: listing due leaderboards failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	slog.Info("reset sweep: leaderboards due", "count", len(due))

	for _, lb := range due {
		if !lb.ResetPeriod.Valid() || !lb.ScoringModel.Valid() {
			slog.Warn("reset sweep: skipping leaderboard with invalid configuration",
				"leaderboard_id", lb.ID, "reset_period", lb.ResetPeriod, "scoring_model", lb.ScoringModel)
			continue
		}
		if err := w.leaderboardSvc.Reset(ctx, lb.ID, snapshotTypeFor(lb.ResetPeriod)); err != nil {
			slog.Error("reset sweep: leaderboard reset failed", "leaderboard_id", lb.ID, "error", err)
			continue
		}
		slog.Info("leaderboard reset", "leaderboard_id", lb.ID, "name", lb.Name, "period", lb.ResetPeriod)
	}
}

func (w *RolloverWorker) sweepDailySnapshots(ctx context.Context) {
	targets, err := w.leaderboardRepo.FindSnapshotTargets(ctx)
	if err != nil {
		slog.Error("snapshot sweep: listing leaderboards failed", "error", err)
		return
	}

	for _, lb := range targets {
		if _, err := w.leaderboardSvc.CreateSnapshot(ctx, lb.ID, model.SnapshotDaily); err != nil {
			slog.Error("snapshot sweep: snapshot failed", "leaderboard_id", lb.ID, "error", err)
			continue
		}
	}
	slog.Info("snapshot sweep finished", "count", len(targets))
}

// snapshotTypeFor labels the pre-reset snapshot with the period that
// triggered it.
func snapshotTypeFor(p model.ResetPeriod) model.SnapshotType {
	switch p {
	case model.ResetDaily:
		return model.SnapshotDaily
	case model.ResetWeekly:
		return model.SnapshotWeekly
	case model.ResetMonthly:
		return model.SnapshotMonthly
	}
	return model.SnapshotManual
}
