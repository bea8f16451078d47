package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

type HistoryRepository interface {
	// InsertBatch records one rank/percentile row per user for a given
	// date. Written alongside daily snapshots.
	InsertBatch(ctx context.Context, records []model.LeaderboardHistory) error
}

type pgHistoryRepository struct {
	db *sql.DB
}

func NewPgHistoryRepository(db *sql.DB) HistoryRepository {
	return &pgHistoryRepository{db: db}
}

func (r *pgHistoryRepository) InsertBatch(ctx context.Context, records []model.LeaderboardHistory) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := r.db.PrepareContext(ctx,
		`INSERT INTO leaderboard_history (id, leaderboard_id, user_id, score, rank, percentile, record_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("pgHistoryRepository.InsertBatch prepare: %w", err)
	}
	defer stmt.Close()

	for _, h := range records {
		_, err := stmt.ExecContext(ctx, h.ID, h.LeaderboardID, h.UserID, h.Score, h.Rank, h.Percentile, h.RecordDate)
		if err != nil {
			return fmt.Errorf("pgHistoryRepository.InsertBatch exec for user %s: %w", h.UserID, err)
		}
	}
	return nil
}
