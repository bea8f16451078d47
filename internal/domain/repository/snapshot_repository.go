package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

type SnapshotRepository interface {
	// Create persists a snapshot. Snapshots are immutable: there is no
	// update path by design.
	Create(ctx context.Context, snapshot *model.LeaderboardSnapshot) error

	// ListByLeaderboard returns the most recent snapshots (newest first),
	// optionally filtered by type.
	ListByLeaderboard(ctx context.Context, leaderboardID string, snapshotType model.SnapshotType, limit int) ([]model.LeaderboardSnapshot, error)
}

type pgSnapshotRepository struct {
	db *sql.DB
}

func NewPgSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &pgSnapshotRepository{db: db}
}

func (r *pgSnapshotRepository) Create(ctx context.Context, snapshot *model.LeaderboardSnapshot) error {
	data, err := json.Marshal(snapshot.Data)
	if err != nil {
		return fmt.Errorf("pgSnapshotRepository.Create marshal: %w", err)
	}
	query := `INSERT INTO leaderboard_snapshots (id, leaderboard_id, snapshot_date, snapshot_type, data)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.ExecContext(ctx, query,
		snapshot.ID, snapshot.LeaderboardID, snapshot.SnapshotDate, snapshot.SnapshotType, data,
	)
	if err != nil {
		return fmt.Errorf("pgSnapshotRepository.Create: %w", err)
	}
	return nil
}

func (r *pgSnapshotRepository) ListByLeaderboard(ctx context.Context, leaderboardID string, snapshotType model.SnapshotType, limit int) ([]model.LeaderboardSnapshot, error) {
	query := `SELECT id, leaderboard_id, snapshot_date, snapshot_type, data, created_at
	          FROM leaderboard_snapshots WHERE leaderboard_id = $1`
	args := []any{leaderboardID}
	if snapshotType != "" {
		query += ` AND snapshot_type = $2`
		args = append(args, snapshotType)
	}
	query += fmt.Sprintf(` ORDER BY snapshot_date DESC, created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgSnapshotRepository.ListByLeaderboard query: %w", err)
	}
	defer rows.Close()

	snapshots := []model.LeaderboardSnapshot{}
	for rows.Next() {
		var s model.LeaderboardSnapshot
		var data []byte
		if err := rows.Scan(&s.ID, &s.LeaderboardID, &s.SnapshotDate, &s.SnapshotType, &data, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgSnapshotRepository.ListByLeaderboard scan: %w", err)
		}
		if err := json.Unmarshal(data, &s.Data); err != nil {
			return nil, fmt.Errorf("pgSnapshotRepository.ListByLeaderboard decode data: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSnapshotRepository.ListByLeaderboard rows.Err: %w", err)
	}
	return snapshots, nil
}
