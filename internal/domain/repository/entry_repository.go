package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

// UserRanking joins a user's entry with the leaderboard it belongs to, for
// the cross-leaderboard per-user view.
type UserRanking struct {
	LeaderboardID   string                 `json:"leaderboard_id"`
	LeaderboardName string                 `json:"leaderboard_name"`
	Entry           model.LeaderboardEntry `json:"entry"`
}

type EntryRepository interface {
	// FindByLeaderboardAndUser returns the single entry for a
	// (leaderboard, user) pair. With a tx the row is locked FOR UPDATE.
	FindByLeaderboardAndUser(ctx context.Context, tx *sql.Tx, leaderboardID, userID string) (*model.LeaderboardEntry, error)
	Insert(ctx context.Context, tx *sql.Tx, e *model.LeaderboardEntry) error
	UpdateScore(ctx context.Context, tx *sql.Tx, e *model.LeaderboardEntry) error

	// ListForRanking returns every entry of the leaderboard for a full
	// ranking pass, locking the set when run inside a transaction.
	ListForRanking(ctx context.Context, tx *sql.Tx, leaderboardID string) ([]*model.LeaderboardEntry, error)
	// UpdateRanks persists rank/percentile assignments computed by the
	// ranking engine. No other writer touches those columns.
	UpdateRanks(ctx context.Context, tx *sql.Tx, entries []*model.LeaderboardEntry) error

	DeleteByLeaderboard(ctx context.Context, tx *sql.Tx, leaderboardID string) (int64, error)

	ListTop(ctx context.Context, leaderboardID string, limit int) ([]model.LeaderboardEntry, error)
	ListRankWindow(ctx context.Context, leaderboardID string, startRank, endRank int) ([]model.LeaderboardEntry, error)
	ListPage(ctx context.Context, leaderboardID string, offset, limit int, from *time.Time, higherIsBetter bool) ([]model.LeaderboardEntry, int, error)
	ListOrdered(ctx context.Context, leaderboardID string) ([]model.LeaderboardEntry, error)
	CountByLeaderboard(ctx context.Context, leaderboardID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]UserRanking, error)

	Statistics(ctx context.Context, leaderboardID string, recentSince time.Time) (*model.LeaderboardStatistics, error)
}

type pgEntryRepository struct {
	db *sql.DB
}

func NewPgEntryRepository(db *sql.DB) EntryRepository {
	return &pgEntryRepository{db: db}
}

const entryColumns = `id, leaderboard_id, user_id, username, score, rank, percentile,
	completion_time_ms, metadata, is_verified, verified_at, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*model.LeaderboardEntry, error) {
	e := &model.LeaderboardEntry{}
	var metadata []byte
	err := row.Scan(
		&e.ID, &e.LeaderboardID, &e.UserID, &e.Username, &e.Score, &e.Rank, &e.Percentile,
		&e.CompletionTimeMs, &metadata, &e.IsVerified, &e.VerifiedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode entry metadata: %w", err)
		}
	}
	return e, nil
}

func (r *pgEntryRepository) FindByLeaderboardAndUser(ctx context.Context, tx *sql.Tx, leaderboardID, userID string) (*model.LeaderboardEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM leaderboard_entries WHERE leaderboard_id = $1 AND user_id = $2`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query+` FOR UPDATE`, leaderboardID, userID)
	} else {
		row = r.db.QueryRowContext(ctx, query, leaderboardID, userID)
	}
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgEntryRepository.FindByLeaderboardAndUser: %w", err)
	}
	return e, nil
}

func (r *pgEntryRepository) Insert(ctx context.Context, tx *sql.Tx, e *model.LeaderboardEntry) error {
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("pgEntryRepository.Insert: %w", err)
	}
	query := `INSERT INTO leaderboard_entries (id, leaderboard_id, user_id, username, score,
	            completion_time_ms, metadata, is_verified, verified_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	args := []any{e.ID, e.LeaderboardID, e.UserID, e.Username, e.Score,
		e.CompletionTimeMs, metadata, e.IsVerified, e.VerifiedAt}

	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // one entry per (leaderboard, user)
			return fmt.Errorf("user already has an entry on this leaderboard: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgEntryRepository.Insert: %w", err)
	}
	return nil
}

func (r *pgEntryRepository) UpdateScore(ctx context.Context, tx *sql.Tx, e *model.LeaderboardEntry) error {
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("pgEntryRepository.UpdateScore: %w", err)
	}
	query := `UPDATE leaderboard_entries SET score = $1, completion_time_ms = $2, metadata = $3,
	            is_verified = $4, verified_at = $5, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $6`
	args := []any{e.Score, e.CompletionTimeMs, metadata, e.IsVerified, e.VerifiedAt, e.ID}

	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("pgEntryRepository.UpdateScore: %w", err)
	}
	return nil
}

func (r *pgEntryRepository) ListForRanking(ctx context.Context, tx *sql.Tx, leaderboardID string) ([]*model.LeaderboardEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM leaderboard_entries WHERE leaderboard_id = $1`

	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query+` FOR UPDATE`, leaderboardID)
	} else {
		rows, err = r.db.QueryContext(ctx, query, leaderboardID)
	}
	if err != nil {
		return nil, fmt.Errorf("pgEntryRepository.ListForRanking query: %w", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("pgEntryRepository.ListForRanking scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgEntryRepository.ListForRanking rows.Err: %w", err)
	}
	return entries, nil
}

func (r *pgEntryRepository) UpdateRanks(ctx context.Context, tx *sql.Tx, entries []*model.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	query := `UPDATE leaderboard_entries SET rank = $1, percentile = $2 WHERE id = $3`

	var stmt *sql.Stmt
	var err error
	if tx != nil {
		stmt, err = tx.PrepareContext(ctx, query)
	} else {
		stmt, err = r.db.PrepareContext(ctx, query)
	}
	if err != nil {
		return fmt.Errorf("pgEntryRepository.UpdateRanks prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Rank, e.Percentile, e.ID); err != nil {
			return fmt.Errorf("pgEntryRepository.UpdateRanks exec for entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func (r *pgEntryRepository) DeleteByLeaderboard(ctx context.Context, tx *sql.Tx, leaderboardID string) (int64, error) {
	query := `DELETE FROM leaderboard_entries WHERE leaderboard_id = $1`

	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, leaderboardID)
	} else {
		res, err = r.db.ExecContext(ctx, query, leaderboardID)
	}
	if err != nil {
		return 0, fmt.Errorf("pgEntryRepository.DeleteByLeaderboard: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (r *pgEntryRepository) ListTop(ctx context.Context, leaderboardID string, limit int) ([]model.LeaderboardEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM leaderboard_entries
	          WHERE leaderboard_id = $1 ORDER BY rank ASC LIMIT $2`
	return r.queryEntries(ctx, "ListTop", query, leaderboardID, limit)
}

func (r *pgEntryRepository) ListRankWindow(ctx context.Context, leaderboardID string, startRank, endRank int) ([]model.LeaderboardEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM leaderboard_entries
	          WHERE leaderboard_id = $1 AND rank BETWEEN $2 AND $3 ORDER BY rank ASC`
	return r.queryEntries(ctx, "ListRankWindow", query, leaderboardID, startRank, endRank)
}

func (r *pgEntryRepository) ListOrdered(ctx context.Context, leaderboardID string) ([]model.LeaderboardEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM leaderboard_entries
	          WHERE leaderboard_id = $1 ORDER BY rank ASC`
	return r.queryEntries(ctx, "ListOrdered", query, leaderboardID)
}

// ListPage serves the paginated ranking view. The all-time view pages over
// stored ranks; a time-filtered view is a subset of the entry set, so it is
// ordered by score in the leaderboard's direction with the engine's
// tie-break instead of by (now sparse) rank.
func (r *pgEntryRepository) ListPage(ctx context.Context, leaderboardID string, offset, limit int, from *time.Time, higherIsBetter bool) ([]model.LeaderboardEntry, int, error) {
	where := ` WHERE leaderboard_id = $1`
	args := []any{leaderboardID}
	if from != nil {
		where += ` AND created_at >= $2`
		args = append(args, *from)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leaderboard_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgEntryRepository.ListPage count: %w", err)
	}

	order := ` ORDER BY rank ASC`
	if from != nil {
		if higherIsBetter {
			order = ` ORDER BY score DESC, created_at ASC, id ASC`
		} else {
			order = ` ORDER BY score ASC, created_at ASC, id ASC`
		}
	}

	query := fmt.Sprintf(`SELECT `+entryColumns+` FROM leaderboard_entries`+where+order+
		` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	entries, err := r.queryEntries(ctx, "ListPage", query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *pgEntryRepository) CountByLeaderboard(ctx context.Context, leaderboardID string) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leaderboard_entries WHERE leaderboard_id = $1`, leaderboardID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("pgEntryRepository.CountByLeaderboard: %w", err)
	}
	return total, nil
}

func (r *pgEntryRepository) ListByUser(ctx context.Context, userID string) ([]UserRanking, error) {
	query := `SELECT lb.id, lb.name,
	            e.id, e.leaderboard_id, e.user_id, e.username, e.score, e.rank, e.percentile,
	            e.completion_time_ms, e.metadata, e.is_verified, e.verified_at, e.created_at, e.updated_at
	          FROM leaderboard_entries e
	          JOIN leaderboards lb ON e.leaderboard_id = lb.id
	          WHERE e.user_id = $1 AND lb.is_active = TRUE
	          ORDER BY lb.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("pgEntryRepository.ListByUser query: %w", err)
	}
	defer rows.Close()

	rankings := []UserRanking{}
	for rows.Next() {
		var ur UserRanking
		var metadata []byte
		e := &ur.Entry
		err := rows.Scan(
			&ur.LeaderboardID, &ur.LeaderboardName,
			&e.ID, &e.LeaderboardID, &e.UserID, &e.Username, &e.Score, &e.Rank, &e.Percentile,
			&e.CompletionTimeMs, &metadata, &e.IsVerified, &e.VerifiedAt, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("pgEntryRepository.ListByUser scan: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("pgEntryRepository.ListByUser decode metadata: %w", err)
			}
		}
		rankings = append(rankings, ur)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgEntryRepository.ListByUser rows.Err: %w", err)
	}
	return rankings, nil
}

func (r *pgEntryRepository) Statistics(ctx context.Context, leaderboardID string, recentSince time.Time) (*model.LeaderboardStatistics, error) {
	stats := &model.LeaderboardStatistics{}
	query := `SELECT COUNT(*), COALESCE(AVG(score), 0), COALESCE(MAX(score), 0), COALESCE(MIN(score), 0)
	          FROM leaderboard_entries WHERE leaderboard_id = $1`
	err := r.db.QueryRowContext(ctx, query, leaderboardID).Scan(
		&stats.TotalEntries, &stats.AverageScore, &stats.HighestScore, &stats.LowestScore,
	)
	if err != nil {
		return nil, fmt.Errorf("pgEntryRepository.Statistics aggregate: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leaderboard_entries WHERE leaderboard_id = $1 AND created_at >= $2`,
		leaderboardID, recentSince,
	).Scan(&stats.RecentActivityCount)
	if err != nil {
		return nil, fmt.Errorf("pgEntryRepository.Statistics recent: %w", err)
	}
	return stats, nil
}

func (r *pgEntryRepository) queryEntries(ctx context.Context, op, query string, args ...any) ([]model.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgEntryRepository.%s query: %w", op, err)
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("pgEntryRepository.%s scan: %w", op, err)
		}
		entries = append(entries, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgEntryRepository.%s rows.Err: %w", op, err)
	}
	return entries, nil
}
