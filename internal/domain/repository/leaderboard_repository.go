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

type LeaderboardRepository interface {
	Create(ctx context.Context, lb *model.Leaderboard) error
	Update(ctx context.Context, tx *sql.Tx, lb *model.Leaderboard) error
	FindByID(ctx context.Context, id string) (*model.Leaderboard, error)
	ListActive(ctx context.Context, page, limit int, category string) ([]model.Leaderboard, int, error)
	HardDelete(ctx context.Context, id string) error

	// FindDueForReset returns active leaderboards with a periodic reset
	// whose next_reset_date has passed.
	FindDueForReset(ctx context.Context, now time.Time) ([]model.Leaderboard, error)

	// FindSnapshotTargets returns every active, non-archived leaderboard.
	FindSnapshotTargets(ctx context.Context) ([]model.Leaderboard, error)

	UpdateResetDates(ctx context.Context, tx *sql.Tx, id string, lastReset time.Time, nextReset *time.Time) error
}

type pgLeaderboardRepository struct {
	db *sql.DB
}

func NewPgLeaderboardRepository(db *sql.DB) LeaderboardRepository {
	return &pgLeaderboardRepository{db: db}
}

const leaderboardColumns = `id, name, slug, description, scoring_model, reset_period, category,
	is_active, is_public, is_archived, metadata, max_entries, entry_limit_per_user,
	minimum_score_threshold, last_reset_date, next_reset_date, created_at, updated_at`

func scanLeaderboard(row interface{ Scan(...any) error }) (*model.Leaderboard, error) {
	lb := &model.Leaderboard{}
	var metadata []byte
	err := row.Scan(
		&lb.ID, &lb.Name, &lb.Slug, &lb.Description, &lb.ScoringModel, &lb.ResetPeriod, &lb.Category,
		&lb.IsActive, &lb.IsPublic, &lb.IsArchived, &metadata, &lb.MaxEntries, &lb.EntryLimitPerUser,
		&lb.MinimumScoreThreshold, &lb.LastResetDate, &lb.NextResetDate, &lb.CreatedAt, &lb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &lb.Metadata); err != nil {
			return nil, fmt.Errorf("decode leaderboard metadata: %w", err)
		}
	}
	return lb, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (r *pgLeaderboardRepository) Create(ctx context.Context, lb *model.Leaderboard) error {
	metadata, err := marshalMetadata(lb.Metadata)
	if err != nil {
		return fmt.Errorf("pgLeaderboardRepository.Create: %w", err)
	}
	query := `INSERT INTO leaderboards (id, name, slug, description, scoring_model, reset_period, category,
	            is_active, is_public, is_archived, metadata, max_entries, entry_limit_per_user,
	            minimum_score_threshold, next_reset_date)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = r.db.ExecContext(ctx, query,
		lb.ID, lb.Name, lb.Slug, lb.Description, lb.ScoringModel, lb.ResetPeriod, lb.Category,
		lb.IsActive, lb.IsPublic, lb.IsArchived, metadata, lb.MaxEntries, lb.EntryLimitPerUser,
		lb.MinimumScoreThreshold, lb.NextResetDate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique constraint for slug
			return fmt.Errorf("leaderboard with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgLeaderboardRepository.Create: %w", err)
	}
	return nil
}

func (r *pgLeaderboardRepository) Update(ctx context.Context, tx *sql.Tx, lb *model.Leaderboard) error {
	metadata, err := marshalMetadata(lb.Metadata)
	if err != nil {
		return fmt.Errorf("pgLeaderboardRepository.Update: %w", err)
	}
	query := `UPDATE leaderboards SET
	            name = $1, description = $2, scoring_model = $3, reset_period = $4, category = $5,
	            is_active = $6, is_public = $7, is_archived = $8, metadata = $9, max_entries = $10,
	            entry_limit_per_user = $11, minimum_score_threshold = $12,
	            last_reset_date = $13, next_reset_date = $14, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $15`
	args := []any{
		lb.Name, lb.Description, lb.ScoringModel, lb.ResetPeriod, lb.Category,
		lb.IsActive, lb.IsPublic, lb.IsArchived, metadata, lb.MaxEntries,
		lb.EntryLimitPerUser, lb.MinimumScoreThreshold,
		lb.LastResetDate, lb.NextResetDate, lb.ID,
	}

	var res sql.Result
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, args...)
	} else {
		res, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("pgLeaderboardRepository.Update: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgLeaderboardRepository) FindByID(ctx context.Context, id string) (*model.Leaderboard, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboards WHERE id = $1`
	lb, err := scanLeaderboard(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgLeaderboardRepository.FindByID: %w", err)
	}
	return lb, nil
}

func (r *pgLeaderboardRepository) ListActive(ctx context.Context, page, limit int, category string) ([]model.Leaderboard, int, error) {
	where := ` WHERE is_active = TRUE AND is_archived = FALSE`
	args := []any{}
	if category != "" {
		where += ` AND category = $1`
		args = append(args, category)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leaderboards`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgLeaderboardRepository.ListActive count: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+leaderboardColumns+` FROM leaderboards`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgLeaderboardRepository.ListActive query: %w", err)
	}
	defer rows.Close()

	leaderboards := []model.Leaderboard{}
	for rows.Next() {
		lb, err := scanLeaderboard(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("pgLeaderboardRepository.ListActive scan: %w", err)
		}
		leaderboards = append(leaderboards, *lb)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgLeaderboardRepository.ListActive rows.Err: %w", err)
	}
	return leaderboards, total, nil
}

func (r *pgLeaderboardRepository) HardDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM leaderboards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgLeaderboardRepository.HardDelete: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgLeaderboardRepository) FindDueForReset(ctx context.Context, now time.Time) ([]model.Leaderboard, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboards
	          WHERE is_active = TRUE AND reset_period != 'never' AND next_reset_date <= $1`
	return r.queryLeaderboards(ctx, "FindDueForReset", query, now)
}

func (r *pgLeaderboardRepository) FindSnapshotTargets(ctx context.Context) ([]model.Leaderboard, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboards
	          WHERE is_active = TRUE AND is_archived = FALSE`
	return r.queryLeaderboards(ctx, "FindSnapshotTargets", query)
}

func (r *pgLeaderboardRepository) queryLeaderboards(ctx context.Context, op, query string, args ...any) ([]model.Leaderboard, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgLeaderboardRepository.%s query: %w", op, err)
	}
	defer rows.Close()

	var leaderboards []model.Leaderboard
	for rows.Next() {
		lb, err := scanLeaderboard(rows)
		if err != nil {
			return nil, fmt.Errorf("pgLeaderboardRepository.%s scan: %w", op, err)
		}
		leaderboards = append(leaderboards, *lb)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgLeaderboardRepository.%s rows.Err: %w", op, err)
	}
	return leaderboards, nil
}

func (r *pgLeaderboardRepository) UpdateResetDates(ctx context.Context, tx *sql.Tx, id string, lastReset time.Time, nextReset *time.Time) error {
	query := `UPDATE leaderboards SET last_reset_date = $1, next_reset_date = $2, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $3`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, lastReset, nextReset, id)
	} else {
		_, err = r.db.ExecContext(ctx, query, lastReset, nextReset, id)
	}
	if err != nil {
		return fmt.Errorf("pgLeaderboardRepository.UpdateResetDates: %w", err)
	}
	return nil
}
