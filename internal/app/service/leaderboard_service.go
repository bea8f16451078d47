package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/repository"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/platform/metrics"
)

const (
	defaultMaxEntries        = 100
	defaultEntryLimitPerUser = 1
	historyLimit             = 10
	statisticsRecentWindow   = 24 * time.Hour
)

type CreateLeaderboardRequest struct {
	Name                  string         `json:"name"`
	Description           *string        `json:"description,omitempty"`
	ScoringModel          string         `json:"scoring_model,omitempty"`
	ResetPeriod           string         `json:"reset_period,omitempty"`
	Category              *string        `json:"category,omitempty"`
	IsPublic              *bool          `json:"is_public,omitempty"`
	MaxEntries            *int           `json:"max_entries,omitempty"`
	EntryLimitPerUser     *int           `json:"entry_limit_per_user,omitempty"`
	MinimumScoreThreshold *float64       `json:"minimum_score_threshold,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

type UpdateLeaderboardRequest struct {
	Name                  *string        `json:"name,omitempty"`
	Description           *string        `json:"description,omitempty"`
	ScoringModel          *string        `json:"scoring_model,omitempty"`
	ResetPeriod           *string        `json:"reset_period,omitempty"`
	Category              *string        `json:"category,omitempty"`
	IsActive              *bool          `json:"is_active,omitempty"`
	IsPublic              *bool          `json:"is_public,omitempty"`
	MaxEntries            *int           `json:"max_entries,omitempty"`
	EntryLimitPerUser     *int           `json:"entry_limit_per_user,omitempty"`
	MinimumScoreThreshold *float64       `json:"minimum_score_threshold,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// LeaderboardService owns the leaderboard lifecycle: CRUD, manual rank
// recalculation, resets with pre-reset snapshots, and the snapshot /
// history / statistics views. The rollover worker drives Reset and
// CreateSnapshot on its schedule.
type LeaderboardService struct {
	db              *sql.DB
	leaderboardRepo repository.LeaderboardRepository
	entryRepo       repository.EntryRepository
	snapshotRepo    repository.SnapshotRepository
	historyRepo     repository.HistoryRepository
	cache           RankingCache
	locks           *LockRegistry
}

func NewLeaderboardService(
	db *sql.DB,
	leaderboardRepo repository.LeaderboardRepository,
	entryRepo repository.EntryRepository,
	snapshotRepo repository.SnapshotRepository,
	historyRepo repository.HistoryRepository,
	cache RankingCache,
	locks *LockRegistry,
) *LeaderboardService {
	return &LeaderboardService{
		db:              db,
		leaderboardRepo: leaderboardRepo,
		entryRepo:       entryRepo,
		snapshotRepo:    snapshotRepo,
		historyRepo:     historyRepo,
		cache:           cache,
		locks:           locks,
	}
}

func (s *LeaderboardService) Create(ctx context.Context, req CreateLeaderboardRequest) (*model.Leaderboard, error) {
	if req.Name == "" || len(req.Name) > 100 {
		return nil, fmt.Errorf("name must be between 1 and 100 characters: %w", common.ErrBadRequest)
	}

	scoringModel := model.ScoringModel(req.ScoringModel)
	if scoringModel == "" {
		scoringModel = model.ScoringHighestScore
	}
	if !scoringModel.Valid() {
		return nil, fmt.Errorf("unknown scoring model %q: %w", req.ScoringModel, common.ErrBadRequest)
	}

	resetPeriod := model.ResetPeriod(req.ResetPeriod)
	if resetPeriod == "" {
		resetPeriod = model.ResetNever
	}
	if !resetPeriod.Valid() {
		return nil, fmt.Errorf("unknown reset period %q: %w", req.ResetPeriod, common.ErrBadRequest)
	}

	now := time.Now()
	lb := &model.Leaderboard{
		ID:                    uuid.New().String(),
		Name:                  req.Name,
		Slug:                  slug.Make(req.Name),
		Description:           req.Description,
		ScoringModel:          scoringModel,
		ResetPeriod:           resetPeriod,
		Category:              req.Category,
		IsActive:              true,
		Metadata:              req.Metadata,
		MaxEntries:            defaultMaxEntries,
		EntryLimitPerUser:     defaultEntryLimitPerUser,
		MinimumScoreThreshold: 0,
		NextResetDate:         nextResetDate(resetPeriod, now),
	}
	if req.IsPublic != nil {
		lb.IsPublic = *req.IsPublic
	}
	if req.MaxEntries != nil {
		lb.MaxEntries = *req.MaxEntries
	}
	if req.EntryLimitPerUser != nil {
		lb.EntryLimitPerUser = *req.EntryLimitPerUser
	}
	if req.MinimumScoreThreshold != nil {
		lb.MinimumScoreThreshold = *req.MinimumScoreThreshold
	}

	if err := s.leaderboardRepo.Create(ctx, lb); err != nil {
		return nil, err
	}
	return s.leaderboardRepo.FindByID(ctx, lb.ID)
}

func (s *LeaderboardService) List(ctx context.Context, page, limit int, category string) ([]model.Leaderboard, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	return s.leaderboardRepo.ListActive(ctx, page, limit, category)
}

func (s *LeaderboardService) Get(ctx context.Context, id string) (*model.Leaderboard, error) {
	return s.leaderboardRepo.FindByID(ctx, id)
}

func (s *LeaderboardService) Update(ctx context.Context, id string, req UpdateLeaderboardRequest) (*model.Leaderboard, error) {
	lb, err := s.leaderboardRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" || len(*req.Name) > 100 {
			return nil, fmt.Errorf("name must be between 1 and 100 characters: %w", common.ErrBadRequest)
		}
		lb.Name = *req.Name
	}
	if req.Description != nil {
		lb.Description = req.Description
	}
	if req.ScoringModel != nil {
		m := model.ScoringModel(*req.ScoringModel)
		if !m.Valid() {
			return nil, fmt.Errorf("unknown scoring model %q: %w", *req.ScoringModel, common.ErrBadRequest)
		}
		lb.ScoringModel = m
	}
	if req.ResetPeriod != nil {
		p := model.ResetPeriod(*req.ResetPeriod)
		if !p.Valid() {
			return nil, fmt.Errorf("unknown reset period %q: %w", *req.ResetPeriod, common.ErrBadRequest)
		}
		if p != lb.ResetPeriod {
			lb.ResetPeriod = p
			lb.NextResetDate = nextResetDate(p, time.Now())
		}
	}
	if req.Category != nil {
		lb.Category = req.Category
	}
	if req.IsActive != nil {
		lb.IsActive = *req.IsActive
	}
	if req.IsPublic != nil {
		lb.IsPublic = *req.IsPublic
	}
	if req.MaxEntries != nil {
		lb.MaxEntries = *req.MaxEntries
	}
	if req.EntryLimitPerUser != nil {
		lb.EntryLimitPerUser = *req.EntryLimitPerUser
	}
	if req.MinimumScoreThreshold != nil {
		lb.MinimumScoreThreshold = *req.MinimumScoreThreshold
	}
	if req.Metadata != nil {
		lb.Metadata = req.Metadata
	}

	if err := s.leaderboardRepo.Update(ctx, nil, lb); err != nil {
		return nil, err
	}
	// A scoring model change flips the ranking direction, so cached views
	// cannot be trusted past this point.
	s.cache.DeleteByPrefix(ctx, leaderboardCachePrefix(id))
	return s.leaderboardRepo.FindByID(ctx, id)
}

// SoftDelete archives and deactivates the leaderboard; entries and
// snapshots are kept.
func (s *LeaderboardService) SoftDelete(ctx context.Context, id string) error {
	lb, err := s.leaderboardRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	lb.IsActive = false
	lb.IsArchived = true
	if err := s.leaderboardRepo.Update(ctx, nil, lb); err != nil {
		return err
	}
	s.cache.DeleteByPrefix(ctx, leaderboardCachePrefix(id))
	return nil
}

// HardDelete removes the leaderboard and, via cascade, its entries,
// snapshots, and history.
func (s *LeaderboardService) HardDelete(ctx context.Context, id string) error {
	if err := s.leaderboardRepo.HardDelete(ctx, id); err != nil {
		return err
	}
	s.cache.DeleteByPrefix(ctx, leaderboardCachePrefix(id))
	return nil
}

// Recalculate replays the full ranking pass over the current entries.
// Useful after manual data fixes; a no-op on consistent data.
func (s *LeaderboardService) Recalculate(ctx context.Context, id string) error {
	lb, err := s.leaderboardRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("LeaderboardService.Recalculate begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := recomputeRankings(ctx, tx, s.entryRepo, lb); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("LeaderboardService.Recalculate commit: %w", err)
	}
	s.cache.DeleteByPrefix(ctx, leaderboardCachePrefix(id))
	return nil
}

// CreateSnapshot captures the current ranked entry list. Daily snapshots
// additionally append per-user history rows.
func (s *LeaderboardService) CreateSnapshot(ctx context.Context, id string, snapshotType model.SnapshotType) (*model.LeaderboardSnapshot, error) {
	if !snapshotType.Valid() {
		return nil, fmt.Errorf("unknown snapshot type %q: %w", snapshotType, common.ErrBadRequest)
	}
	if _, err := s.leaderboardRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}

	entries, err := s.entryRepo.ListOrdered(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rows := make([]model.SnapshotRow, len(entries))
	for i, e := range entries {
		rows[i] = model.SnapshotRow{
			UserID:     e.UserID,
			Username:   e.Username,
			Score:      e.Score,
			Rank:       e.Rank,
			Percentile: e.Percentile,
		}
	}

	snapshot := &model.LeaderboardSnapshot{
		ID:            uuid.New().String(),
		LeaderboardID: id,
		SnapshotDate:  now,
		SnapshotType:  snapshotType,
		Data:          rows,
	}
	if err := s.snapshotRepo.Create(ctx, snapshot); err != nil {
		return nil, err
	}

	if snapshotType == model.SnapshotDaily {
		records := make([]model.LeaderboardHistory, len(entries))
		for i, e := range entries {
			records[i] = model.LeaderboardHistory{
				ID:            uuid.New().String(),
				LeaderboardID: id,
				UserID:        e.UserID,
				Score:         e.Score,
				Rank:          e.Rank,
				Percentile:    e.Percentile,
				RecordDate:    now,
			}
		}
		if err := s.historyRepo.InsertBatch(ctx, records); err != nil {
			return nil, err
		}
	}

	metrics.SnapshotsTaken.WithLabelValues(string(snapshotType)).Inc()
	return snapshot, nil
}

// Reset snapshots the board, clears all entries, and advances the reset
// dates. Driven by the rollover worker at period boundaries and available
// manually to admins.
func (s *LeaderboardService) Reset(ctx context.Context, id string, snapshotType model.SnapshotType) error {
	lb, err := s.leaderboardRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	// The snapshot is taken before the wipe so a reset can never lose the
	// final standings; if the wipe fails the extra snapshot is harmless.
	if _, err := s.CreateSnapshot(ctx, id, snapshotType); err != nil {
		return fmt.Errorf("pre-reset snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("LeaderboardService.Reset begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.entryRepo.DeleteByLeaderboard(ctx, tx, id); err != nil {
		return err
	}
	now := time.Now()
	if err := s.leaderboardRepo.UpdateResetDates(ctx, tx, id, now, nextResetDate(lb.ResetPeriod, now)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("LeaderboardService.Reset commit: %w", err)
	}

	s.cache.DeleteByPrefix(ctx, leaderboardCachePrefix(id))
	metrics.RolloverResets.Inc()
	return nil
}

// GetHistory returns the latest snapshots, newest first, optionally
// filtered by type.
func (s *LeaderboardService) GetHistory(ctx context.Context, id string, snapshotType model.SnapshotType) ([]model.LeaderboardSnapshot, error) {
	if snapshotType != "" && !snapshotType.Valid() {
		return nil, fmt.Errorf("unknown snapshot type %q: %w", snapshotType, common.ErrBadRequest)
	}
	if _, err := s.leaderboardRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.snapshotRepo.ListByLeaderboard(ctx, id, snapshotType, historyLimit)
}

// GetUserRankings returns the user's entries across all active
// leaderboards.
func (s *LeaderboardService) GetUserRankings(ctx context.Context, userID string) ([]repository.UserRanking, error) {
	return s.entryRepo.ListByUser(ctx, userID)
}

func (s *LeaderboardService) GetStatistics(ctx context.Context, id string) (*model.LeaderboardStatistics, error) {
	if _, err := s.leaderboardRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.entryRepo.Statistics(ctx, id, time.Now().Add(-statisticsRecentWindow))
}
