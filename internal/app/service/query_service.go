package service

import (
	"context"
	"errors"
	"time"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/repository"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/platform/metrics"
)

const (
	defaultPageLimit = 20
	defaultTopLimit  = 10
	maxTopLimit      = 100
	defaultRange     = 5
)

// RankingsPage is one page of the paginated ranking view.
type RankingsPage struct {
	Data  []model.LeaderboardEntry `json:"data"`
	Total int                      `json:"total"`
	Page  int                      `json:"page"`
	Limit int                      `json:"limit"`
}

// AroundUserResult is the contextual view centered on one user. When the
// user has no entry, UserEntry is nil, Rankings falls back to the top of
// the board, and UserPosition is the zero sentinel.
type AroundUserResult struct {
	UserEntry    *model.LeaderboardEntry  `json:"user_entry"`
	Rankings     []model.LeaderboardEntry `json:"rankings"`
	UserPosition model.UserPosition       `json:"user_position"`
}

// QueryService serves the read-side ranking views, fronted by a TTL cache
// on the hot top-N and paginated shapes.
type QueryService struct {
	leaderboardRepo repository.LeaderboardRepository
	entryRepo       repository.EntryRepository
	cache           RankingCache
}

func NewQueryService(leaderboardRepo repository.LeaderboardRepository, entryRepo repository.EntryRepository, cache RankingCache) *QueryService {
	return &QueryService{
		leaderboardRepo: leaderboardRepo,
		entryRepo:       entryRepo,
		cache:           cache,
	}
}

// TopRankings returns the first limit entries in rank order. Limit defaults
// to 10 and is capped at 100.
func (s *QueryService) TopRankings(ctx context.Context, leaderboardID string, limit int) ([]model.LeaderboardEntry, error) {
	if _, err := s.leaderboardRepo.FindByID(ctx, leaderboardID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	key := topCacheKey(leaderboardID, limit)
	var cached []model.LeaderboardEntry
	if s.cache.Get(ctx, key, &cached) {
		metrics.CacheHits.Inc()
		return cached, nil
	}
	metrics.CacheMisses.Inc()

	entries, err := s.entryRepo.ListTop(ctx, leaderboardID, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, entries)
	return entries, nil
}

// PaginatedRankings returns one page of the ranking view, optionally
// restricted to entries created within the given time frame.
func (s *QueryService) PaginatedRankings(ctx context.Context, leaderboardID string, page, limit int, tf model.TimeFrame) (*RankingsPage, error) {
	lb, err := s.leaderboardRepo.FindByID(ctx, leaderboardID)
	if err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	if tf == "" {
		tf = model.TimeFrameAllTime
	}

	key := rankingsCacheKey(leaderboardID, page, limit, tf)
	var cached RankingsPage
	if s.cache.Get(ctx, key, &cached) {
		metrics.CacheHits.Inc()
		return &cached, nil
	}
	metrics.CacheMisses.Inc()

	from := timeFrameStart(tf, time.Now())
	entries, total, err := s.entryRepo.ListPage(ctx, leaderboardID, (page-1)*limit, limit, from, lb.ScoringModel.HigherIsBetter())
	if err != nil {
		return nil, err
	}
	result := &RankingsPage{Data: entries, Total: total, Page: page, Limit: limit}
	s.cache.Set(ctx, key, result)
	return result, nil
}

// RankingsAroundUser returns the window of entries whose ranks fall within
// rng of the user's rank, clamped at the top of the board.
func (s *QueryService) RankingsAroundUser(ctx context.Context, leaderboardID, userID string, rng int) (*AroundUserResult, error) {
	if _, err := s.leaderboardRepo.FindByID(ctx, leaderboardID); err != nil {
		return nil, err
	}
	if rng <= 0 {
		rng = defaultRange
	}

	entry, err := s.entryRepo.FindByLeaderboardAndUser(ctx, nil, leaderboardID, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			top, err := s.TopRankings(ctx, leaderboardID, rng*2)
			if err != nil {
				return nil, err
			}
			return &AroundUserResult{Rankings: top}, nil
		}
		return nil, err
	}

	total, err := s.entryRepo.CountByLeaderboard(ctx, leaderboardID)
	if err != nil {
		return nil, err
	}

	start := entry.Rank - rng
	if start < 1 {
		start = 1
	}
	rankings, err := s.entryRepo.ListRankWindow(ctx, leaderboardID, start, entry.Rank+rng)
	if err != nil {
		return nil, err
	}

	return &AroundUserResult{
		UserEntry: entry,
		Rankings:  rankings,
		UserPosition: model.UserPosition{
			Rank:       entry.Rank,
			Percentile: entry.Percentile,
			Total:      total,
		},
	}, nil
}

// UserPosition reports where the user stands. The zero value means the
// user has no entry on this leaderboard.
func (s *QueryService) UserPosition(ctx context.Context, leaderboardID, userID string) (model.UserPosition, error) {
	if _, err := s.leaderboardRepo.FindByID(ctx, leaderboardID); err != nil {
		return model.UserPosition{}, err
	}

	entry, err := s.entryRepo.FindByLeaderboardAndUser(ctx, nil, leaderboardID, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return model.UserPosition{}, nil
		}
		return model.UserPosition{}, err
	}

	total, err := s.entryRepo.CountByLeaderboard(ctx, leaderboardID)
	if err != nil {
		return model.UserPosition{}, err
	}
	return model.UserPosition{Rank: entry.Rank, Percentile: entry.Percentile, Total: total}, nil
}
