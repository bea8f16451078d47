package service

import (
	"context"
	"fmt"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

// RankingCache is the slice of the cache the query path needs. Satisfied by
// cache.RedisCache; tests plug in an in-memory fake.
type RankingCache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
	DeleteByPrefix(ctx context.Context, prefix string)
}

// Every cached view of a leaderboard shares this prefix so a single
// DeleteByPrefix after a write drops all of them at once.
func leaderboardCachePrefix(leaderboardID string) string {
	return "leaderboard:" + leaderboardID + ":"
}

func rankingsCacheKey(leaderboardID string, page, limit int, tf model.TimeFrame) string {
	return fmt.Sprintf("%srankings:%d:%d:%s", leaderboardCachePrefix(leaderboardID), page, limit, tf)
}

func topCacheKey(leaderboardID string, limit int) string {
	return fmt.Sprintf("%stop:%d", leaderboardCachePrefix(leaderboardID), limit)
}
