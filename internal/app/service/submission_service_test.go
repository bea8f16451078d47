package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

func newSubmissionFixture(t *testing.T, lb *model.Leaderboard) (*SubmissionService, *fakeLeaderboardRepo, *fakeEntryRepo, *fakeCache) {
	t.Helper()
	lbRepo := newFakeLeaderboardRepo()
	entryRepo := newFakeEntryRepo()
	cache := newFakeCache()
	if lb != nil {
		require.NoError(t, lbRepo.Create(context.Background(), lb))
	}
	svc := NewSubmissionService(newTestDB(t), lbRepo, entryRepo, cache, NewLockRegistry(0))
	return svc, lbRepo, entryRepo, cache
}

func testLeaderboard(id string, scoring model.ScoringModel) *model.Leaderboard {
	return &model.Leaderboard{
		ID:           id,
		Name:         "Test Board",
		Slug:         "test-board-" + id,
		ScoringModel: scoring,
		ResetPeriod:  model.ResetNever,
		IsActive:     true,
		IsPublic:     true,
	}
}

func verifiedMetadata() map[string]any {
	return map[string]any{"gameSession": "sess-1"}
}

func TestSubmitUnknownLeaderboard(t *testing.T) {
	svc, _, _, _ := newSubmissionFixture(t, nil)

	_, err := svc.Submit(context.Background(), "missing", "u1", "alice", SubmitScoreRequest{Score: 10})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSubmitInactiveLeaderboard(t *testing.T) {
	lb := testLeaderboard("lb1", model.ScoringHighestScore)
	lb.IsActive = false
	svc, _, _, _ := newSubmissionFixture(t, lb)

	_, err := svc.Submit(context.Background(), "lb1", "u1", "alice", SubmitScoreRequest{Score: 10})
	assert.ErrorIs(t, err, common.ErrPolicyViolation)
}

func TestSubmitNegativeScore(t *testing.T) {
	svc, _, _, _ := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringHighestScore))

	_, err := svc.Submit(context.Background(), "lb1", "u1", "alice", SubmitScoreRequest{Score: -1})
	assert.ErrorIs(t, err, common.ErrPolicyViolation)
}

func TestSubmitBelowThreshold(t *testing.T) {
	lb := testLeaderboard("lb1", model.ScoringHighestScore)
	lb.MinimumScoreThreshold = 50
	svc, _, _, _ := newSubmissionFixture(t, lb)

	_, err := svc.Submit(context.Background(), "lb1", "u1", "alice", SubmitScoreRequest{Score: 49})
	assert.ErrorIs(t, err, common.ErrPolicyViolation)
	assert.Contains(t, err.Error(), "threshold")

	entry, err := svc.Submit(context.Background(), "lb1", "u1", "alice", SubmitScoreRequest{Score: 50, Metadata: verifiedMetadata()})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Rank)
}

func TestSubmitFirstEntryGetsRankOne(t *testing.T) {
	svc, _, entryRepo, _ := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringHighestScore))

	entry, err := svc.Submit(context.Background(), "lb1", "u1", "alice", SubmitScoreRequest{Score: 100, Metadata: verifiedMetadata()})
	require.NoError(t, err)

	assert.Equal(t, 1, entry.Rank)
	assert.Equal(t, float64(100), entry.Percentile)
	assert.True(t, entry.IsVerified)

	stored, err := entryRepo.FindByLeaderboardAndUser(context.Background(), nil, "lb1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Rank)
}

func TestSubmitImprovementPolicyHighestScore(t *testing.T) {
	svc, _, _, _ := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringHighestScore))
	ctx := context.Background()

	_, err := svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 100, Metadata: verifiedMetadata()})
	require.NoError(t, err)

	// Equal and lower scores are not improvements.
	_, err = svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 100, Metadata: verifiedMetadata()})
	assert.ErrorIs(t, err, common.ErrPolicyViolation)
	_, err = svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 50, Metadata: verifiedMetadata()})
	assert.ErrorIs(t, err, common.ErrPolicyViolation)

	entry, err := svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 150, Metadata: verifiedMetadata()})
	require.NoError(t, err)
	assert.Equal(t, float64(150), entry.Score)
}

func TestSubmitImprovementPolicyFastestCompletion(t *testing.T) {
	meta := map[string]any{"gameSession": "s", "startTime": 1, "endTime": 2}
	svc, _, _, _ := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringFastestCompletion))
	ctx := context.Background()

	_, err := svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 300, Metadata: meta})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 400, Metadata: meta})
	assert.ErrorIs(t, err, common.ErrPolicyViolation)

	entry, err := svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 200, Metadata: meta})
	require.NoError(t, err)
	assert.Equal(t, float64(200), entry.Score)
}

func TestSubmitOneEntryPerUser(t *testing.T) {
	svc, _, entryRepo, _ := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringHighestScore))
	ctx := context.Background()

	first, err := svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 10, Metadata: verifiedMetadata()})
	require.NoError(t, err)
	second, err := svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 20, Metadata: verifiedMetadata()})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "improvement must update the existing entry, not add a second one")
	count, err := entryRepo.CountByLeaderboard(ctx, "lb1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSubmitRecomputesAllRanks(t *testing.T) {
	svc, _, entryRepo, _ := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringHighestScore))
	ctx := context.Background()

	_, err := svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{Score: 100, Metadata: verifiedMetadata()})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "lb1", "u2", "bob", SubmitScoreRequest{Score: 200, Metadata: verifiedMetadata()})
	require.NoError(t, err)
	entry, err := svc.Submit(ctx, "lb1", "u3", "carol", SubmitScoreRequest{Score: 150, Metadata: verifiedMetadata()})
	require.NoError(t, err)

	assert.Equal(t, 2, entry.Rank)

	top, err := entryRepo.ListTop(ctx, "lb1", 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "u2", top[0].UserID)
	assert.Equal(t, "u3", top[1].UserID)
	assert.Equal(t, "u1", top[2].UserID)
}

func TestSubmitUnverifiedStillRanked(t *testing.T) {
	svc, _, _, _ := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringHighestScore))

	// No session and no client timestamp: flagged, never rejected.
	entry, err := svc.Submit(context.Background(), "lb1", "u1", "alice", SubmitScoreRequest{Score: 10})
	require.NoError(t, err)
	assert.False(t, entry.IsVerified)
	assert.Nil(t, entry.VerifiedAt)
	assert.Equal(t, 1, entry.Rank)
}

func TestSubmitMergesMetadataNewKeysWin(t *testing.T) {
	svc, _, entryRepo, _ := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringHighestScore))
	ctx := context.Background()

	_, err := svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{
		Score:    10,
		Metadata: map[string]any{"gameSession": "s1", "device": "phone"},
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "lb1", "u1", "alice", SubmitScoreRequest{
		Score:    20,
		Metadata: map[string]any{"gameSession": "s2", "region": "eu"},
	})
	require.NoError(t, err)

	stored, err := entryRepo.FindByLeaderboardAndUser(ctx, nil, "lb1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "s2", stored.Metadata["gameSession"])
	assert.Equal(t, "phone", stored.Metadata["device"])
	assert.Equal(t, "eu", stored.Metadata["region"])
}

func TestSubmitInvalidatesCache(t *testing.T) {
	svc, _, _, cache := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringHighestScore))

	cache.Set(context.Background(), topCacheKey("lb1", 10), []model.LeaderboardEntry{})
	cache.Set(context.Background(), topCacheKey("lb2", 10), []model.LeaderboardEntry{})

	_, err := svc.Submit(context.Background(), "lb1", "u1", "alice", SubmitScoreRequest{Score: 10, Metadata: verifiedMetadata()})
	require.NoError(t, err)

	_, survived := cache.data[topCacheKey("lb1", 10)]
	assert.False(t, survived, "writes must drop every cached view of the board")
	_, other := cache.data[topCacheKey("lb2", 10)]
	assert.True(t, other, "other boards' cache entries are untouched")
}

func TestImproves(t *testing.T) {
	assert.True(t, improves(model.ScoringHighestScore, 10, 20))
	assert.False(t, improves(model.ScoringHighestScore, 20, 20))
	assert.False(t, improves(model.ScoringHighestScore, 20, 10))

	assert.True(t, improves(model.ScoringFastestCompletion, 20, 10))
	assert.False(t, improves(model.ScoringFastestCompletion, 10, 10))
	assert.False(t, improves(model.ScoringFastestCompletion, 10, 20))
}

func TestMergeMetadataNilCases(t *testing.T) {
	assert.Nil(t, mergeMetadata(nil, nil))

	existing := map[string]any{"a": 1}
	assert.Equal(t, existing, mergeMetadata(existing, nil))

	merged := mergeMetadata(nil, map[string]any{"b": 2})
	assert.Equal(t, map[string]any{"b": 2}, merged)
}

func TestSubmitConcurrentSameBoardSerialized(t *testing.T) {
	svc, _, entryRepo, _ := newSubmissionFixture(t, testLeaderboard("lb1", model.ScoringHighestScore))
	ctx := context.Background()

	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			_, err := svc.Submit(ctx, "lb1", userID(n), "user", SubmitScoreRequest{
				Score:    float64(100 + n),
				Metadata: verifiedMetadata(),
			})
			errs <- err
		}(i)
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-errs)
	}

	ordered, err := entryRepo.ListOrdered(ctx, "lb1")
	require.NoError(t, err)
	require.Len(t, ordered, writers)
	for i, e := range ordered {
		assert.Equal(t, i+1, e.Rank, "ranks must be contiguous after concurrent writes")
	}
}

func userID(n int) string {
	return "user-" + string(rune('a'+n))
}

func TestSubmitRejectionsDoNotWrite(t *testing.T) {
	lb := testLeaderboard("lb1", model.ScoringHighestScore)
	lb.MinimumScoreThreshold = 10
	svc, _, entryRepo, _ := newSubmissionFixture(t, lb)

	_, err := svc.Submit(context.Background(), "lb1", "u1", "alice", SubmitScoreRequest{Score: 5})
	require.Error(t, err)
	require.True(t, errors.Is(err, common.ErrPolicyViolation))

	count, err := entryRepo.CountByLeaderboard(context.Background(), "lb1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestApplyVerification(t *testing.T) {
	now := time.Now()
	e := &model.LeaderboardEntry{}

	applyVerification(e, true, now)
	assert.True(t, e.IsVerified)
	require.NotNil(t, e.VerifiedAt)
	assert.Equal(t, now, *e.VerifiedAt)

	applyVerification(e, false, now)
	assert.False(t, e.IsVerified)
	assert.Nil(t, e.VerifiedAt)
}
