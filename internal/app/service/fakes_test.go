package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/repository"
)

// The services open transactions against *sql.DB even though the fake
// repositories ignore them, so tests register a no-op driver whose
// transactions trivially commit.

type nopDriver struct{}

func (nopDriver) Open(string) (driver.Conn, error) { return &nopConn{}, nil }

type nopConn struct{}

func (*nopConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (*nopConn) Close() error                        { return nil }
func (*nopConn) Begin() (driver.Tx, error)           { return nopTx{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

var registerDriverOnce sync.Once

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	registerDriverOnce.Do(func() { sql.Register("nop", nopDriver{}) })
	db, err := sql.Open("nop", "")
	if err != nil {
		t.Fatalf("open nop db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeLeaderboardRepo struct {
	boards map[string]*model.Leaderboard
}

func newFakeLeaderboardRepo() *fakeLeaderboardRepo {
	return &fakeLeaderboardRepo{boards: make(map[string]*model.Leaderboard)}
}

func (r *fakeLeaderboardRepo) Create(_ context.Context, lb *model.Leaderboard) error {
	for _, existing := range r.boards {
		if existing.Slug == lb.Slug {
			return common.ErrConflict
		}
	}
	cp := *lb
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.boards[lb.ID] = &cp
	return nil
}

func (r *fakeLeaderboardRepo) Update(_ context.Context, _ *sql.Tx, lb *model.Leaderboard) error {
	if _, ok := r.boards[lb.ID]; !ok {
		return common.ErrNotFound
	}
	cp := *lb
	r.boards[lb.ID] = &cp
	return nil
}

func (r *fakeLeaderboardRepo) FindByID(_ context.Context, id string) (*model.Leaderboard, error) {
	lb, ok := r.boards[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *lb
	return &cp, nil
}

func (r *fakeLeaderboardRepo) ListActive(_ context.Context, page, limit int, category string) ([]model.Leaderboard, int, error) {
	var out []model.Leaderboard
	for _, lb := range r.boards {
		if !lb.IsActive || lb.IsArchived {
			continue
		}
		if category != "" && (lb.Category == nil || *lb.Category != category) {
			continue
		}
		out = append(out, *lb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *fakeLeaderboardRepo) HardDelete(_ context.Context, id string) error {
	if _, ok := r.boards[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.boards, id)
	return nil
}

func (r *fakeLeaderboardRepo) FindDueForReset(_ context.Context, now time.Time) ([]model.Leaderboard, error) {
	var due []model.Leaderboard
	for _, lb := range r.boards {
		if lb.IsActive && lb.ResetPeriod != model.ResetNever &&
			lb.NextResetDate != nil && !lb.NextResetDate.After(now) {
			due = append(due, *lb)
		}
	}
	return due, nil
}

func (r *fakeLeaderboardRepo) FindSnapshotTargets(_ context.Context) ([]model.Leaderboard, error) {
	var out []model.Leaderboard
	for _, lb := range r.boards {
		if lb.IsActive && !lb.IsArchived {
			out = append(out, *lb)
		}
	}
	return out, nil
}

func (r *fakeLeaderboardRepo) UpdateResetDates(_ context.Context, _ *sql.Tx, id string, lastReset time.Time, nextReset *time.Time) error {
	lb, ok := r.boards[id]
	if !ok {
		return common.ErrNotFound
	}
	lb.LastResetDate = &lastReset
	lb.NextResetDate = nextReset
	return nil
}

type fakeEntryRepo struct {
	entries map[string]*model.LeaderboardEntry // by entry id
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{entries: make(map[string]*model.LeaderboardEntry)}
}

func (r *fakeEntryRepo) byLeaderboard(leaderboardID string) []*model.LeaderboardEntry {
	var out []*model.LeaderboardEntry
	for _, e := range r.entries {
		if e.LeaderboardID == leaderboardID {
			out = append(out, e)
		}
	}
	return out
}

func (r *fakeEntryRepo) FindByLeaderboardAndUser(_ context.Context, _ *sql.Tx, leaderboardID, userID string) (*model.LeaderboardEntry, error) {
	for _, e := range r.entries {
		if e.LeaderboardID == leaderboardID && e.UserID == userID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeEntryRepo) Insert(_ context.Context, _ *sql.Tx, e *model.LeaderboardEntry) error {
	for _, existing := range r.entries {
		if existing.LeaderboardID == e.LeaderboardID && existing.UserID == e.UserID {
			return common.ErrConflict
		}
	}
	cp := *e
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.entries[e.ID] = &cp
	return nil
}

func (r *fakeEntryRepo) UpdateScore(_ context.Context, _ *sql.Tx, e *model.LeaderboardEntry) error {
	stored, ok := r.entries[e.ID]
	if !ok {
		return common.ErrNotFound
	}
	stored.Score = e.Score
	stored.CompletionTimeMs = e.CompletionTimeMs
	stored.Metadata = e.Metadata
	stored.IsVerified = e.IsVerified
	stored.VerifiedAt = e.VerifiedAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *fakeEntryRepo) ListForRanking(_ context.Context, _ *sql.Tx, leaderboardID string) ([]*model.LeaderboardEntry, error) {
	var out []*model.LeaderboardEntry
	for _, e := range r.byLeaderboard(leaderboardID) {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeEntryRepo) UpdateRanks(_ context.Context, _ *sql.Tx, entries []*model.LeaderboardEntry) error {
	for _, e := range entries {
		stored, ok := r.entries[e.ID]
		if !ok {
			return common.ErrNotFound
		}
		stored.Rank = e.Rank
		stored.Percentile = e.Percentile
	}
	return nil
}

func (r *fakeEntryRepo) DeleteByLeaderboard(_ context.Context, _ *sql.Tx, leaderboardID string) (int64, error) {
	var n int64
	for id, e := range r.entries {
		if e.LeaderboardID == leaderboardID {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeEntryRepo) rankOrdered(leaderboardID string) []model.LeaderboardEntry {
	list := r.byLeaderboard(leaderboardID)
	sort.Slice(list, func(i, j int) bool { return list[i].Rank < list[j].Rank })
	out := make([]model.LeaderboardEntry, len(list))
	for i, e := range list {
		out[i] = *e
	}
	return out
}

func (r *fakeEntryRepo) ListTop(_ context.Context, leaderboardID string, limit int) ([]model.LeaderboardEntry, error) {
	ordered := r.rankOrdered(leaderboardID)
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

func (r *fakeEntryRepo) ListRankWindow(_ context.Context, leaderboardID string, startRank, endRank int) ([]model.LeaderboardEntry, error) {
	var out []model.LeaderboardEntry
	for _, e := range r.rankOrdered(leaderboardID) {
		if e.Rank >= startRank && e.Rank <= endRank {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEntryRepo) ListPage(_ context.Context, leaderboardID string, offset, limit int, from *time.Time, higherIsBetter bool) ([]model.LeaderboardEntry, int, error) {
	var filtered []model.LeaderboardEntry
	for _, e := range r.byLeaderboard(leaderboardID) {
		if from != nil && e.CreatedAt.Before(*from) {
			continue
		}
		filtered = append(filtered, *e)
	}
	if from == nil {
		sort.Slice(filtered, func(i, j int) bool { return filtered[i].Rank < filtered[j].Rank })
	} else {
		sort.Slice(filtered, func(i, j int) bool {
			a, b := filtered[i], filtered[j]
			if a.Score != b.Score {
				if higherIsBetter {
					return a.Score > b.Score
				}
				return a.Score < b.Score
			}
			return a.CreatedAt.Before(b.CreatedAt)
		})
	}
	total := len(filtered)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (r *fakeEntryRepo) ListOrdered(_ context.Context, leaderboardID string) ([]model.LeaderboardEntry, error) {
	return r.rankOrdered(leaderboardID), nil
}

func (r *fakeEntryRepo) CountByLeaderboard(_ context.Context, leaderboardID string) (int, error) {
	return len(r.byLeaderboard(leaderboardID)), nil
}

func (r *fakeEntryRepo) ListByUser(_ context.Context, userID string) ([]repository.UserRanking, error) {
	var out []repository.UserRanking
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, repository.UserRanking{
				LeaderboardID: e.LeaderboardID,
				Entry:         *e,
			})
		}
	}
	return out, nil
}

func (r *fakeEntryRepo) Statistics(_ context.Context, leaderboardID string, recentSince time.Time) (*model.LeaderboardStatistics, error) {
	stats := &model.LeaderboardStatistics{}
	var sum float64
	for _, e := range r.byLeaderboard(leaderboardID) {
		stats.TotalEntries++
		sum += e.Score
		if stats.TotalEntries == 1 || e.Score > stats.HighestScore {
			stats.HighestScore = e.Score
		}
		if stats.TotalEntries == 1 || e.Score < stats.LowestScore {
			stats.LowestScore = e.Score
		}
		if !e.CreatedAt.Before(recentSince) {
			stats.RecentActivityCount++
		}
	}
	if stats.TotalEntries > 0 {
		stats.AverageScore = sum / float64(stats.TotalEntries)
	}
	return stats, nil
}

type fakeSnapshotRepo struct {
	snapshots []model.LeaderboardSnapshot
}

func (r *fakeSnapshotRepo) Create(_ context.Context, s *model.LeaderboardSnapshot) error {
	cp := *s
	cp.CreatedAt = time.Now()
	r.snapshots = append(r.snapshots, cp)
	return nil
}

func (r *fakeSnapshotRepo) ListByLeaderboard(_ context.Context, leaderboardID string, snapshotType model.SnapshotType, limit int) ([]model.LeaderboardSnapshot, error) {
	var out []model.LeaderboardSnapshot
	for _, s := range r.snapshots {
		if s.LeaderboardID != leaderboardID {
			continue
		}
		if snapshotType != "" && s.SnapshotType != snapshotType {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate.After(out[j].SnapshotDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeHistoryRepo struct {
	records []model.LeaderboardHistory
}

func (r *fakeHistoryRepo) InsertBatch(_ context.Context, records []model.LeaderboardHistory) error {
	r.records = append(r.records, records...)
	return nil
}

// fakeCache mirrors the Redis cache's JSON round-trip so type fidelity
// bugs surface in tests too.
type fakeCache struct {
	data          map[string][]byte
	invalidations []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest any) bool {
	raw, ok := c.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (c *fakeCache) Set(_ context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.data[key] = raw
}

func (c *fakeCache) DeleteByPrefix(_ context.Context, prefix string) {
	c.invalidations = append(c.invalidations, prefix)
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
}
