// Package ranking computes rank and percentile assignments for the entries
// of a single leaderboard. It owns those two fields exclusively: nothing
// else in the codebase writes Rank or Percentile.
package ranking

import (
	"sort"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

// Direction is the sort order applied to scores.
type Direction int

const (
	Descending Direction = iota // higher score is better
	Ascending                   // lower score is better
)

// DirectionFor maps a scoring model to its sort direction.
func DirectionFor(m model.ScoringModel) Direction {
	if m.HigherIsBetter() {
		return Descending
	}
	return Ascending
}

// Rank sorts entries by score in the given direction and assigns strict
// positional ranks (1-based) and percentiles in place, returning the same
// slice in rank order.
//
// Ties are broken by submission time ascending, then by entry id, so a
// recomputation over unchanged data always yields the same assignment.
// Percentile is (total-rank)/total*100; a single entry gets rank 1,
// percentile 100. An empty slice is returned as-is.
func Rank(entries []*model.LeaderboardEntry, dir Direction) []*model.LeaderboardEntry {
	total := len(entries)
	if total == 0 {
		return entries
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			if dir == Descending {
				return a.Score > b.Score
			}
			return a.Score < b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	for i, e := range entries {
		e.Rank = i + 1
		if total <= 1 {
			e.Percentile = 100
		} else {
			e.Percentile = float64(total-e.Rank) / float64(total) * 100
		}
	}
	return entries
}
