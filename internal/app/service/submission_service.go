package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/ranking"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/repository"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/platform/metrics"
)

type SubmitScoreRequest struct {
	Score            float64        `json:"score"`
	CompletionTimeMs *int64         `json:"completion_time_ms,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// SubmissionService accepts score submissions, applies the leaderboard's
// acceptance policy, and keeps ranks consistent by recomputing the full
// ranking in the same transaction as the write.
type SubmissionService struct {
	db              *sql.DB
	leaderboardRepo repository.LeaderboardRepository
	entryRepo       repository.EntryRepository
	cache           RankingCache
	locks           *LockRegistry
}

func NewSubmissionService(db *sql.DB, leaderboardRepo repository.LeaderboardRepository, entryRepo repository.EntryRepository, cache RankingCache, locks *LockRegistry) *SubmissionService {
	return &SubmissionService{
		db:              db,
		leaderboardRepo: leaderboardRepo,
		entryRepo:       entryRepo,
		cache:           cache,
		locks:           locks,
	}
}

// Submit records a score for the user on the given leaderboard. Policy
// checks run in a fixed order: existence, active flag, non-negative score,
// minimum threshold, then improvement over any existing entry. Anti-cheat
// runs after policy and only flags; a failed check never rejects.
func (s *SubmissionService) Submit(ctx context.Context, leaderboardID, userID, username string, req SubmitScoreRequest) (*model.LeaderboardEntry, error) {
	lb, err := s.leaderboardRepo.FindByID(ctx, leaderboardID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("leaderboard not found: %w", common.ErrNotFound)
		}
		return nil, err
	}
	if !lb.IsActive {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("leaderboard is not active: %w", common.ErrPolicyViolation)
	}
	if req.Score < 0 {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("score must be non-negative: %w", common.ErrPolicyViolation)
	}
	if req.Score < lb.MinimumScoreThreshold {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("score is below the minimum threshold of %v: %w",
			lb.MinimumScoreThreshold, common.ErrPolicyViolation)
	}

	unlock := s.locks.Lock(leaderboardID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SubmissionService.Submit begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	verified := verifyScore(req.Score, req.Metadata, lb.ScoringModel, now)

	existing, err := s.entryRepo.FindByLeaderboardAndUser(ctx, tx, leaderboardID, userID)
	var entry *model.LeaderboardEntry
	switch {
	case err == nil:
		if !improves(lb.ScoringModel, existing.Score, req.Score) {
			metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
			if lb.ScoringModel.HigherIsBetter() {
				return nil, fmt.Errorf("submitted score does not beat the existing score of %v: %w",
					existing.Score, common.ErrPolicyViolation)
			}
			return nil, fmt.Errorf("submitted score is not lower than the existing score of %v: %w",
				existing.Score, common.ErrPolicyViolation)
		}
		existing.Score = req.Score
		existing.CompletionTimeMs = req.CompletionTimeMs
		existing.Metadata = mergeMetadata(existing.Metadata, req.Metadata)
		applyVerification(existing, verified, now)
		if err := s.entryRepo.UpdateScore(ctx, tx, existing); err != nil {
			return nil, err
		}
		entry = existing

	case errors.Is(err, common.ErrNotFound):
		entry = &model.LeaderboardEntry{
			ID:               uuid.New().String(),
			LeaderboardID:    leaderboardID,
			UserID:           userID,
			Username:         username,
			Score:            req.Score,
			CompletionTimeMs: req.CompletionTimeMs,
			Metadata:         req.Metadata,
			CreatedAt:        now,
		}
		applyVerification(entry, verified, now)
		if err := s.entryRepo.Insert(ctx, tx, entry); err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	ranked, err := recomputeRankings(ctx, tx, s.entryRepo, lb)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SubmissionService.Submit commit: %w", err)
	}

	s.cache.DeleteByPrefix(ctx, leaderboardCachePrefix(leaderboardID))

	if verified {
		metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	} else {
		metrics.SubmissionsTotal.WithLabelValues("unverified").Inc()
	}

	// The recompute re-read the row inside the tx; copy the fresh rank
	// back onto the entry we hand to the caller.
	for _, e := range ranked {
		if e.ID == entry.ID {
			entry.Rank = e.Rank
			entry.Percentile = e.Percentile
			break
		}
	}
	return entry, nil
}

// improves reports whether newScore beats oldScore in the leaderboard's
// direction. Equal scores are never an improvement.
func improves(m model.ScoringModel, oldScore, newScore float64) bool {
	if m.HigherIsBetter() {
		return newScore > oldScore
	}
	return newScore < oldScore
}

// mergeMetadata overlays the submission's metadata on the stored map;
// new keys win on conflict.
func mergeMetadata(existing, incoming map[string]any) map[string]any {
	if len(incoming) == 0 {
		return existing
	}
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

func applyVerification(e *model.LeaderboardEntry, verified bool, now time.Time) {
	e.IsVerified = verified
	if verified {
		e.VerifiedAt = &now
	} else {
		e.VerifiedAt = nil
	}
}

// recomputeRankings re-ranks every entry of the leaderboard inside the
// caller's transaction and persists the assignments. Returns the entries
// in rank order.
func recomputeRankings(ctx context.Context, tx *sql.Tx, entryRepo repository.EntryRepository, lb *model.Leaderboard) ([]*model.LeaderboardEntry, error) {
	timer := time.Now()
	entries, err := entryRepo.ListForRanking(ctx, tx, lb.ID)
	if err != nil {
		return nil, err
	}
	ranked := ranking.Rank(entries, ranking.DirectionFor(lb.ScoringModel))
	if err := entryRepo.UpdateRanks(ctx, tx, ranked); err != nil {
		return nil, err
	}
	metrics.RecomputeDuration.Observe(time.Since(timer).Seconds())
	return ranked, nil
}
