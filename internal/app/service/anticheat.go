package service

import (
	"math"
	"time"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

const (
	// Scores above this are considered implausible for any game mode.
	implausibleScoreCeiling = 1_000_000_000

	// Maximum tolerated gap between server time and the client-reported
	// submission timestamp.
	maxClientClockDrift = 300_000 * time.Millisecond
)

// verifyScore runs the advisory anti-cheat heuristics over a submission.
// A failed check marks the entry unverified; it never blocks persistence
// or ranking. Callers needing strict gating filter on is_verified.
func verifyScore(score float64, metadata map[string]any, scoringModel model.ScoringModel, now time.Time) bool {
	if score > implausibleScoreCeiling {
		return false
	}

	clientTS, hasTimestamp := metadata["clientTimestamp"]
	_, hasSession := metadata["gameSession"]
	if !hasTimestamp && !hasSession {
		return false
	}

	if hasTimestamp {
		clientTime, ok := parseClientTimestamp(clientTS)
		if !ok {
			return false
		}
		drift := now.Sub(clientTime)
		if time.Duration(math.Abs(float64(drift))) > maxClientClockDrift {
			return false
		}
	}

	if scoringModel == model.ScoringFastestCompletion {
		_, hasStart := metadata["startTime"]
		_, hasEnd := metadata["endTime"]
		if !hasStart && !hasEnd {
			return false
		}
	}

	return true
}

// parseClientTimestamp accepts either a millisecond epoch (JSON number) or
// an RFC 3339 string.
func parseClientTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case float64:
		return time.UnixMilli(int64(ts)), true
	case int64:
		return time.UnixMilli(ts), true
	case string:
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
