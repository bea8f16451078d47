package model

import (
	"time"
)

type ScoringModel string
type ResetPeriod string
type SnapshotType string
type TimeFrame string

const (
	ScoringHighestScore      ScoringModel = "highest_score"
	ScoringFastestCompletion ScoringModel = "fastest_completion"
	ScoringLowestAttempts    ScoringModel = "lowest_attempts"
	ScoringHighestAccuracy   ScoringModel = "highest_accuracy"

	ResetDaily   ResetPeriod = "daily"
	ResetWeekly  ResetPeriod = "weekly"
	ResetMonthly ResetPeriod = "monthly"
	ResetNever   ResetPeriod = "never"

	SnapshotDaily   SnapshotType = "daily"
	SnapshotWeekly  SnapshotType = "weekly"
	SnapshotMonthly SnapshotType = "monthly"
	SnapshotManual  SnapshotType = "manual"

	TimeFrameToday     TimeFrame = "today"
	TimeFrameThisWeek  TimeFrame = "this_week"
	TimeFrameThisMonth TimeFrame = "this_month"
	TimeFrameAllTime   TimeFrame = "all_time"
)

// Valid reports whether the scoring model is one of the known values.
func (m ScoringModel) Valid() bool {
	switch m {
	case ScoringHighestScore, ScoringFastestCompletion, ScoringLowestAttempts, ScoringHighestAccuracy:
		return true
	}
	return false
}

// HigherIsBetter reports the sort direction for this scoring model.
// highest_score and highest_accuracy rank descending; fastest_completion
// and lowest_attempts rank ascending.
func (m ScoringModel) HigherIsBetter() bool {
	return m == ScoringHighestScore || m == ScoringHighestAccuracy
}

func (p ResetPeriod) Valid() bool {
	switch p {
	case ResetDaily, ResetWeekly, ResetMonthly, ResetNever:
		return true
	}
	return false
}

func (t SnapshotType) Valid() bool {
	switch t {
	case SnapshotDaily, SnapshotWeekly, SnapshotMonthly, SnapshotManual:
		return true
	}
	return false
}

type Leaderboard struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	Slug                  string         `json:"slug"`
	Description           *string        `json:"description,omitempty"`
	ScoringModel          ScoringModel   `json:"scoring_model"`
	ResetPeriod           ResetPeriod    `json:"reset_period"`
	Category              *string        `json:"category,omitempty"`
	IsActive              bool           `json:"is_active"`
	IsPublic              bool           `json:"is_public"`
	IsArchived            bool           `json:"is_archived"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	MaxEntries            int            `json:"max_entries"`
	EntryLimitPerUser     int            `json:"entry_limit_per_user"`
	MinimumScoreThreshold float64        `json:"minimum_score_threshold"`
	LastResetDate         *time.Time     `json:"last_reset_date,omitempty"`
	NextResetDate         *time.Time     `json:"next_reset_date,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// LeaderboardEntry is a user's current score record within a leaderboard.
// Rank and Percentile are derived fields: they are only meaningful right
// after a full ranking pass and are owned by the ranking engine.
type LeaderboardEntry struct {
	ID               string         `json:"id"`
	LeaderboardID    string         `json:"leaderboard_id"`
	UserID           string         `json:"user_id"`
	Username         string         `json:"username"`
	Score            float64        `json:"score"`
	Rank             int            `json:"rank"`
	Percentile       float64        `json:"percentile"`
	CompletionTimeMs *int64         `json:"completion_time_ms,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	IsVerified       bool           `json:"is_verified"`
	VerifiedAt       *time.Time     `json:"verified_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SnapshotRow is one ranked line inside a snapshot's data payload.
type SnapshotRow struct {
	UserID     string  `json:"userId"`
	Username   string  `json:"username"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
	Percentile float64 `json:"percentile"`
}

// LeaderboardSnapshot is an immutable point-in-time capture of a
// leaderboard's full ranked entry list.
type LeaderboardSnapshot struct {
	ID            string        `json:"id"`
	LeaderboardID string        `json:"leaderboard_id"`
	SnapshotDate  time.Time     `json:"snapshot_date"`
	SnapshotType  SnapshotType  `json:"snapshot_type"`
	Data          []SnapshotRow `json:"data"`
	CreatedAt     time.Time     `json:"created_at"`
}

// LeaderboardHistory records a user's rank/percentile on a given date,
// written alongside daily snapshots for long-term trend tracking.
type LeaderboardHistory struct {
	ID            string    `json:"id"`
	LeaderboardID string    `json:"leaderboard_id"`
	UserID        string    `json:"user_id"`
	Score         float64   `json:"score"`
	Rank          int       `json:"rank"`
	Percentile    float64   `json:"percentile"`
	RecordDate    time.Time `json:"record_date"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserPosition summarizes where a user stands on one leaderboard.
// The zero value is the sentinel for "no entry".
type UserPosition struct {
	Rank       int     `json:"rank"`
	Percentile float64 `json:"percentile"`
	Total      int     `json:"total"`
}

// LeaderboardStatistics holds the plain aggregates served by the
// statistics endpoint.
type LeaderboardStatistics struct {
	TotalEntries        int     `json:"total_entries"`
	AverageScore        float64 `json:"average_score"`
	HighestScore        float64 `json:"highest_score"`
	LowestScore         float64 `json:"lowest_score"`
	RecentActivityCount int     `json:"recent_activity_count"`
}
