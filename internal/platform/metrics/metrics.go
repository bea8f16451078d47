// Package metrics exposes Prometheus counters for the leaderboard engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts score submissions by outcome:
	// accepted, rejected, unverified.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logiquest",
		Subsystem: "leaderboard",
		Name:      "score_submissions_total",
		Help:      "Score submissions processed, labeled by outcome.",
	}, []string{"outcome"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logiquest",
		Subsystem: "leaderboard",
		Name:      "ranking_cache_hits_total",
		Help:      "Ranking-view cache hits.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logiquest",
		Subsystem: "leaderboard",
		Name:      "ranking_cache_misses_total",
		Help:      "Ranking-view cache misses.",
	})

	RolloverResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logiquest",
		Subsystem: "leaderboard",
		Name:      "rollover_resets_total",
		Help:      "Leaderboards reset by the rollover sweep.",
	})

	SnapshotsTaken = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logiquest",
		Subsystem: "leaderboard",
		Name:      "snapshots_total",
		Help:      "Snapshots recorded, labeled by type.",
	}, []string{"type"})

	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "logiquest",
		Subsystem: "leaderboard",
		Name:      "rank_recompute_seconds",
		Help:      "Duration of full ranking passes including persistence.",
		Buckets:   prometheus.DefBuckets,
	})
)
