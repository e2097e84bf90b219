package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_matches_started_total",
		Help: "Matches created by the matchmaking queue.",
	})
	MatchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_matches_finished_total",
		Help: "Matches reaching a terminal state, by end reason.",
	}, []string{"reason"})
	MovesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_moves_applied_total",
		Help: "Accepted moves, premove-triggered ones included.",
	})
	PremovesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_premoves_executed_total",
		Help: "Premoves that were legal at execution time and applied.",
	})
	PremovesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_premoves_dropped_total",
		Help: "Premoves silently dropped because they became illegal.",
	})
	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_matches",
		Help: "Matches currently held in the active-match table.",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_queue_depth",
		Help: "Players currently waiting in the matchmaking queue.",
	})
)
