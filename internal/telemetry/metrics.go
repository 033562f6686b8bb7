// Package telemetry defines the Prometheus metrics exported by the engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ListPagesFetched counts discovery-phase page fetches by outcome
	// (items, empty, error).
	ListPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipcrawler_list_pages_total",
			Help: "Total list pages fetched during discovery, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// ItemsProcessed counts work items by resolution (new, updated,
	// skipped, failed).
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipcrawler_items_total",
			Help: "Total work items resolved by the processing pool, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// EnrichmentFallbacks counts items that received the deterministic
	// fallback description instead of provider output.
	EnrichmentFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipcrawler_enrichment_fallbacks_total",
			Help: "Total enrichment calls that degraded to the fallback description.",
		},
	)

	// KeyCooldowns counts circuit-breaker trips, labeled by failure class.
	KeyCooldowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipcrawler_key_cooldowns_total",
			Help: "Total api key cooldowns triggered by the circuit breaker, labeled by class.",
		},
		[]string{"class"},
	)

	// SessionsTotal counts finished crawl sessions by log status.
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipcrawler_sessions_total",
			Help: "Total crawl sessions finished, labeled by status.",
		},
		[]string{"status"},
	)
)
