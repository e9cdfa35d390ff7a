// Package metrics registers the pipeline's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IdeasCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_ideas_created_total",
			Help: "Ideas created, by origin.",
		},
		[]string{"origin"},
	)

	DuplicatesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_feed_duplicates_skipped_total",
			Help: "Feed items skipped because an idea with the same fingerprint or link exists.",
		},
	)

	ItemFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_feed_item_failures_total",
			Help: "Feed items that could not be turned into ideas.",
		},
	)

	SourceFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_source_poll_failures_total",
			Help: "Source polls that failed.",
		},
	)

	AICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_ai_completions_total",
			Help: "AI completion calls, by outcome.",
		},
		[]string{"outcome"},
	)

	AICostUSD = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_ai_cost_usd_total",
			Help: "Accumulated AI completion cost in USD.",
		},
	)

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_status_transitions_total",
			Help: "Status transitions, by entity and target status.",
		},
		[]string{"entity", "to"},
	)
)

func init() {
	prometheus.MustRegister(
		IdeasCreated,
		DuplicatesSkipped,
		ItemFailures,
		SourceFailures,
		AICalls,
		AICostUSD,
		Transitions,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
