// Package metrics exposes the Prometheus counters of the dashboard backend.
//
//	funnelstats_fetch_failures_total{source}      backing store reads that failed
//	funnelstats_detail_requests_total{result}     card expansions: fetched, cached, shared
//	funnelstats_skipped_events_total{property}    rows whose raw kind is not in the vocabulary
//	funnelstats_tracked_events_total{result}      tracked events: persisted, failed, dropped
//	funnelstats_stale_dashboards_total            dashboards served from the stale cache
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "funnelstats",
			Name:      "fetch_failures_total",
			Help:      "Backing store reads that failed, by source.",
		},
		[]string{"source"},
	)

	DetailRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "funnelstats",
			Name:      "detail_requests_total",
			Help:      "Session card expansions, by how the detail was obtained.",
		},
		[]string{"result"},
	)

	SkippedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "funnelstats",
			Name:      "skipped_events_total",
			Help:      "Event rows whose raw kind is outside the property vocabulary.",
		},
		[]string{"property"},
	)

	TrackedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "funnelstats",
			Name:      "tracked_events_total",
			Help:      "Tracked funnel events, by outcome.",
		},
		[]string{"result"},
	)

	StaleDashboards = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "funnelstats",
			Name:      "stale_dashboards_total",
			Help:      "Dashboards served from the last good snapshot after a fetch failure.",
		},
	)
)

// RecordFetchFailure counts a failed read of source.
func RecordFetchFailure(source string) {
	FetchFailures.WithLabelValues(source).Inc()
}

// RecordDetail counts a card expansion. cached and shared are mutually exclusive in practice.
func RecordDetail(cached, shared bool) {
	switch {
	case cached:
		DetailRequests.WithLabelValues("cached").Inc()
	case shared:
		DetailRequests.WithLabelValues("shared").Inc()
	default:
		DetailRequests.WithLabelValues("fetched").Inc()
	}
}

// RecordSkipped counts n rows of property whose kind was not recognised.
func RecordSkipped(property string, n int) {
	if n <= 0 {
		return
	}
	SkippedEvents.WithLabelValues(property).Add(float64(n))
}

// RecordTracked counts one tracked event outcome: persisted, failed or dropped.
func RecordTracked(result string) {
	TrackedEvents.WithLabelValues(result).Inc()
}
