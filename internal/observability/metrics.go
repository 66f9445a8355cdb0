package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for Shelfarr. Metrics are organized
// by subsystem: requests, matching, searches, ranking, and cleanup. All
// counters and histograms are registered via promauto with the default
// Prometheus registry.
type Metrics struct {
	// RequestsCreated counts acquisition requests created.
	RequestsCreated prometheus.Counter

	// RequestsApproved counts requests approved out of awaiting_approval.
	RequestsApproved prometheus.Counter

	// RequestsDenied counts requests denied out of awaiting_approval.
	RequestsDenied prometheus.Counter

	// RequestsCompleted counts requests reaching available or downloaded.
	RequestsCompleted prometheus.Counter

	// RequestsFailed counts requests reaching failed.
	RequestsFailed prometheus.Counter

	// RequestsDeleted counts soft-deleted requests.
	RequestsDeleted prometheus.Counter

	// TransitionsRejected counts illegal transition attempts by target status.
	TransitionsRejected *prometheus.CounterVec

	// MatchesFound counts library matches, labeled by match type.
	MatchesFound *prometheus.CounterVec

	// MatchesMissed counts matching passes with no match, labeled by reason.
	MatchesMissed *prometheus.CounterVec

	// MatchConfidence observes the confidence of accepted matches.
	MatchConfidence prometheus.Histogram

	// SearchesStarted counts indexer searches initiated, labeled by group.
	SearchesStarted *prometheus.CounterVec

	// SearchesFailed counts failed group searches, labeled by group.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes group search duration in seconds.
	SearchDuration *prometheus.HistogramVec

	// CandidatesRanked observes the number of candidates per ranking pass.
	CandidatesRanked prometheus.Histogram

	// CleanupDispositions counts deletion dispositions, labeled by outcome
	// (removed, kept-seeding, kept-unlimited).
	CleanupDispositions *prometheus.CounterVec

	// OutboxPublished counts outbox events delivered to the broker.
	OutboxPublished prometheus.Counter

	// OutboxFailed counts outbox delivery failures.
	OutboxFailed prometheus.Counter
}

// NewMetrics creates and registers all Shelfarr metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shelfarr_requests_created_total",
			Help: "Total number of acquisition requests created.",
		}),
		RequestsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shelfarr_requests_approved_total",
			Help: "Total number of requests approved.",
		}),
		RequestsDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shelfarr_requests_denied_total",
			Help: "Total number of requests denied.",
		}),
		RequestsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shelfarr_requests_completed_total",
			Help: "Total number of requests that reached a completed status.",
		}),
		RequestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shelfarr_requests_failed_total",
			Help: "Total number of requests that failed.",
		}),
		RequestsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shelfarr_requests_deleted_total",
			Help: "Total number of soft-deleted requests.",
		}),
		TransitionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfarr_transitions_rejected_total",
			Help: "Total number of illegal status transition attempts.",
		}, []string{"to"}),
		MatchesFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfarr_matches_found_total",
			Help: "Total number of library matches by match type.",
		}, []string{"type"}),
		MatchesMissed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfarr_matches_missed_total",
			Help: "Total number of matching passes without a match, by reason.",
		}, []string{"reason"}),
		MatchConfidence: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shelfarr_match_confidence",
			Help:    "Confidence of accepted library matches.",
			Buckets: prometheus.LinearBuckets(70, 5, 7),
		}),
		SearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfarr_searches_started_total",
			Help: "Total number of indexer group searches initiated.",
		}, []string{"group"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfarr_searches_failed_total",
			Help: "Total number of failed indexer group searches.",
		}, []string{"group"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelfarr_search_duration_seconds",
			Help:    "Indexer group search duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"group"}),
		CandidatesRanked: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shelfarr_candidates_ranked",
			Help:    "Number of candidates per ranking pass.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		CleanupDispositions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfarr_cleanup_dispositions_total",
			Help: "Total number of deletion dispositions by outcome.",
		}, []string{"outcome"}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shelfarr_outbox_published_total",
			Help: "Total number of outbox events delivered to the broker.",
		}),
		OutboxFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shelfarr_outbox_failed_total",
			Help: "Total number of outbox delivery failures.",
		}),
	}
}
