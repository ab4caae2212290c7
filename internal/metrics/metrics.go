package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedPagesFetched counts indexing API pages fetched, by direction
	FeedPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_source_pages_fetched_total",
			Help: "Total number of transfer pages fetched from the indexing API",
		},
		[]string{"direction"},
	)

	// FeedTransfersFetched counts raw transfers received, by direction
	FeedTransfersFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_source_transfers_fetched_total",
			Help: "Total number of raw transfers received from the indexing API",
		},
		[]string{"direction"},
	)

	// FeedFetchErrors counts failed page fetches after retries, by direction and category
	FeedFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_source_fetch_errors_total",
			Help: "Total number of page fetches that failed after retries",
		},
		[]string{"direction", "category"},
	)

	// FeedFetchRetries counts retry attempts against the indexing API
	FeedFetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_source_fetch_retries_total",
			Help: "Total number of retried page fetches",
		},
		[]string{"direction"},
	)

	// FeedRoundDuration observes the duration of a dual-direction fetch round
	FeedRoundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_fetch_round_duration_seconds",
			Help:    "Time taken to fetch both directions and rebuild the feed",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// FeedPagesServed counts feed pages returned to consumers
	FeedPagesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_pages_served_total",
			Help: "Total number of feed pages returned to consumers",
		},
		[]string{"exhausted"},
	)

	// FeedDuplicatesDropped counts zero-value native entries dropped during feed rebuilds
	FeedDuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_duplicates_dropped_total",
			Help: "Total number of redundant zero-value native entries dropped",
		},
	)

	// TransactionsClassified counts classifications, by resulting type
	TransactionsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_transactions_total",
			Help: "Total number of transactions classified",
		},
		[]string{"type"},
	)

	// ClassificationCacheHits counts classification cache lookups, by tier and outcome
	ClassificationCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_cache_lookups_total",
			Help: "Classification cache lookups",
		},
		[]string{"tier", "result"},
	)

	// SyncWalletsTotal counts background sync runs per outcome
	SyncWalletsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_wallet_runs_total",
			Help: "Total number of wallet sync runs",
		},
		[]string{"result"},
	)

	// SyncLatency observes the duration of a full sync pass
	SyncLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_pass_duration_seconds",
			Help:    "Time taken to sync every configured wallet",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)
