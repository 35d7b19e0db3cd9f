// Package metrics holds the Prometheus instruments of the sync layer.
// They live in a standalone package to avoid import cycles between the
// syncer, the batch coordinator and the HTTP packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransactionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_transaction_retries_total",
		Help: "Optimistic transaction attempts repeated after a write conflict",
	})

	TransactionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_transaction_failures_total",
		Help: "Mutations abandoned after exhausting the retry budget",
	})

	BatchChunks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_batch_chunks_total",
		Help: "Batch chunks committed, by outcome",
	}, []string{"outcome"})

	StampFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_stamp_failures_total",
		Help: "Member update stamps that failed and were dropped",
	})

	CacheInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_cache_invalidations_total",
		Help: "Group caches evicted after a foreign member update",
	})

	DeltaFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_delta_fetches_total",
		Help: "Delta fetches issued by the reactor, by outcome",
	}, []string{"outcome"})

	DeltaFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_delta_fetch_duration_ms",
		Help:    "Delta fetch round-trip latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	WatchResubscribes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_watch_resubscribes_total",
		Help: "Group subscriptions re-established after a stream drop",
	})
)

// Register registers the sync metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		TransactionRetries,
		TransactionFailures,
		BatchChunks,
		StampFailures,
		CacheInvalidations,
		DeltaFetches,
		DeltaFetchDuration,
		WatchResubscribes,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
