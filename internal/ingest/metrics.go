package ingest

import "github.com/prometheus/client_golang/prometheus"

// Skip and rejection reasons used as label values.
const (
	reasonAlreadyPersisted = "already_persisted"
	reasonDuplicate        = "duplicate"
	reasonBodyConflict     = "body_conflict"
)

var (
	recordsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_records_enqueued_total",
		Help: "Parsed records placed on the ingestion queue.",
	})

	// recordsRejected is labeled by the rejected field (e.g. "type").
	recordsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_rejected_total",
		Help: "Source records dropped by the parser.",
	}, []string{"reason"})

	recordsPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_records_persisted_total",
		Help: "Records written by this process.",
	})

	recordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_skipped_total",
		Help: "Records not written because they were already handled.",
	}, []string{"reason"})

	// entityConflicts counts get-or-create calls that lost the insert race.
	entityConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_entity_conflicts_total",
		Help: "Get-or-create calls that converged on a concurrently created row.",
	}, []string{"kind"})

	bodiesLinked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_bodies_linked_total",
		Help: "Message bodies linked to their message.",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_queue_depth",
		Help: "Items buffered in the ingestion queue.",
	})

	recordDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_record_duration_seconds",
		Help:    "Time a consumer spends persisting one record.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		recordsEnqueued,
		recordsRejected,
		recordsPersisted,
		recordsSkipped,
		entityConflicts,
		bodiesLinked,
		queueDepth,
		recordDuration,
	)
}
