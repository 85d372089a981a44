package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons used as the reason label of ItemsRejected.
const (
	ReasonDuplicateURL     = "duplicate_url"
	ReasonDuplicateContent = "duplicate_content"
	ReasonExcluded         = "excluded"
	ReasonTooShort         = "too_short"
	ReasonFetchFailed      = "fetch_failed"
	ReasonNoURL            = "no_url"
)

var (
	ItemsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_items_fetched_total",
		Help: "The total number of raw items emitted by source connectors",
	}, []string{"source"})

	ItemsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_items_rejected_total",
		Help: "The total number of candidate items rejected by the pipeline",
	}, []string{"reason"})

	ItemsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_items_processed_total",
		Help: "The total number of new items added to the store",
	})

	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_source_failures_total",
		Help: "Source connector failures by classified kind",
	}, []string{"source", "kind"})

	SummariesProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_summaries_total",
		Help: "Summaries produced by tier",
	}, []string{"mode"})

	StoreItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_store_items",
		Help: "Number of items in the store after the last write",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitor_run_duration_seconds",
		Help:    "Duration of a full ingestion run",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monitor_llm_request_duration_seconds",
		Help:    "Duration of abstractive summary requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	DigestsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_digests_published_total",
		Help: "Weekly digests published to the chat",
	}, []string{"status"})

	ArchiveWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_archive_writes_total",
		Help: "Items mirrored to the Postgres archive",
	}, []string{"status"})
)
