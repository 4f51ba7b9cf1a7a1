package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used across the bridge.
const (
	ResultOK        = "ok"
	ResultNoop      = "noop"
	ResultError     = "error"
	ResultMalformed = "malformed"
	ResultTimeout   = "timeout"
	ResultCancelled = "cancelled"

	RecordApplied    = "applied"
	RecordEmpty      = "empty"
	RecordMalformed  = "malformed"
	RecordFetchError = "fetch_error"
)

// Metrics groups the bridge collectors so tests can register them on their own registry.
type Metrics struct {
	PublishedMessages  *prometheus.CounterVec
	ConsumedRecords    *prometheus.CounterVec
	PersistenceResults *prometheus.CounterVec
	ApplyDuration      *prometheus.HistogramVec
	CommitErrors       prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PublishedMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_published_messages_total",
				Help: "Total number of publish attempts by result",
			},
			[]string{"result"},
		),
		ConsumedRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_consumed_records_total",
				Help: "Total number of records received by the consumer by outcome",
			},
			[]string{"outcome"},
		),
		PersistenceResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_persistence_results_total",
				Help: "Total number of applied envelopes by action and result",
			},
			[]string{"action", "result"},
		),
		ApplyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_apply_duration_seconds",
				Help:    "Duration of applying an envelope to the store",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		CommitErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_commit_errors_total",
				Help: "Total number of offset commits the reader rejected",
			},
		),
	}
}
