// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch_copilot"

// Metrics holds all Prometheus metrics for the service.
// Every Record method is safe on a nil receiver so components can run without metrics.
type Metrics struct {
	// Ingestion metrics
	FragmentsIngested prometheus.Counter
	FragmentsEvicted  prometheus.Counter
	FragmentsRejected *prometheus.CounterVec
	BufferDepth       prometheus.Gauge

	// Batch metrics
	BatchesQueued  prometheus.Counter
	QueueDepth     prometheus.Gauge
	BatchOutcomes  *prometheus.CounterVec
	BatchDuration  prometheus.Histogram
	TurnsProduced  prometheus.Counter
	BatchFragments prometheus.Histogram

	// Conversation state metrics
	PersistWrites     *prometheus.CounterVec
	PersistLatency    prometheus.Histogram
	AppendsCoalesced  prometheus.Counter
	Rollbacks         prometheus.Counter
	SummaryCacheReads *prometheus.CounterVec

	// Advisory metrics
	AdvisoryLatency    prometheus.Histogram
	AdvisoryTimeouts   prometheus.Counter
	AdvisorySuppressed prometheus.Counter

	// Broadcast metrics
	Broadcasts        *prometheus.CounterVec
	Deliveries        prometheus.Counter
	SubscribersPruned prometheus.Counter
	SubscribersActive prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// LLM metrics
	LLMLatency *prometheus.HistogramVec
	LLMErrors  *prometheus.CounterVec

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance registered with the default registry.
var DefaultMetrics = New(prometheus.DefaultRegisterer)

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FragmentsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_ingested_total",
			Help:      "Total number of transcription fragments pushed into the buffer",
		}),
		FragmentsEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_evicted_total",
			Help:      "Total number of fragments evicted because the buffer was full",
		}),
		FragmentsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_rejected_total",
			Help:      "Total number of inbound events dropped before buffering",
		}, []string{"reason"}),
		BufferDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_depth",
			Help:      "Number of fragments currently buffered",
		}),

		BatchesQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_queued_total",
			Help:      "Total number of batches enqueued by the collector",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of batches waiting for a worker",
		}),
		BatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_processed_total",
			Help:      "Total number of batches processed by outcome",
		}, []string{"outcome"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "End to end batch processing duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		}),
		TurnsProduced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_consolidated_total",
			Help:      "Total number of consolidated speaker turns",
		}),
		BatchFragments: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_fragments",
			Help:      "Number of fragments per batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),

		PersistWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_writes_total",
			Help:      "Total number of conversation state writes by result",
		}, []string{"result"}),
		PersistLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_latency_seconds",
			Help:      "Conversation state write latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		AppendsCoalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appends_coalesced_total",
			Help:      "Total number of appends deferred into a successor write",
		}),
		Rollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Total number of rollbacks after a failed write",
		}),
		SummaryCacheReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_cache_reads_total",
			Help:      "Total number of summary reads by cache result",
		}, []string{"result"}),

		AdvisoryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "advisory_latency_seconds",
			Help:      "Advisory generation latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 15},
		}),
		AdvisoryTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_timeouts_total",
			Help:      "Total number of advisory calls abandoned on timeout",
		}),
		AdvisorySuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_suppressed_total",
			Help:      "Total number of advisories not emitted because they repeated the previous one",
		}),

		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts by event",
		}, []string{"event"}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Total number of successful per-subscriber sends",
		}),
		SubscribersPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_pruned_total",
			Help:      "Total number of subscribers removed after a failed send",
		}),
		SubscribersActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers_active",
			Help:      "Number of connected subscribers",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		LLMLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "LLM completion latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}, []string{"provider", "purpose"}),
		LLMErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Total number of failed LLM completions",
		}, []string{"provider", "purpose"}),

		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls by method and status code",
		}, []string{"method", "code"}),
		GRPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_latency_seconds",
			Help:      "gRPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RecordFragmentIngested records a fragment pushed into the buffer.
func (m *Metrics) RecordFragmentIngested(evicted bool, depth int) {
	if m == nil {
		return
	}
	m.FragmentsIngested.Inc()
	if evicted {
		m.FragmentsEvicted.Inc()
	}
	m.BufferDepth.Set(float64(depth))
}

// RecordFragmentRejected records an inbound event dropped before buffering.
func (m *Metrics) RecordFragmentRejected(reason string) {
	if m == nil {
		return
	}
	m.FragmentsRejected.WithLabelValues(reason).Inc()
}

// RecordBatchQueued records a batch enqueued by the collector.
func (m *Metrics) RecordBatchQueued(fragments, queueDepth int) {
	if m == nil {
		return
	}
	m.BatchesQueued.Inc()
	m.BatchFragments.Observe(float64(fragments))
	m.BufferDepth.Set(0)
	m.QueueDepth.Set(float64(queueDepth))
}

// RecordQueueDepth records the current task queue depth.
func (m *Metrics) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordBatchOutcome records a processed batch.
func (m *Metrics) RecordBatchOutcome(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.BatchOutcomes.WithLabelValues(outcome).Inc()
	m.BatchDuration.Observe(durationSeconds)
}

// RecordTurns records consolidated turns.
func (m *Metrics) RecordTurns(n int) {
	if m == nil {
		return
	}
	m.TurnsProduced.Add(float64(n))
}

// RecordPersist records a conversation state write.
func (m *Metrics) RecordPersist(err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.PersistLatency.Observe(latencySeconds)
	if err != nil {
		m.PersistWrites.WithLabelValues("error").Inc()
		m.Rollbacks.Inc()
		return
	}
	m.PersistWrites.WithLabelValues("ok").Inc()
}

// RecordCoalesced records an append deferred behind an in-flight write.
func (m *Metrics) RecordCoalesced() {
	if m == nil {
		return
	}
	m.AppendsCoalesced.Inc()
}

// RecordSummaryRead records a summary cache read.
func (m *Metrics) RecordSummaryRead(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.SummaryCacheReads.WithLabelValues("hit").Inc()
		return
	}
	m.SummaryCacheReads.WithLabelValues("miss").Inc()
}

// RecordAdvisory records an advisory call.
func (m *Metrics) RecordAdvisory(timedOut bool, latencySeconds float64) {
	if m == nil {
		return
	}
	m.AdvisoryLatency.Observe(latencySeconds)
	if timedOut {
		m.AdvisoryTimeouts.Inc()
	}
}

// RecordSuppressed records an advisory suppressed as a repeat.
func (m *Metrics) RecordSuppressed() {
	if m == nil {
		return
	}
	m.AdvisorySuppressed.Inc()
}

// RecordBroadcast records a broadcast and its fan-out result.
func (m *Metrics) RecordBroadcast(event string, delivered, pruned, active int) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(event).Inc()
	m.Deliveries.Add(float64(delivered))
	m.SubscribersPruned.Add(float64(pruned))
	m.SubscribersActive.Set(float64(active))
}

// RecordSubscribers records the connected subscriber count.
func (m *Metrics) RecordSubscribers(active int) {
	if m == nil {
		return
	}
	m.SubscribersActive.Set(float64(active))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordLLM records an LLM completion.
func (m *Metrics) RecordLLM(provider, purpose string, err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.LLMLatency.WithLabelValues(provider, purpose).Observe(latencySeconds)
	if err != nil {
		m.LLMErrors.WithLabelValues(provider, purpose).Inc()
	}
}

// RecordGRPC records one completed gRPC call.
func (m *Metrics) RecordGRPC(method, code string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}
