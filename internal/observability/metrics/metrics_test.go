package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	// None of these may panic.
	m.RecordFragmentIngested(true, 1)
	m.RecordFragmentRejected("bad_json")
	m.RecordBatchQueued(3, 1)
	m.RecordBatchOutcome("emitted", 0.1)
	m.RecordPersist(errors.New("boom"), 0.1)
	m.RecordCoalesced()
	m.RecordSummaryRead(true)
	m.RecordAdvisory(true, 1)
	m.RecordBroadcast("distribute_suggestions", 2, 1, 3)
	m.RecordKafkaPublish("t", "e", nil, 0.01)
	m.RecordLLM("groq", "advisory", nil, 0.5)
	m.RecordGRPC("/grpc.health.v1.Health/Check", "OK", 0.001)
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordFragmentIngested(false, 1)
	m.RecordFragmentIngested(true, 1)
	if got := testutil.ToFloat64(m.FragmentsIngested); got != 2 {
		t.Errorf("expected 2 ingested, got %v", got)
	}
	if got := testutil.ToFloat64(m.FragmentsEvicted); got != 1 {
		t.Errorf("expected 1 evicted, got %v", got)
	}

	m.RecordPersist(nil, 0.01)
	m.RecordPersist(errors.New("store down"), 0.01)
	if got := testutil.ToFloat64(m.PersistWrites.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 ok write, got %v", got)
	}
	if got := testutil.ToFloat64(m.Rollbacks); got != 1 {
		t.Errorf("expected 1 rollback, got %v", got)
	}

	m.RecordBroadcast("distribute_suggestions", 2, 1, 4)
	if got := testutil.ToFloat64(m.Deliveries); got != 2 {
		t.Errorf("expected 2 deliveries, got %v", got)
	}
	if got := testutil.ToFloat64(m.SubscribersActive); got != 4 {
		t.Errorf("expected 4 active subscribers, got %v", got)
	}
}
