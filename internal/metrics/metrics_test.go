package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveArrangement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveArrangement(OutcomePartial, 4, 2, 10*time.Millisecond)
	m.ObserveArrangement(OutcomeComplete, 3, 0, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.arrangements.WithLabelValues(OutcomePartial)); got != 1 {
		t.Fatalf("expected 1 partial run, got %v", got)
	}
	if got := testutil.ToFloat64(m.guestsPlaced); got != 7 {
		t.Fatalf("expected 7 guests placed, got %v", got)
	}
	if got := testutil.ToFloat64(m.guestsUnplaced); got != 2 {
		t.Fatalf("expected 2 guests unplaced, got %v", got)
	}
}

func TestObserveAssignmentAndIntegrity(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAssignment("assign", nil)
	m.ObserveAssignment("assign", errors.New("full"))
	m.SetIntegrityIssues("wedding", 3)

	if got := testutil.ToFloat64(m.assignments.WithLabelValues("assign", "error")); got != 1 {
		t.Fatalf("expected 1 failed assignment, got %v", got)
	}
	if got := testutil.ToFloat64(m.integrityIssues.WithLabelValues("wedding")); got != 3 {
		t.Fatalf("expected 3 integrity issues, got %v", got)
	}
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	m.ObserveArrangement(OutcomeFailed, 0, 0, time.Second)
	m.ObserveAssignment("unassign", nil)
	m.SetIntegrityIssues("wedding", 1)
}
