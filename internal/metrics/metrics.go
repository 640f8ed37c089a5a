package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Arrangement outcomes
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
)

// Metrics holds the seating collectors. A nil *Metrics records nothing.
type Metrics struct {
	arrangements    *prometheus.CounterVec
	guestsPlaced    prometheus.Counter
	guestsUnplaced  prometheus.Counter
	duration        prometheus.Histogram
	assignments     *prometheus.CounterVec
	integrityIssues *prometheus.GaugeVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		arrangements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "arrangements_total",
			Help:      "Automatic arrangement runs by outcome.",
		}, []string{"outcome"}),
		guestsPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "guests_placed_total",
			Help:      "Guests seated by automatic arrangement.",
		}),
		guestsUnplaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "guests_unplaced_total",
			Help:      "Guests automatic arrangement could not seat.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seating",
			Name:      "arrangement_duration_seconds",
			Help:      "Time spent in automatic arrangement runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "manual_assignments_total",
			Help:      "Manual assign and unassign operations by result.",
		}, []string{"operation", "result"}),
		integrityIssues: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "seating",
			Name:      "integrity_issues",
			Help:      "Integrity issues found by the last check, per event.",
		}, []string{"event_id"}),
	}
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveArrangement(outcome string, placed, unplaced int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.arrangements.WithLabelValues(outcome).Inc()
	m.guestsPlaced.Add(float64(placed))
	m.guestsUnplaced.Add(float64(unplaced))
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAssignment(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.assignments.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) SetIntegrityIssues(eventID string, count int) {
	if m == nil {
		return
	}
	m.integrityIssues.WithLabelValues(eventID).Set(float64(count))
}
